package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndices(t *testing.T) {
	indices, err := parseIndices([]string{"1", "3", "3"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 2}, indices)

	indices, err = parseIndices(nil)
	require.NoError(t, err)
	assert.Empty(t, indices)

	for _, bad := range []string{"0", "-1", "two", ""} {
		_, err := parseIndices([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("FCT_TEST_INT", "512")
	assert.Equal(t, 512, getEnvInt("FCT_TEST_INT", 4096))

	t.Setenv("FCT_TEST_INT", "nope")
	assert.Equal(t, 4096, getEnvInt("FCT_TEST_INT", 4096))

	t.Setenv("FCT_TEST_INT", "")
	assert.Equal(t, 4096, getEnvInt("FCT_TEST_INT", 4096))
}

func TestListCommandOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("hello"), 0644))
	archivePath := filepath.Join(dir, "out.fct")

	RootCmd.SetArgs([]string{"create", "-o", archivePath, "-r", src, "-c", "4", "--log-level", "error", filepath.Join(src, "a.txt")})
	require.NoError(t, RootCmd.Execute())

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	t.Cleanup(func() { RootCmd.SetOut(nil) })

	RootCmd.SetArgs([]string{"list", "--log-level", "error", archivePath})
	require.NoError(t, RootCmd.Execute())
	assert.Equal(t, "1: a.txt 5\n", out.String())
}

func TestListCommandEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "empty.fct")

	RootCmd.SetArgs([]string{"create", "-o", archivePath, "--log-level", "error"})
	require.NoError(t, RootCmd.Execute())

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	t.Cleanup(func() { RootCmd.SetOut(nil) })

	RootCmd.SetArgs([]string{"list", "--log-level", "error", archivePath})
	require.NoError(t, RootCmd.Execute())
	assert.Equal(t, "No files in archive\n", out.String())
}
