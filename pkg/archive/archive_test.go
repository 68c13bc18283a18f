package archive

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/pathutil"
)

type testWorkspace struct {
	sourceDir   string
	outputDir   string
	archivePath string
}

func newTestWorkspace(t *testing.T) testWorkspace {
	t.Helper()
	dir := t.TempDir()

	ws := testWorkspace{
		sourceDir:   filepath.Join(dir, "src"),
		outputDir:   filepath.Join(dir, "out"),
		archivePath: filepath.Join(dir, "test.fct"),
	}
	require.NoError(t, os.MkdirAll(ws.sourceDir, 0755))
	return ws
}

func (ws testWorkspace) writeSource(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(ws.sourceDir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func (ws testWorkspace) create(t *testing.T, chunkSize uint16) *FctArchive {
	t.Helper()
	a, err := Create(ws.archivePath, chunkSize, WithRootDir(ws.sourceDir))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func (ws testWorkspace) open(t *testing.T, opts ...FctArchiveOption) *FctArchive {
	t.Helper()
	a, err := Open(ws.archivePath, append([]FctArchiveOption{WithRootDir(ws.sourceDir)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func (ws testWorkspace) readOutput(t *testing.T, name string) []byte {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(ws.outputDir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return content
}

func TestCreateWritesArchiveHeader(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)

	raw, err := os.ReadFile(ws.archivePath)
	require.NoError(t, err)
	assert.Equal(t, []byte{'F', 'C', 'T', 4, 0}, raw)
	assert.Equal(t, uint16(4), a.ChunkSize())
	assert.Equal(t, ws.archivePath, a.Path())

	entries, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateRejectsZeroChunkSize(t *testing.T) {
	ws := newTestWorkspace(t)
	_, err := Create(ws.archivePath, 0)
	assert.ErrorIs(t, err, common.ErrInvalidChunkSize)
}

func TestOpenRejectsBadHeader(t *testing.T) {
	ws := newTestWorkspace(t)

	tests := []struct {
		name    string
		content []byte
		want    error
	}{
		{"bad magic", []byte{'Z', 'I', 'P', 4, 0}, common.ErrInvalidMagic},
		{"truncated", []byte{'F', 'C'}, common.ErrTruncatedArchiveHeader},
		{"empty file", nil, common.ErrTruncatedArchiveHeader},
		{"zero chunk size", []byte{'F', 'C', 'T', 0, 0}, common.ErrInvalidChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(ws.archivePath, tt.content, 0644))
			_, err := Open(ws.archivePath)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, common.ErrFormat)
		})
	}

	_, err := Open(filepath.Join(ws.sourceDir, "missing.fct"))
	assert.ErrorIs(t, err, common.ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEndToEndChunkSizeFour(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	source := ws.writeSource(t, "data.txt", []byte("ABCDEFGHIJ"))

	require.NoError(t, a.Append(source))

	raw, err := os.ReadFile(ws.archivePath)
	require.NoError(t, err)

	expected := []byte{'F', 'C', 'T', 4, 0}
	expected = append(expected, 2, 0, 0, 0, 2, 0, 8, 0)
	expected = append(expected, "data.txt"...)
	expected = append(expected, "ABCDEFGHIJ\x00\x00"...)
	assert.Equal(t, expected, raw)

	entries, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []ListEntry{{Ordinal: 1, Path: "data.txt", Length: 10}}, entries)

	require.NoError(t, a.ExtractOne(ws.outputDir, 0))
	assert.Equal(t, []byte("ABCDEFGHIJ"), ws.readOutput(t, "data.txt"))
}

func TestRoundTripLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, chunkSize := range []uint16{1, 4, 7, 4096} {
		for _, length := range []int{0, 1, 3, 4, 5, 8, 4095, 4096, 4097, 10000} {
			ws := newTestWorkspace(t)
			a := ws.create(t, chunkSize)

			content := make([]byte, length)
			rng.Read(content)
			source := ws.writeSource(t, "file.bin", content)

			require.NoError(t, a.Append(source))
			require.NoError(t, a.ExtractOne(ws.outputDir, 0))

			assert.True(t, bytes.Equal(content, ws.readOutput(t, "file.bin")),
				"chunk size %d length %d", chunkSize, length)
		}
	}
}

func TestBoundaryLayouts(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)

	require.NoError(t, a.Append(ws.writeSource(t, "empty", nil)))
	require.NoError(t, a.Append(ws.writeSource(t, "exact", []byte("ABCDEFGH"))))

	headers, err := a.Headers()
	require.NoError(t, err)
	require.Len(t, headers, 2)

	assert.Equal(t, uint32(0), headers[0].ChunkCount)
	assert.Equal(t, uint16(0), headers[0].LastChunkSize)
	assert.Equal(t, uint32(2), headers[1].ChunkCount)
	assert.Equal(t, uint16(0), headers[1].LastChunkSize)

	fi, err := os.Stat(ws.archivePath)
	require.NoError(t, err)
	// archive header + two entry headers + two full chunks, no padding block
	assert.Equal(t, int64(5+(8+5)+(8+5)+8), fi.Size())
}

func TestListOrderSurvivesReopen(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 16)

	names := []string{"c.txt", "a.txt", "nested/b.txt"}
	for i, name := range names {
		require.NoError(t, a.Append(ws.writeSource(t, name, bytes.Repeat([]byte{'x'}, i*20))))
	}
	require.NoError(t, a.Close())

	reopened := ws.open(t)
	entries, err := reopened.List()
	require.NoError(t, err)

	require.Len(t, entries, 3)
	for i, name := range names {
		assert.Equal(t, i+1, entries[i].Ordinal)
		assert.Equal(t, name, entries[i].Path)
		assert.Equal(t, uint64(i*20), entries[i].Length)
	}
}

func TestIncrementalIndexMatchesScan(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)

	require.NoError(t, a.Append(ws.writeSource(t, "one", []byte("12345"))))
	require.NoError(t, a.Append(ws.writeSource(t, "two", []byte("123"))))
	cached, err := a.Headers()
	require.NoError(t, err)

	a.headersStale = true
	scanned, err := a.Headers()
	require.NoError(t, err)

	assert.Equal(t, scanned, cached)
	assert.Equal(t, int64(5+8+3), cached[0].DataPos)
	assert.Equal(t, int64(5+8+3+8+8+3), cached[1].DataPos)
}

func TestAppendRejections(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)

	t.Run("directory", func(t *testing.T) {
		err := a.Append(ws.sourceDir)
		assert.ErrorIs(t, err, common.ErrNotRegularFile)
	})

	t.Run("read-only source", func(t *testing.T) {
		source := ws.writeSource(t, "ro.txt", []byte("x"))
		require.NoError(t, os.Chmod(source, 0444))
		err := a.Append(source)
		assert.ErrorIs(t, err, common.ErrReadOnlySource)
		assert.ErrorIs(t, err, common.ErrPermissionDenied)
	})

	t.Run("missing source", func(t *testing.T) {
		err := a.Append(filepath.Join(ws.sourceDir, "missing"))
		assert.ErrorIs(t, err, common.ErrIO)
	})

	t.Run("outside root", func(t *testing.T) {
		outside := filepath.Join(filepath.Dir(ws.sourceDir), "outside.txt")
		require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))
		err := a.Append(outside)
		assert.ErrorIs(t, err, common.ErrPathResolution)
	})

	entries, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	raw, err := os.ReadFile(ws.archivePath)
	require.NoError(t, err)
	assert.Len(t, raw, common.FctHeaderLength)
}

func TestAppendManyCollectsFailures(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)

	good1 := ws.writeSource(t, "good1", []byte("first"))
	bad := filepath.Join(ws.sourceDir, "missing")
	good2 := ws.writeSource(t, "good2", []byte("second"))

	failed := a.AppendMany([]string{good1, bad, good2})
	assert.Equal(t, []string{bad}, failed)

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "good1", entries[0].Path)
	assert.Equal(t, "good2", entries[1].Path)
}

func TestCustomRelativizer(t *testing.T) {
	ws := newTestWorkspace(t)
	a, err := Create(ws.archivePath, 4, WithRelativizer(func(root, path string) (string, error) {
		return "fixed/" + filepath.Base(path), nil
	}))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Append(ws.writeSource(t, "any.txt", []byte("x"))))

	entries, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, "fixed/any.txt", entries[0].Path)
}

func TestReadOnlyArchive(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	require.NoError(t, a.Append(ws.writeSource(t, "f", []byte("content"))))
	require.NoError(t, a.Close())

	ro, err := OpenReadOnly(ws.archivePath, WithRootDir(ws.sourceDir))
	require.NoError(t, err)
	defer ro.Close()

	assert.ErrorIs(t, ro.Append(ws.writeSource(t, "g", []byte("x"))), common.ErrReadOnlyArchive)
	assert.ErrorIs(t, ro.Remove([]int{0}), common.ErrReadOnlyArchive)

	entries, err := ro.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTruncatedEntryHeaderEndsScan(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	require.NoError(t, a.Append(ws.writeSource(t, "kept", []byte("ABCDE"))))
	require.NoError(t, a.Close())

	f, err := os.OpenFile(ws.archivePath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := ws.open(t)
	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Path)
	assert.True(t, reopened.Corrupt())
}

func TestTruncatedPayloadEndsScan(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	require.NoError(t, a.Append(ws.writeSource(t, "kept", []byte("ABCD"))))
	require.NoError(t, a.Append(ws.writeSource(t, "cut", []byte("ABCDEFGH"))))
	require.NoError(t, a.Close())

	fi, err := os.Stat(ws.archivePath)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(ws.archivePath, fi.Size()-2))

	reopened := ws.open(t)
	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, reopened.Corrupt())
}

func TestReadEntryAt(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	require.NoError(t, a.Append(ws.writeSource(t, "first", []byte("xyz"))))
	require.NoError(t, a.Append(ws.writeSource(t, "second", []byte("ABCDEFGHIJ"))))

	headers, err := a.Headers()
	require.NoError(t, err)
	header := headers[1]

	buf := make([]byte, 4)
	n, err := a.ReadEntryAt(&header, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, "DEFG", string(buf[:n]))

	n, err = a.ReadEntryAt(&header, buf, 8)
	require.NoError(t, err)
	assert.Equal(t, "IJ", string(buf[:n]))

	_, err = a.ReadEntryAt(&header, buf, 10)
	assert.Error(t, err)
}

func TestAppendAfterDamagedTail(t *testing.T) {
	ws := newTestWorkspace(t)
	a := ws.create(t, 4)
	require.NoError(t, a.Append(ws.writeSource(t, "kept", []byte("ABCDE"))))
	require.NoError(t, a.Close())

	f, err := os.OpenFile(ws.archivePath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := ws.open(t)
	entries, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, reopened.Corrupt())

	require.NoError(t, reopened.Append(ws.writeSource(t, "added", []byte("xy"))))
	assert.False(t, reopened.Corrupt())

	// 5 header + (8+4 header, 8 data) + (8+5 header, 4 data)
	fi, err := os.Stat(ws.archivePath)
	require.NoError(t, err)
	assert.Equal(t, int64(42), fi.Size())

	assert.Equal(t, []string{"kept", "added"}, entryPaths(t, reopened))

	failed, err := reopened.ExtractMany(ws.outputDir, nil)
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.Equal(t, "ABCDE", string(ws.readOutput(t, "kept")))
	assert.Equal(t, "xy", string(ws.readOutput(t, "added")))

	rescanned := ws.open(t)
	assert.Equal(t, []string{"kept", "added"}, entryPaths(t, rescanned))
	assert.False(t, rescanned.Corrupt())
}

func TestFailedAppendTruncatesArchive(t *testing.T) {
	ws := newTestWorkspace(t)

	// Shrinks the source between stat and copy so the payload runs short.
	shrinking := func(root string, path string) (string, error) {
		if filepath.Base(path) == "shrinking" {
			if err := os.Truncate(path, 3); err != nil {
				return "", err
			}
		}
		return pathutil.Relativize(root, path)
	}

	a, err := Create(ws.archivePath, 4, WithRootDir(ws.sourceDir), WithRelativizer(shrinking))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Append(ws.writeSource(t, "kept", []byte("ABCDE"))))
	before, err := os.Stat(ws.archivePath)
	require.NoError(t, err)

	err = a.Append(ws.writeSource(t, "shrinking", []byte("0123456789")))
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrIO)

	after, err := os.Stat(ws.archivePath)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())
	assert.Equal(t, []string{"kept"}, entryPaths(t, a))

	rescanned := ws.open(t)
	assert.Equal(t, []string{"kept"}, entryPaths(t, rescanned))
	assert.False(t, rescanned.Corrupt())
}
