package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/beam-cloud/fct/pkg/common"
)

func TestWriteEntryDataPadsLastChunk(t *testing.T) {
	header, err := common.NewEntryHeader("f", 10, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	err = writeEntryData(&out, strings.NewReader("ABCDEFGHIJ"), header, 4, newTransferBuffer(4))
	require.NoError(t, err)

	assert.Equal(t, []byte("ABCDEFGHIJ\x00\x00"), out.Bytes())
}

func TestWriteEntryDataExactMultiple(t *testing.T) {
	header, err := common.NewEntryHeader("f", 8, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	err = writeEntryData(&out, strings.NewReader("ABCDEFGH"), header, 4, newTransferBuffer(4))
	require.NoError(t, err)

	assert.Equal(t, []byte("ABCDEFGH"), out.Bytes())
}

func TestWriteEntryDataShortSource(t *testing.T) {
	header, err := common.NewEntryHeader("f", 10, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	err = writeEntryData(&out, strings.NewReader("ABCDE"), header, 4, newTransferBuffer(4))
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestReadEntryDataFill(t *testing.T) {
	header, err := common.NewEntryHeader("f", 10, 4)
	require.NoError(t, err)
	stored := []byte("ABCDEFGHIJ\x00\x00")

	var exact bytes.Buffer
	require.NoError(t, readEntryData(&exact, bytes.NewReader(stored), header, 4, false, newTransferBuffer(4)))
	assert.Equal(t, "ABCDEFGHIJ", exact.String())

	var padded bytes.Buffer
	require.NoError(t, readEntryData(&padded, bytes.NewReader(stored), header, 4, true, newTransferBuffer(4)))
	assert.Equal(t, stored, padded.Bytes())
}

func TestReadEntryDataTruncatedArchive(t *testing.T) {
	header, err := common.NewEntryHeader("f", 10, 4)
	require.NoError(t, err)

	var out bytes.Buffer
	err = readEntryData(&out, bytes.NewReader([]byte("ABCDEFGH")), header, 4, false, newTransferBuffer(4))
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestTransferAcrossBufferBoundaries(t *testing.T) {
	// Small buffer forces several reads per entry.
	buf := make([]byte, 3*4)
	content := strings.Repeat("0123456789", 7)
	header, err := common.NewEntryHeader("f", uint64(len(content)), 4)
	require.NoError(t, err)

	var stored bytes.Buffer
	require.NoError(t, writeEntryData(&stored, strings.NewReader(content), header, 4, buf))
	assert.Equal(t, int(header.BlockCount())*4, stored.Len())

	var out bytes.Buffer
	require.NoError(t, readEntryData(&out, &stored, header, 4, false, buf))
	assert.Equal(t, content, out.String())
}

func TestNewTransferBuffer(t *testing.T) {
	assert.Len(t, newTransferBuffer(4096), transferBufferSize)
	assert.Equal(t, 0, len(newTransferBuffer(7))%7)
	assert.Len(t, newTransferBuffer(65535), 8*65535)
}
