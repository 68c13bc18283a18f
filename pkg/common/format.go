package common

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var FctFileStartBytes []byte = []byte{'F', 'C', 'T'}

const (
	FctHeaderLength         = 5
	EntryHeaderPrefixLength = 8

	MaxChunkSize     = 65535
	DefaultChunkSize = 4096

	MaxPathLength = 65535
)

/*

An archive is laid out as follows (all integers little-endian):

	StartBytes  [3]byte  "FCT"
	ChunkSize   uint16

followed by zero or more entries, each:

	ChunkCount    uint32
	LastChunkSize uint16
	PathLength    uint16
	Path          [PathLength]byte (UTF-8)
	Data          (ChunkCount + (LastChunkSize > 0 ? 1 : 0)) * ChunkSize bytes

The final block of an entry with LastChunkSize > 0 is zero padded to ChunkSize.

*/

type FctArchiveHeader struct {
	StartBytes [3]byte
	ChunkSize  uint16
}

func NewArchiveHeader(chunkSize uint16) FctArchiveHeader {
	header := FctArchiveHeader{ChunkSize: chunkSize}
	copy(header.StartBytes[:], FctFileStartBytes)
	return header
}

func EncodeArchiveHeader(header *FctArchiveHeader) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadArchiveHeader reads and verifies the fixed archive header at the current
// position of r.
func ReadArchiveHeader(r io.Reader) (*FctArchiveHeader, error) {
	headerBytes := make([]byte, FctHeaderLength)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncatedArchiveHeader
		}
		return nil, IOError("read archive header", err)
	}

	header := new(FctArchiveHeader)
	if err := binary.Read(bytes.NewReader(headerBytes), binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedArchiveHeader, err)
	}

	if !bytes.Equal(header.StartBytes[:], FctFileStartBytes) {
		return nil, ErrInvalidMagic
	}
	if header.ChunkSize == 0 {
		return nil, ErrInvalidChunkSize
	}

	return header, nil
}

// ValidateChunkSize converts a user supplied chunk size to the on-disk width.
func ValidateChunkSize(n int) (uint16, error) {
	if n < 1 {
		return 0, ErrInvalidChunkSize
	}
	if n > MaxChunkSize {
		return 0, ErrChunkSizeTooLarge
	}
	return uint16(n), nil
}
