package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	common "github.com/beam-cloud/fct/pkg/common"
)

// EncodeEntryHeader returns the on-disk form of an entry header:
// chunk count, last chunk size, path length, then the raw path bytes.
func EncodeEntryHeader(header *common.EntryHeader) ([]byte, error) {
	pathBytes := []byte(header.Path)
	if len(pathBytes) > common.MaxPathLength {
		return nil, fmt.Errorf("%w: %d bytes", common.ErrPathTooLong, len(pathBytes))
	}
	if !utf8.Valid(pathBytes) {
		return nil, fmt.Errorf("%w: path %q is not valid UTF-8", common.ErrInvalidEntryHeader, header.Path)
	}

	buf := make([]byte, common.EntryHeaderPrefixLength, common.EntryHeaderPrefixLength+len(pathBytes))
	binary.LittleEndian.PutUint32(buf[0:4], header.ChunkCount)
	binary.LittleEndian.PutUint16(buf[4:6], header.LastChunkSize)
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(pathBytes)))

	return append(buf, pathBytes...), nil
}

// ReadEntryHeader decodes the entry header at the current position of r.
// It returns io.EOF when no bytes remain, and ErrTruncatedEntryHeader when
// only part of the fixed prefix is present.
func ReadEntryHeader(r io.Reader) (*common.EntryHeader, error) {
	var prefix [common.EntryHeaderPrefixLength]byte

	n, err := io.ReadFull(r, prefix[:])
	switch {
	case err == io.EOF:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return nil, fmt.Errorf("%w: got %d of %d bytes", common.ErrTruncatedEntryHeader, n, len(prefix))
	case err != nil:
		return nil, common.IOError("read entry header", err)
	}

	pathBytes := make([]byte, binary.LittleEndian.Uint16(prefix[6:8]))
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: short path", common.ErrInvalidEntryHeader)
		}
		return nil, common.IOError("read entry path", err)
	}
	if !utf8.Valid(pathBytes) {
		return nil, fmt.Errorf("%w: path is not valid UTF-8", common.ErrInvalidEntryHeader)
	}

	return &common.EntryHeader{
		Path:          string(pathBytes),
		ChunkCount:    binary.LittleEndian.Uint32(prefix[0:4]),
		LastChunkSize: binary.LittleEndian.Uint16(prefix[4:6]),
		DataPos:       -1,
	}, nil
}
