package common

import (
	"fmt"
	"math"
)

// EntryHeader describes one archived file.
type EntryHeader struct {
	Path          string // forward-slash relative path
	ChunkCount    uint32 // number of full chunks
	LastChunkSize uint16 // size of the trailing partial chunk, 0 if none
	DataPos       int64  // position of the entry's first data block in the archive, -1 if unknown
}

// NewEntryHeader computes the chunk layout for a file of the given length.
func NewEntryHeader(path string, length uint64, chunkSize uint16) (*EntryHeader, error) {
	if chunkSize == 0 {
		return nil, ErrInvalidChunkSize
	}

	chunkCount := length / uint64(chunkSize)
	if chunkCount > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes at chunk size %d", ErrEntryTooLarge, length, chunkSize)
	}

	return &EntryHeader{
		Path:          path,
		ChunkCount:    uint32(chunkCount),
		LastChunkSize: uint16(length % uint64(chunkSize)),
		DataPos:       -1,
	}, nil
}

// HasPartialChunk returns true if the entry ends with a zero padded block.
func (h *EntryHeader) HasPartialChunk() bool {
	return h.LastChunkSize > 0
}

// BlockCount is the number of chunk sized blocks the entry occupies on disk.
func (h *EntryHeader) BlockCount() uint64 {
	blocks := uint64(h.ChunkCount)
	if h.HasPartialChunk() {
		blocks++
	}
	return blocks
}

// DataLength is the logical content length of the entry.
func (h *EntryHeader) DataLength(chunkSize uint16) uint64 {
	return uint64(h.ChunkCount)*uint64(chunkSize) + uint64(h.LastChunkSize)
}

// HeaderLength is the encoded size of the entry header.
func (h *EntryHeader) HeaderLength() int64 {
	return EntryHeaderPrefixLength + int64(len(h.Path))
}

// StoredLength is the number of payload bytes the entry occupies on disk,
// padding included. ok is false if it does not fit an int64.
func (h *EntryHeader) StoredLength(chunkSize uint16) (length int64, ok bool) {
	return MulInt64(h.BlockCount(), uint64(chunkSize))
}

func (h EntryHeader) String() string {
	return fmt.Sprintf("path=%q chunk_count=%d last_chunk_size=%d", h.Path, h.ChunkCount, h.LastChunkSize)
}
