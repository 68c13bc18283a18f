package archive

import (
	"errors"
	"fmt"
	"io"

	common "github.com/beam-cloud/fct/pkg/common"
)

const transferBufferSize = 512 * 1024

// newTransferBuffer returns a buffer holding a whole number of chunks, at least one.
func newTransferBuffer(chunkSize uint16) []byte {
	chunks := transferBufferSize / int(chunkSize)
	if chunks < 1 {
		chunks = 1
	}
	return make([]byte, chunks*int(chunkSize))
}

// copyFullChunks moves count chunk sized blocks from src to dst, as many per
// read as buf holds.
func copyFullChunks(dst io.Writer, src io.Reader, chunkSize uint16, count uint64, buf []byte) error {
	size := uint64(chunkSize)
	perRead := uint64(len(buf)) / size

	for count > 0 {
		n := min(count, perRead)
		block := buf[:n*size]

		if _, err := io.ReadFull(src, block); err != nil {
			return readError(err)
		}
		if _, err := dst.Write(block); err != nil {
			return common.IOError("write chunk", err)
		}

		count -= n
	}

	return nil
}

// writeEntryData copies the content described by header from src into the
// archive writer dst, zero padding the final partial chunk.
func writeEntryData(dst io.Writer, src io.Reader, header *common.EntryHeader, chunkSize uint16, buf []byte) error {
	if err := copyFullChunks(dst, src, chunkSize, uint64(header.ChunkCount), buf); err != nil {
		return err
	}
	if !header.HasPartialChunk() {
		return nil
	}

	block := buf[:chunkSize]
	if _, err := io.ReadFull(src, block[:header.LastChunkSize]); err != nil {
		return readError(err)
	}
	clear(block[header.LastChunkSize:])

	if _, err := dst.Write(block); err != nil {
		return common.IOError("write chunk", err)
	}
	return nil
}

// readEntryData copies an entry's payload from the archive reader src into dst.
// With fill set the padded final chunk is written whole, otherwise only its
// content bytes are.
func readEntryData(dst io.Writer, src io.Reader, header *common.EntryHeader, chunkSize uint16, fill bool, buf []byte) error {
	if err := copyFullChunks(dst, src, chunkSize, uint64(header.ChunkCount), buf); err != nil {
		return err
	}
	if !header.HasPartialChunk() {
		return nil
	}

	block := buf[:chunkSize]
	if _, err := io.ReadFull(src, block); err != nil {
		return readError(err)
	}
	if !fill {
		block = block[:header.LastChunkSize]
	}

	if _, err := dst.Write(block); err != nil {
		return common.IOError("write chunk", err)
	}
	return nil
}

func readError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return common.IOError("read chunk", fmt.Errorf("short read: %w", io.ErrUnexpectedEOF))
	}
	return common.IOError("read chunk", err)
}
