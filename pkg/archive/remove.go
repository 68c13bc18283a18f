package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/rs/zerolog/log"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/metrics"
)

// Remove deletes the entries at the given 0-based indices by rewriting the
// archive without them and renaming the rewrite over the original. The original
// file is untouched if anything fails before the rename.
func (a *FctArchive) Remove(indices []int) error {
	if err := a.ensureWritable(); err != nil {
		return err
	}
	if err := a.loadHeaders(); err != nil {
		return err
	}
	if len(a.headers) == 0 {
		return common.ErrEmptyArchive
	}
	if len(indices) == 0 {
		return nil
	}

	selected, err := selectIndices(indices, len(a.headers))
	if err != nil {
		return err
	}
	remove := make(map[int]struct{}, len(selected))
	for _, i := range selected {
		remove[i] = struct{}{}
	}

	tmpPath := fmt.Sprintf("%s.%s.tmp", a.archivePath, uuid.New().String()[:8])
	tmp, err := Create(tmpPath, a.chunkSize)
	if err != nil {
		return fmt.Errorf("could not create temporary archive: %w", err)
	}
	discard := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := a.rewriteInto(tmp, remove); err != nil {
		discard()
		return err
	}
	if err := tmp.archiveFile.Sync(); err != nil {
		discard()
		return common.IOError("sync temporary archive", err)
	}

	if err := a.archiveFile.Close(); err != nil {
		log.Warn().Err(err).Msgf("error closing %s before replace", a.archivePath)
	}
	if err := os.Rename(tmpPath, a.archivePath); err != nil {
		discard()
		a.reopen()
		return common.IOError("replace archive", err)
	}

	a.archiveFile = tmp.archiveFile
	a.headers = nil
	a.headersStale = true
	a.corrupt = false

	metrics.RecordRewrite(len(remove))
	return nil
}

// rewriteInto copies every indexed entry not in remove into dst, padding
// included. A damaged tail left out of the index is not copied.
func (a *FctArchive) rewriteInto(dst *FctArchive, remove map[int]struct{}) error {
	if a.corrupt {
		log.Warn().Msgf("dropping damaged entries at the end of %s", a.archivePath)
	}

	w := bufio.NewWriterSize(dst.archiveFile, writeBufferSize)

	for index, header := range a.headers {
		if _, ok := remove[index]; ok {
			log.Info().Msgf("removing file: %s", header.Path)
			continue
		}

		headerBytes, err := EncodeEntryHeader(header)
		if err != nil {
			return err
		}
		if _, err := w.Write(headerBytes); err != nil {
			return common.IOError("write entry header", err)
		}

		if _, err := a.archiveFile.Seek(header.DataPos, io.SeekStart); err != nil {
			return common.IOError("seek to entry data", err)
		}
		if err := readEntryData(w, a.archiveFile, header, a.chunkSize, true, a.buf); err != nil {
			return fmt.Errorf("error copying %s: %w", header.Path, err)
		}
	}

	return common.IOError("flush temporary archive", w.Flush())
}

// reopen restores the handle on the original archive after a failed replace.
func (a *FctArchive) reopen() {
	file, err := os.OpenFile(a.archivePath, os.O_RDWR, 0)
	if err != nil {
		log.Error().Err(err).Msgf("error reopening %s", a.archivePath)
		return
	}
	a.archiveFile = file
}
