package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"

	log "github.com/rs/zerolog/log"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/metrics"
)

const writeBufferSize = 256 * 1024

// Append adds the regular file at sourcePath to the end of the archive. On
// failure the archive is truncated back to its previous length.
func (a *FctArchive) Append(sourcePath string) error {
	if err := a.ensureWritable(); err != nil {
		return err
	}

	header, err := a.newEntryHeader(sourcePath)
	if err != nil {
		metrics.RecordAppend(0, false)
		return err
	}

	if err := a.appendEntry(sourcePath, header); err != nil {
		metrics.RecordAppend(0, false)
		return fmt.Errorf("error adding %s: %w", sourcePath, err)
	}

	metrics.RecordAppend(int64(header.DataLength(a.chunkSize)), true)
	return nil
}

// AppendMany appends each path in turn and returns the ones that failed.
// Entries appended before a failure are kept.
func (a *FctArchive) AppendMany(sourcePaths []string) []string {
	var failed []string

	for _, sourcePath := range sourcePaths {
		if err := a.Append(sourcePath); err != nil {
			log.Error().Err(err).Msgf("error adding file %s", sourcePath)
			failed = append(failed, sourcePath)
		}
	}

	return failed
}

func (a *FctArchive) newEntryHeader(sourcePath string) (*common.EntryHeader, error) {
	fi, err := os.Stat(sourcePath)
	if err != nil {
		return nil, common.IOError("stat source", err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", common.ErrNotRegularFile, sourcePath)
	}
	if fi.Mode().Perm()&0o222 == 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrReadOnlySource, sourcePath)
	}

	storedPath, err := a.storedPath(sourcePath)
	if err != nil {
		return nil, err
	}

	return common.NewEntryHeader(storedPath, uint64(fi.Size()), a.chunkSize)
}

func (a *FctArchive) storedPath(sourcePath string) (string, error) {
	root := a.rootDir
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("%w: %v", common.ErrPathResolution, err)
		}
		root = wd
	}

	storedPath, err := a.relativize(root, sourcePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", common.ErrPathResolution, sourcePath, err)
	}
	return storedPath, nil
}

func (a *FctArchive) appendEntry(sourcePath string, header *common.EntryHeader) error {
	headerBytes, err := EncodeEntryHeader(header)
	if err != nil {
		return err
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return common.IOError("open source", err)
	}
	defer src.Close()

	if a.corrupt {
		if err := a.dropDamagedTail(); err != nil {
			return err
		}
	}

	end, err := a.archiveFile.Seek(0, io.SeekEnd)
	if err != nil {
		return common.IOError("seek to end of archive", err)
	}

	log.Info().Msgf("adding file: %s", header.Path)

	w := bufio.NewWriterSize(a.archiveFile, writeBufferSize)
	err = func() error {
		if _, err := w.Write(headerBytes); err != nil {
			return common.IOError("write entry header", err)
		}
		if err := writeEntryData(w, src, header, a.chunkSize, a.buf); err != nil {
			return err
		}
		return common.IOError("flush archive", w.Flush())
	}()
	if err != nil {
		a.truncate(end)
		return err
	}

	header.DataPos = end + header.HeaderLength()
	if !a.headersStale {
		a.headers = append(a.headers, header)
	}

	return nil
}

// dropDamagedTail cuts the archive back to the end of the last entry the scan
// accepted, so the next entry is written where a scan will find it.
func (a *FctArchive) dropDamagedTail() error {
	if err := a.loadHeaders(); err != nil {
		return err
	}
	if !a.corrupt {
		return nil
	}

	validEnd := int64(common.FctHeaderLength)
	if n := len(a.headers); n > 0 {
		last := a.headers[n-1]
		stored, _ := last.StoredLength(a.chunkSize)
		validEnd = last.DataPos + stored
	}

	log.Warn().Int64("size", validEnd).Msgf("dropping damaged entries at the end of %s before appending", a.archivePath)
	if err := a.archiveFile.Truncate(validEnd); err != nil {
		return common.IOError("truncate damaged tail", err)
	}
	a.corrupt = false
	return nil
}

// truncate drops a half written entry.
func (a *FctArchive) truncate(size int64) {
	if err := a.archiveFile.Truncate(size); err != nil {
		log.Error().Err(err).Msgf("error truncating %s after failed append", a.archivePath)
		a.headersStale = true
	}
}
