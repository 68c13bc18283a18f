package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	log "github.com/rs/zerolog/log"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/metrics"
)

// ExtractOne writes entry index (0-based) into outputDir. An existing output
// file is left untouched.
func (a *FctArchive) ExtractOne(outputDir string, index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %d", common.ErrEntryNotFound, index)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return common.IOError("create output directory", err)
	}
	if err := a.seekToStart(); err != nil {
		return err
	}

	for i := 0; i < index; i++ {
		if _, err := a.advanceOverEntry(); err != nil {
			return entryLookupError(index, err)
		}
	}

	header, err := a.readEntryHeader()
	if err != nil {
		return entryLookupError(index, err)
	}

	destPath, err := outputPath(outputDir, header.Path)
	if err != nil {
		metrics.RecordExtract(0, false, false)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		metrics.RecordExtract(0, false, false)
		return common.IOError("create output directory", err)
	}

	_, err = a.extractEntry(destPath, header)
	return err
}

// ExtractMany writes the entries at the given 0-based indices into outputDir in
// one pass over the archive. No indices means every entry. Entries that could
// not be written are returned by destination path and do not stop the batch.
func (a *FctArchive) ExtractMany(outputDir string, indices []int) ([]string, error) {
	if err := a.loadHeaders(); err != nil {
		return nil, err
	}

	selected, err := selectIndices(indices, len(a.headers))
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		var failed []string
		for _, i := range selected {
			failed = append(failed, filepath.Join(outputDir, filepath.FromSlash(a.headers[i].Path)))
		}
		return failed, common.IOError("create output directory", err)
	}

	if err := a.seekToStart(); err != nil {
		return nil, err
	}

	var (
		failed  []string
		lastDir string
		next    int
	)

	for i := range a.headers {
		if next == len(selected) {
			break
		}

		if selected[next] != i {
			if _, err := a.advanceOverEntry(); err != nil {
				return failed, err
			}
			continue
		}
		next++

		header, err := a.readEntryHeader()
		if err != nil {
			return failed, err
		}

		destPath, err := a.prepareOutput(outputDir, header, &lastDir)
		if err != nil {
			log.Error().Err(err).Msgf("error extracting %s", header.Path)
			failed = append(failed, failedPath(outputDir, header.Path, destPath))
			if err := a.skipEntryData(header); err != nil {
				return failed, err
			}
			continue
		}

		if _, err := a.extractEntry(destPath, header); err != nil {
			log.Error().Err(err).Msgf("error extracting %s", destPath)
			failed = append(failed, destPath)
			if err := a.seekPastEntry(header); err != nil {
				return failed, err
			}
		}
	}

	return failed, nil
}

func (a *FctArchive) prepareOutput(outputDir string, header *common.EntryHeader, lastDir *string) (string, error) {
	destPath, err := outputPath(outputDir, header.Path)
	if err != nil {
		metrics.RecordExtract(0, false, false)
		return "", err
	}

	dir := filepath.Dir(destPath)
	if dir != *lastDir {
		if err := os.MkdirAll(dir, 0755); err != nil {
			metrics.RecordExtract(0, false, false)
			return destPath, common.IOError("create output directory", err)
		}
		*lastDir = dir
	}

	return destPath, nil
}

// extractEntry writes the payload at the cursor to destPath. The cursor ends
// after the entry's data when err is nil. skipped is true if destPath already existed.
func (a *FctArchive) extractEntry(destPath string, header *common.EntryHeader) (skipped bool, err error) {
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		log.Info().Msgf("file %s already exists, skipping", destPath)
		metrics.RecordExtract(0, true, true)
		return true, a.skipEntryData(header)
	}
	if err != nil {
		metrics.RecordExtract(0, false, false)
		return false, common.IOError("create output file", err)
	}

	log.Info().Msgf("extracting file: %s", destPath)

	w := bufio.NewWriterSize(out, writeBufferSize)
	err = readEntryData(w, a.archiveFile, header, a.chunkSize, false, a.buf)
	if err == nil {
		err = common.IOError("flush output file", w.Flush())
	}
	if closeErr := out.Close(); err == nil {
		err = common.IOError("close output file", closeErr)
	}

	if err != nil {
		os.Remove(destPath)
		metrics.RecordExtract(0, false, false)
		return false, err
	}

	metrics.RecordExtract(int64(header.DataLength(a.chunkSize)), false, true)
	return false, nil
}

// outputPath joins a stored path onto outputDir, refusing paths that would land
// outside of it.
func outputPath(outputDir string, storedPath string) (string, error) {
	local := filepath.FromSlash(storedPath)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("%w: %q", common.ErrUnsafePath, storedPath)
	}
	return filepath.Join(outputDir, local), nil
}

func failedPath(outputDir, storedPath, destPath string) string {
	if destPath != "" {
		return destPath
	}
	return filepath.Join(outputDir, storedPath)
}

// selectIndices sorts and dedupes the requested indices. An empty request selects all.
func selectIndices(indices []int, count int) ([]int, error) {
	if len(indices) == 0 {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	selected := slices.Clone(indices)
	slices.Sort(selected)
	selected = slices.Compact(selected)

	if selected[0] < 0 || selected[len(selected)-1] >= count {
		return nil, fmt.Errorf("%w: archive has %d entries", common.ErrEntryNotFound, count)
	}
	return selected, nil
}

func entryLookupError(index int, err error) error {
	if err == io.EOF || errors.Is(err, common.ErrFormat) {
		return fmt.Errorf("%w: %d", common.ErrEntryNotFound, index)
	}
	return err
}
