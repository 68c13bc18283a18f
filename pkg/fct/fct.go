package fct

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/fct/pkg/archive"
	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/pathutil"
	"github.com/beam-cloud/fct/pkg/storage"
)

// SetLogLevel configures the logging verbosity for the fct library.
// Valid levels: "debug", "info", "warn", "error", "disabled"
// Use "debug" to see seek fallbacks and header scans
// Use "info" for per-file operation logs (default)
// Use "disabled" to suppress all logs
func SetLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "disabled", "none", "off":
		zerolog.SetGlobalLevel(zerolog.Disabled)
	default:
		return fmt.Errorf("invalid log level %q: must be one of: debug, info, warn, error, disabled", level)
	}
	return nil
}

// ErrPartialFailure is returned when a batch finished but some files failed.
var ErrPartialFailure = errors.New("some files failed")

type CreateOptions struct {
	ArchivePath string
	ChunkSize   int
	InputPaths  []string
	RootDir     string
}

type AppendOptions struct {
	ArchivePath string
	InputPaths  []string
	RootDir     string
}

type ExtractOptions struct {
	ArchivePath string
	OutputPath  string
	Indices     []int // 0-based; empty extracts everything
}

type RemoveOptions struct {
	ArchivePath string
	Indices     []int // 0-based
}

type StoreOptions struct {
	ArchivePath  string
	Storage      storage.ArchiveStorageOpts
	ProgressChan chan<- int
}

type FetchOptions struct {
	DestPath string
	Storage  storage.ArchiveStorageOpts
}

// BatchResult lists the files a batch operation could not handle.
type BatchResult struct {
	Failed []string
}

func (r BatchResult) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrPartialFailure, strings.Join(r.Failed, ", "))
}

func archiveOptions(rootDir string) []archive.FctArchiveOption {
	if rootDir == "" {
		return nil
	}
	return []archive.FctArchiveOption{archive.WithRootDir(rootDir)}
}

// CreateArchive writes a new archive and adds the inputs to it. Directories are
// expanded recursively.
func CreateArchive(options CreateOptions) (BatchResult, error) {
	chunkSize, err := common.ValidateChunkSize(options.ChunkSize)
	if err != nil {
		return BatchResult{}, err
	}

	inputs, err := pathutil.ExpandPaths(options.InputPaths)
	if err != nil {
		return BatchResult{}, err
	}

	log.Info().Msgf("creating archive %s with chunk size %d", options.ArchivePath, chunkSize)

	a, err := archive.Create(options.ArchivePath, chunkSize, archiveOptions(options.RootDir)...)
	if err != nil {
		return BatchResult{}, err
	}
	defer a.Close()

	result := BatchResult{Failed: a.AppendMany(inputs)}
	log.Info().Msgf("added %d of %d files", len(inputs)-len(result.Failed), len(inputs))
	return result, nil
}

// AppendToArchive adds the inputs to an existing archive.
func AppendToArchive(options AppendOptions) (BatchResult, error) {
	inputs, err := pathutil.ExpandPaths(options.InputPaths)
	if err != nil {
		return BatchResult{}, err
	}

	a, err := archive.Open(options.ArchivePath, archiveOptions(options.RootDir)...)
	if err != nil {
		return BatchResult{}, err
	}
	defer a.Close()

	result := BatchResult{Failed: a.AppendMany(inputs)}
	log.Info().Msgf("added %d of %d files", len(inputs)-len(result.Failed), len(inputs))
	return result, nil
}

// ExtractArchive writes the selected entries into OutputPath.
func ExtractArchive(options ExtractOptions) (BatchResult, error) {
	log.Info().Msgf("extracting archive: %s", options.ArchivePath)

	a, err := archive.OpenReadOnly(options.ArchivePath)
	if err != nil {
		return BatchResult{}, err
	}
	defer a.Close()

	failed, err := a.ExtractMany(options.OutputPath, options.Indices)
	return BatchResult{Failed: failed}, err
}

// ListArchive returns the entries of an archive in order.
func ListArchive(archivePath string) ([]archive.ListEntry, error) {
	a, err := archive.OpenReadOnly(archivePath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	entries, err := a.List()
	if err != nil {
		return nil, err
	}
	if a.Corrupt() {
		log.Warn().Msgf("%s ends in a damaged entry, listing may be incomplete", archivePath)
	}
	return entries, nil
}

// RemoveFromArchive rewrites the archive without the given entries.
func RemoveFromArchive(options RemoveOptions) error {
	a, err := archive.Open(options.ArchivePath)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Remove(options.Indices); err != nil {
		return err
	}

	log.Info().Msgf("removed %d entries from %s", countUnique(options.Indices), options.ArchivePath)
	return nil
}

// countUnique returns how many distinct indices are in indices.
func countUnique(indices []int) int {
	unique := slices.Clone(indices)
	slices.Sort(unique)
	return len(slices.Compact(unique))
}

// StoreArchive copies a local archive into remote storage.
func StoreArchive(ctx context.Context, options StoreOptions) error {
	s, err := storage.NewArchiveStorage(ctx, options.Storage)
	if err != nil {
		return err
	}

	log.Info().Msgf("storing archive %s (%s)", options.ArchivePath, s.Mode())
	return s.Upload(ctx, options.ArchivePath, options.ProgressChan)
}

// FetchArchive downloads an archive from remote storage to DestPath.
func FetchArchive(ctx context.Context, options FetchOptions) error {
	s, err := storage.NewArchiveStorage(ctx, options.Storage)
	if err != nil {
		return err
	}

	if err := s.Download(ctx, options.DestPath); err != nil {
		return err
	}

	fi, err := os.Stat(options.DestPath)
	if err == nil {
		log.Info().Msgf("archive fetched: %s (size: %d bytes)", options.DestPath, fi.Size())
	}
	return nil
}
