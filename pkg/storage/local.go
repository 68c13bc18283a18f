package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	log "github.com/rs/zerolog/log"

	"github.com/beam-cloud/fct/pkg/metrics"
)

// LocalArchiveStorage keeps an archive under a directory, typically a shared mount.
type LocalArchiveStorage struct {
	storedPath string
}

type LocalArchiveStorageOpts struct {
	Dir  string
	Name string
}

func NewLocalArchiveStorage(opts LocalArchiveStorageOpts) (*LocalArchiveStorage, error) {
	if opts.Dir == "" || opts.Name == "" {
		return nil, fmt.Errorf("local storage needs a directory and a name")
	}
	if !filepath.IsLocal(opts.Name) {
		return nil, fmt.Errorf("invalid archive name %q", opts.Name)
	}

	return &LocalArchiveStorage{
		storedPath: filepath.Join(opts.Dir, opts.Name),
	}, nil
}

func (s *LocalArchiveStorage) Mode() StorageMode {
	return StorageModeLocal
}

func (s *LocalArchiveStorage) StoredPath() string {
	return s.storedPath
}

func (s *LocalArchiveStorage) Upload(ctx context.Context, archivePath string, progressChan chan<- int) error {
	if err := validateArchive(archivePath); err != nil {
		return err
	}

	start := time.Now()
	n, err := s.locked(ctx, s.storedPath, func() (int64, error) {
		return writeValidated(s.storedPath, func(f *os.File) (int64, error) {
			return copyFile(f, archivePath)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to store archive: %w", err)
	}

	if progressChan != nil {
		progressChan <- 100
	}

	log.Info().Msgf("stored %s at %s", archivePath, s.storedPath)
	metrics.RecordTransfer("upload", n, time.Since(start))
	return nil
}

func (s *LocalArchiveStorage) Download(ctx context.Context, destPath string) error {
	start := time.Now()
	n, err := s.locked(ctx, destPath, func() (int64, error) {
		return writeValidated(destPath, func(f *os.File) (int64, error) {
			return copyFile(f, s.storedPath)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to fetch archive: %w", err)
	}

	metrics.RecordTransfer("download", n, time.Since(start))
	return nil
}

func (s *LocalArchiveStorage) locked(ctx context.Context, path string, fn func() (int64, error)) (int64, error) {
	unlock, err := lockPath(ctx, path)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return fn()
}

// lockPath takes an exclusive lock next to path, waiting until ctx is done.
func lockPath(ctx context.Context, path string) (func(), error) {
	lockFilePath := fmt.Sprintf("%s.lock", path)
	if err := os.MkdirAll(filepath.Dir(lockFilePath), 0755); err != nil {
		return nil, err
	}

	fileLock := flock.New(lockFilePath)
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("error while trying to acquire file lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("could not lock %s", lockFilePath)
	}

	// The lock file is never removed; every waiter must lock the same inode.
	return func() {
		fileLock.Unlock()
	}, nil
}
