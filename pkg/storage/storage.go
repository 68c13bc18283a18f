package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	common "github.com/beam-cloud/fct/pkg/common"
)

type StorageMode string

const (
	StorageModeLocal StorageMode = "local"
	StorageModeS3    StorageMode = "s3"
)

// ArchiveStorage keeps whole archive files in a remote or shared location.
type ArchiveStorage interface {
	// Upload copies the archive at archivePath into storage. Progress in percent
	// is sent on progressChan when it is not nil.
	Upload(ctx context.Context, archivePath string, progressChan chan<- int) error
	// Download writes the stored archive to destPath, replacing it atomically.
	Download(ctx context.Context, destPath string) error
	Mode() StorageMode
}

type ArchiveStorageOpts struct {
	Mode  StorageMode
	S3    S3ArchiveStorageOpts
	Local LocalArchiveStorageOpts
}

func NewArchiveStorage(ctx context.Context, opts ArchiveStorageOpts) (ArchiveStorage, error) {
	switch opts.Mode {
	case StorageModeS3:
		return NewS3ArchiveStorage(ctx, opts.S3)
	case StorageModeLocal:
		return NewLocalArchiveStorage(opts.Local)
	default:
		return nil, fmt.Errorf("unsupported storage type: %q", opts.Mode)
	}
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket string, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("invalid s3 uri %q: missing s3:// scheme", uri)
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: expected s3://bucket/key", uri)
	}
	return bucket, key, nil
}

// validateArchive checks that path starts with an archive header.
func validateArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return common.IOError("open archive", err)
	}
	defer f.Close()

	if _, err := common.ReadArchiveHeader(f); err != nil {
		return fmt.Errorf("%s is not an archive: %w", path, err)
	}
	return nil
}

func tempPath(path string) string {
	return fmt.Sprintf("%s.%s", path, uuid.New().String()[:6])
}

// writeValidated fills a temp file next to destPath via fill, checks the
// archive header and renames it over destPath.
func writeValidated(destPath string, fill func(f *os.File) (int64, error)) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, common.IOError("create destination directory", err)
	}

	tmp := tempPath(destPath)
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, common.IOError("create temporary file", err)
	}

	n, err := fill(f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = common.IOError("close temporary file", closeErr)
	}
	if err == nil {
		err = validateArchive(tmp)
	}
	if err == nil {
		err = common.IOError("rename into place", os.Rename(tmp, destPath))
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}

	return n, nil
}

// copyFile streams src to dst and returns the number of bytes copied.
func copyFile(dst io.Writer, srcPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, common.IOError("open source", err)
	}
	defer src.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return n, common.IOError("copy archive", err)
	}
	return n, nil
}
