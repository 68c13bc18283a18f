package common

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the archive engine wraps exactly one of these.
var (
	ErrFormat            = errors.New("format error")
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
	ErrIO                = errors.New("io error")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrPath              = errors.New("path error")
	ErrNotFound          = errors.New("not found")
)

var (
	ErrInvalidMagic           = fmt.Errorf("%w: unexpected archive magic", ErrFormat)
	ErrTruncatedArchiveHeader = fmt.Errorf("%w: truncated archive header", ErrFormat)
	ErrTruncatedEntryHeader   = fmt.Errorf("%w: truncated entry header", ErrFormat)
	ErrInvalidEntryHeader     = fmt.Errorf("%w: invalid entry header", ErrFormat)
	ErrInvalidChunkSize       = fmt.Errorf("%w: chunk size must be at least 1", ErrFormat)

	ErrChunkSizeTooLarge = fmt.Errorf("%w: chunk size above %d", ErrSizeLimitExceeded, MaxChunkSize)
	ErrEntryTooLarge     = fmt.Errorf("%w: file too large for chunk count field", ErrSizeLimitExceeded)
	ErrPathTooLong       = fmt.Errorf("%w: path too long for header", ErrSizeLimitExceeded)

	ErrReadOnlySource  = fmt.Errorf("%w: source file is read-only", ErrPermissionDenied)
	ErrReadOnlyArchive = fmt.Errorf("%w: archive opened read-only", ErrPermissionDenied)

	ErrPathResolution = fmt.Errorf("%w: could not resolve relative path", ErrPath)
	ErrUnsafePath     = fmt.Errorf("%w: stored path escapes output directory", ErrPath)
	ErrNotRegularFile = fmt.Errorf("%w: not a regular file", ErrPath)

	ErrEntryNotFound = fmt.Errorf("%w: entry index out of range", ErrNotFound)
	ErrEmptyArchive  = fmt.Errorf("%w: no files in archive", ErrNotFound)
)

// IOError wraps an underlying read/write/seek/create failure. The original error
// stays in the chain.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
