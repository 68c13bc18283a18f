package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/rs/zerolog/log"

	common "github.com/beam-cloud/fct/pkg/common"
	"github.com/beam-cloud/fct/pkg/metrics"
	"github.com/beam-cloud/fct/pkg/pathutil"
)

// Relativizer maps a source file path to the path stored in the archive.
type Relativizer func(root string, path string) (string, error)

type FctArchiveOption func(*FctArchive)

// WithRootDir sets the directory stored paths are made relative to.
// Defaults to the process working directory.
func WithRootDir(dir string) FctArchiveOption {
	return func(a *FctArchive) {
		a.rootDir = dir
	}
}

func WithRelativizer(fn Relativizer) FctArchiveOption {
	return func(a *FctArchive) {
		a.relativize = fn
	}
}

// WithReadOnly opens the archive without write access. Append and Remove
// return ErrReadOnlyArchive.
func WithReadOnly() FctArchiveOption {
	return func(a *FctArchive) {
		a.readOnly = true
	}
}

// FctArchive owns one archive file and the cached index of its entry headers.
// It is not safe for concurrent use.
type FctArchive struct {
	archivePath string
	archiveFile *os.File
	chunkSize   uint16

	headers      []*common.EntryHeader
	headersStale bool
	corrupt      bool

	rootDir    string
	relativize Relativizer
	readOnly   bool

	buf []byte
}

func newFctArchive(archivePath string, file *os.File, chunkSize uint16, opts []FctArchiveOption) *FctArchive {
	a := &FctArchive{
		archivePath: archivePath,
		archiveFile: file,
		chunkSize:   chunkSize,
		relativize:  pathutil.Relativize,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.buf = newTransferBuffer(chunkSize)
	return a
}

// Create writes a new, empty archive at archivePath, truncating any existing file.
func Create(archivePath string, chunkSize uint16, opts ...FctArchiveOption) (*FctArchive, error) {
	if chunkSize == 0 {
		return nil, common.ErrInvalidChunkSize
	}

	header := common.NewArchiveHeader(chunkSize)
	headerBytes, err := common.EncodeArchiveHeader(&header)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(archivePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, common.IOError("create archive", err)
	}

	if _, err := file.Write(headerBytes); err != nil {
		file.Close()
		os.Remove(archivePath)
		return nil, common.IOError("write archive header", err)
	}

	a := newFctArchive(archivePath, file, chunkSize, opts)
	a.readOnly = false
	return a, nil
}

// Open opens an existing archive and verifies its header. The header index is
// built on first use.
func Open(archivePath string, opts ...FctArchiveOption) (*FctArchive, error) {
	probe := &FctArchive{}
	for _, opt := range opts {
		opt(probe)
	}

	flag := os.O_RDWR
	if probe.readOnly {
		flag = os.O_RDONLY
	}

	file, err := os.OpenFile(archivePath, flag, 0)
	if err != nil {
		return nil, common.IOError("open archive", err)
	}

	header, err := common.ReadArchiveHeader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}

	a := newFctArchive(archivePath, file, header.ChunkSize, opts)
	a.headersStale = true
	return a, nil
}

// OpenReadOnly is shorthand for Open with WithReadOnly.
func OpenReadOnly(archivePath string, opts ...FctArchiveOption) (*FctArchive, error) {
	return Open(archivePath, append(opts, WithReadOnly())...)
}

func (a *FctArchive) Close() error {
	if a.archiveFile == nil {
		return nil
	}
	err := a.archiveFile.Close()
	a.archiveFile = nil
	return common.IOError("close archive", err)
}

func (a *FctArchive) ChunkSize() uint16 {
	return a.chunkSize
}

func (a *FctArchive) Path() string {
	return a.archivePath
}

// Corrupt reports whether the last header scan stopped on a damaged entry
// header instead of a clean end of file.
func (a *FctArchive) Corrupt() bool {
	return a.corrupt
}

// Headers returns a copy of the header index, rebuilding it if stale.
func (a *FctArchive) Headers() ([]common.EntryHeader, error) {
	if err := a.loadHeaders(); err != nil {
		return nil, err
	}

	headers := make([]common.EntryHeader, len(a.headers))
	for i, header := range a.headers {
		headers[i] = *header
	}
	return headers, nil
}

// ReadEntryAt reads logical content of header starting at off. It does not move
// the archive cursor and is safe to call concurrently with other ReadEntryAt calls.
func (a *FctArchive) ReadEntryAt(header *common.EntryHeader, dest []byte, off int64) (int, error) {
	if header.DataPos < 0 {
		return 0, fmt.Errorf("%w: no data position for %s", common.ErrNotFound, header.Path)
	}

	length := int64(header.DataLength(a.chunkSize))
	if off >= length {
		return 0, io.EOF
	}
	if remaining := length - off; int64(len(dest)) > remaining {
		dest = dest[:remaining]
	}

	n, err := a.archiveFile.ReadAt(dest, header.DataPos+off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, common.IOError("read entry", err)
	}
	if n < len(dest) {
		return n, common.IOError("read entry", io.ErrUnexpectedEOF)
	}
	return n, nil
}

func (a *FctArchive) ensureWritable() error {
	if a.readOnly {
		return common.ErrReadOnlyArchive
	}
	return nil
}

// seekToStart positions the cursor at the first entry header.
func (a *FctArchive) seekToStart() error {
	_, err := a.archiveFile.Seek(common.FctHeaderLength, io.SeekStart)
	return common.IOError("seek to first entry", err)
}

// readEntryHeader decodes the header at the cursor and records where its data begins.
func (a *FctArchive) readEntryHeader() (*common.EntryHeader, error) {
	header, err := ReadEntryHeader(a.archiveFile)
	if err != nil {
		return nil, err
	}
	if header.LastChunkSize >= a.chunkSize {
		return nil, fmt.Errorf("%w: last chunk size %d with chunk size %d", common.ErrInvalidEntryHeader, header.LastChunkSize, a.chunkSize)
	}

	pos, err := a.archiveFile.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, common.IOError("locate entry data", err)
	}
	header.DataPos = pos

	return header, nil
}

// advanceOverEntry decodes the header at the cursor and leaves the cursor at
// the next entry header.
func (a *FctArchive) advanceOverEntry() (*common.EntryHeader, error) {
	header, err := a.readEntryHeader()
	if err != nil {
		return nil, err
	}
	if err := a.skipEntryData(header); err != nil {
		return nil, err
	}
	return header, nil
}

// skipEntryData moves the cursor forward over the stored blocks of header.
func (a *FctArchive) skipEntryData(header *common.EntryHeader) error {
	if distance, ok := header.StoredLength(a.chunkSize); ok {
		_, err := a.archiveFile.Seek(distance, io.SeekCurrent)
		return common.IOError("skip entry data", err)
	}

	log.Debug().Str("path", header.Path).Msg("skip distance overflows, seeking chunk by chunk")
	for i := uint64(0); i < header.BlockCount(); i++ {
		if _, err := a.archiveFile.Seek(int64(a.chunkSize), io.SeekCurrent); err != nil {
			return common.IOError("skip entry data", err)
		}
	}
	return nil
}

// seekPastEntry positions the cursor after header's data, wherever the cursor was.
func (a *FctArchive) seekPastEntry(header *common.EntryHeader) error {
	if _, err := a.archiveFile.Seek(header.DataPos, io.SeekStart); err != nil {
		return common.IOError("seek to entry data", err)
	}
	return a.skipEntryData(header)
}

// loadHeaders rebuilds the header index when it is stale. A damaged header ends
// the scan like end of file does; the entries before it stay usable.
func (a *FctArchive) loadHeaders() error {
	if !a.headersStale {
		return nil
	}

	start := time.Now()

	fi, err := a.archiveFile.Stat()
	if err != nil {
		return common.IOError("stat archive", err)
	}
	if err := a.seekToStart(); err != nil {
		return err
	}

	headers := make([]*common.EntryHeader, 0, len(a.headers))
	corrupt := false

	for {
		header, err := a.advanceOverEntry()
		if err == io.EOF {
			break
		}
		if errors.Is(err, common.ErrFormat) {
			log.Warn().Err(err).Int("entries", len(headers)).Msgf("damaged entry header in %s, treating as end of archive", a.archivePath)
			corrupt = true
			break
		}
		if err != nil {
			return err
		}

		if stored, ok := header.StoredLength(a.chunkSize); !ok || header.DataPos+stored > fi.Size() {
			log.Warn().Str("path", header.Path).Msgf("entry data in %s is truncated, treating as end of archive", a.archivePath)
			corrupt = true
			break
		}

		headers = append(headers, header)
	}

	a.headers = headers
	a.headersStale = false
	a.corrupt = corrupt

	metrics.RecordScan(len(headers), time.Since(start))
	return nil
}
