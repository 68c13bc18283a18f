package archive

// ListEntry is one line of an archive listing.
type ListEntry struct {
	Ordinal int // 1-based position in the archive
	Path    string
	Length  uint64
}

// List reports every entry in archive order without reading any payload.
func (a *FctArchive) List() ([]ListEntry, error) {
	if err := a.loadHeaders(); err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(a.headers))
	for i, header := range a.headers {
		entries = append(entries, ListEntry{
			Ordinal: i + 1,
			Path:    header.Path,
			Length:  header.DataLength(a.chunkSize),
		})
	}

	return entries, nil
}
