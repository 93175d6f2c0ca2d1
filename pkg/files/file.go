package files

import (
	"fmt"
	"os"
)

// DownloadedFile is the single artifact produced by one download request.
// Ownership passes to the caller: snare never modifies or removes it afterwards.
type DownloadedFile struct {
	// Name is the sanitized file name
	Name string

	// Path is the absolute location of the file on disk
	Path string

	// Size is the file size in bytes
	Size int64

	// Content holds the captured bytes when the file came through the proxy.
	// It is nil for files picked up from the downloads folder.
	Content []byte

	// URL is the address the file was served from, when known
	URL string

	// ContentType is the media type reported by the server, when known
	ContentType string
}

// ReadAll returns the file contents, using the in-memory copy when present.
func (f *DownloadedFile) ReadAll() ([]byte, error) {
	if f.Content != nil {
		return f.Content, nil
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read downloaded file: %w", err)
	}
	return data, nil
}

// String returns the file path, so a DownloadedFile prints like a file handle.
func (f *DownloadedFile) String() string {
	return f.Path
}
