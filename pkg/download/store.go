package download

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/entrhq/snare/pkg/files"
	"github.com/entrhq/snare/pkg/proxy"
	"github.com/entrhq/snare/pkg/security/workspace"
)

// Store writes captured responses below a downloads directory, each into its
// own <unique-id>/ subdirectory so equal names never collide.
type Store struct {
	guard *workspace.Guard
}

// NewStore creates dir if needed. Failures are reported as *IOError.
func NewStore(dir string) (*Store, error) {
	guard, err := workspace.NewGuard(dir)
	if err != nil {
		return nil, &IOError{Op: "prepare downloads directory", Path: dir, Err: err}
	}
	return &Store{guard: guard}, nil
}

// Dir returns the absolute downloads directory.
func (s *Store) Dir() string {
	return s.guard.RootDir()
}

// Save persists resp under its sanitized name.
func (s *Store) Save(resp *proxy.CapturedResponse) (*files.DownloadedFile, error) {
	name := files.Sanitize(resp.Name)
	target, err := uniqueTarget(s.guard, name)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(target, resp.Body, 0o644); err != nil {
		return nil, &IOError{Op: "write", Path: target, Err: err}
	}

	return &files.DownloadedFile{
		Name:        name,
		Path:        target,
		Size:        int64(len(resp.Body)),
		Content:     resp.Body,
		URL:         resp.URL,
		ContentType: resp.ContentType,
	}, nil
}

// uniqueTarget returns <root>/<unique-id>/<name>, with the directory created.
func uniqueTarget(guard *workspace.Guard, name string) (string, error) {
	target, err := guard.Join(uuid.NewString(), name)
	if err != nil {
		return "", &IOError{Op: "place", Path: name, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", &IOError{Op: "create directory", Path: filepath.Dir(target), Err: err}
	}
	return target, nil
}
