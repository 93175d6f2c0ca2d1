package download

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/snare/pkg/files"
	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/security/workspace"
)

// partialSuffixes mark files a browser is still writing.
var partialSuffixes = []string{".crdownload", ".part", ".download", ".partial"}

type fileState struct {
	size    int64
	modTime time.Time
}

func (f fileState) equal(other fileState) bool {
	return f.size == other.size && f.modTime.Equal(other.modTime)
}

// folderStrategy diffs the downloads directory against a pre-action snapshot.
// A candidate is only accepted once two consecutive polls see the same size
// and modification time.
type folderStrategy struct {
	dir    string
	logger *logging.Logger

	guard    *workspace.Guard
	snapshot map[string]fileState
	previous map[string]fileState
	order    []string
	known    map[string]bool
}

func newFolderStrategy(dir string, logger *logging.Logger) *folderStrategy {
	return &folderStrategy{dir: dir, logger: logger}
}

func (s *folderStrategy) arm(_ context.Context) error {
	guard, err := workspace.NewGuard(s.dir)
	if err != nil {
		return &IOError{Op: "prepare downloads directory", Path: s.dir, Err: err}
	}
	s.guard = guard

	snapshot, err := s.scan()
	if err != nil {
		return err
	}
	s.snapshot = snapshot
	s.previous = map[string]fileState{}
	s.known = map[string]bool{}
	s.logger.Debugf("Snapshot of %s holds %d files", guard.RootDir(), len(snapshot))
	return nil
}

func (s *folderStrategy) poll(_ context.Context, filter files.Filter) (*files.DownloadedFile, error) {
	current, err := s.scan()
	if err != nil {
		return nil, err
	}

	s.detect(current)

	var found string
	candidates := make(map[string]fileState, len(s.order))
	for _, name := range s.order {
		state, ok := current[name]
		if !ok || hasPartialSibling(name, current) {
			continue
		}
		candidates[name] = state

		prev, seenBefore := s.previous[name]
		stable := seenBefore && prev.equal(state)
		if found == "" && stable && matches(filter, name, files.Sanitize(name)) {
			found = name
		}
	}
	s.previous = candidates

	if found == "" {
		return nil, nil
	}
	return s.deliver(found, current[found])
}

// detect appends newly appeared or modified files to s.order, oldest first.
func (s *folderStrategy) detect(current map[string]fileState) {
	var fresh []string
	for name, state := range current {
		if s.known[name] || isPartial(name) {
			continue
		}
		if old, existed := s.snapshot[name]; existed && old.equal(state) {
			continue
		}
		fresh = append(fresh, name)
	}

	sort.Slice(fresh, func(i, j int) bool {
		a, b := current[fresh[i]], current[fresh[j]]
		if !a.modTime.Equal(b.modTime) {
			return a.modTime.Before(b.modTime)
		}
		return fresh[i] < fresh[j]
	})

	for _, name := range fresh {
		s.known[name] = true
		s.order = append(s.order, name)
		s.logger.Debugf("Detected %q in %s", name, s.guard.RootDir())
	}
}

func (s *folderStrategy) deliver(name string, state fileState) (*files.DownloadedFile, error) {
	path := filepath.Join(s.guard.RootDir(), name)
	sanitized := files.Sanitize(name)

	if sanitized != name {
		target, err := uniqueTarget(s.guard, sanitized)
		if err != nil {
			return nil, err
		}
		if err := os.Rename(path, target); err != nil {
			return nil, &IOError{Op: "move", Path: path, Err: err}
		}
		s.logger.Infof("Moved %q to %s", name, target)
		path = target
	}

	s.logger.Infof("Found %q (%d bytes) in %s", sanitized, state.size, s.guard.RootDir())
	return &files.DownloadedFile{
		Name: sanitized,
		Path: path,
		Size: state.size,
	}, nil
}

func (s *folderStrategy) scan() (map[string]fileState, error) {
	entries, err := os.ReadDir(s.guard.RootDir())
	if err != nil {
		return nil, &IOError{Op: "list", Path: s.guard.RootDir(), Err: err}
	}

	states := make(map[string]fileState, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		states[entry.Name()] = fileState{size: info.Size(), modTime: info.ModTime()}
	}
	return states, nil
}

func (s *folderStrategy) observed() []string {
	return s.order
}

func (s *folderStrategy) release() {}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func hasPartialSibling(name string, current map[string]fileState) bool {
	for _, suffix := range partialSuffixes {
		if _, ok := current[name+suffix]; ok {
			return true
		}
	}
	return false
}
