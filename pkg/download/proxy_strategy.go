package download

import (
	"context"
	"errors"

	"github.com/entrhq/snare/pkg/files"
	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/proxy"
)

// proxyStrategy reads the responses captured while its queue is attached.
type proxyStrategy struct {
	interceptor  Interceptor
	downloadsDir string
	logger       *logging.Logger

	store  *Store
	queue  *proxy.CaptureQueue
	offset int
	seen   []string
}

func newProxyStrategy(interceptor Interceptor, downloadsDir string, logger *logging.Logger) *proxyStrategy {
	return &proxyStrategy{interceptor: interceptor, downloadsDir: downloadsDir, logger: logger}
}

func (s *proxyStrategy) arm(_ context.Context) error {
	store, err := NewStore(s.downloadsDir)
	if err != nil {
		return err
	}

	queue, err := s.interceptor.Attach()
	if err != nil {
		if errors.Is(err, proxy.ErrQueueAttached) {
			return &ProxyUnavailableError{Reason: "another download is already in progress on " + s.interceptor.Endpoint(), Err: err}
		}
		return &ProxyUnavailableError{Reason: "cannot attach to " + s.interceptor.Endpoint(), Err: err}
	}

	s.store = store
	s.queue = queue
	return nil
}

func (s *proxyStrategy) poll(_ context.Context, filter files.Filter) (*files.DownloadedFile, error) {
	captured := s.queue.Since(s.offset)
	s.offset += len(captured)

	for _, resp := range captured {
		s.seen = append(s.seen, resp.Name)
		if !matches(filter, resp.Name, files.Sanitize(resp.Name)) {
			s.logger.Debugf("Ignoring captured %q from %s", resp.Name, resp.URL)
			continue
		}

		file, err := s.store.Save(resp)
		if err != nil {
			return nil, err
		}
		s.logger.Infof("Saved %q (%d bytes) from %s to %s", file.Name, file.Size, file.URL, file.Path)
		return file, nil
	}
	return nil, nil
}

func (s *proxyStrategy) observed() []string {
	return s.seen
}

func (s *proxyStrategy) release() {
	s.interceptor.Detach(s.queue)
}
