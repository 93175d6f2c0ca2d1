package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/snare/pkg/files"
	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/metrics"
)

// DefaultPollInterval is how often strategies are checked after the action.
const DefaultPollInterval = 50 * time.Millisecond

// Metrics receives one Started/Finished pair per request that passes
// validation. *metrics.Recorder implements it.
type Metrics interface {
	Started()
	Finished(mode, outcome string, elapsed time.Duration)
	FileDelivered(mode string, size int64)
}

var _ Metrics = (*metrics.Recorder)(nil)

type nopMetrics struct{}

func (nopMetrics) Started()                               {}
func (nopMetrics) Finished(string, string, time.Duration) {}
func (nopMetrics) FileDelivered(string, int64)            {}

// Coordinator runs download requests. It holds configuration only and is safe
// for concurrent use across sessions.
type Coordinator struct {
	logger       *logging.Logger
	metrics      Metrics
	pollInterval time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:       logging.Nop(),
		metrics:      nopMetrics{},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Download arms the requested strategy, runs the action once and waits until
// a file matching the filter is available or the timeout, measured from the
// start of the call, has passed.
//
// An error returned by the action is returned unchanged and no polling takes
// place. Timeouts produce a *FileNotFoundError, storage problems an *IOError,
// and a ModeProxy request on a session without a proxy a
// *ProxyUnavailableError. Cancelling ctx stops the wait with ctx.Err().
func (c *Coordinator) Download(ctx context.Context, session Session, req Request) (*files.DownloadedFile, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: session is required", ErrInvalidRequest)
	}
	mode := req.Mode.String()

	s, err := c.strategyFor(session, req.Mode)
	if err != nil {
		c.logger.Warnf("Download %s rejected: %v", req.Filter.Description(), err)
		c.metrics.Started()
		c.metrics.Finished(mode, metrics.OutcomeUnavailable, time.Since(start))
		return nil, err
	}

	c.metrics.Started()
	file, outcome, err := c.run(ctx, session, req, s, start)
	elapsed := time.Since(start)
	c.metrics.Finished(mode, outcome, elapsed)

	if err != nil {
		c.logger.Warnf("Download failed after %v (%s): %v", elapsed, outcome, err)
		return nil, err
	}
	c.metrics.FileDelivered(mode, file.Size)
	c.logger.Infof("Downloaded %q in %v via %s", file.Name, elapsed, mode)
	return file, nil
}

// DownloadWith is Download for callers that do not need a Request value.
func (c *Coordinator) DownloadWith(ctx context.Context, session Session, filter files.Filter, timeout time.Duration, mode Mode, action Action) (*files.DownloadedFile, error) {
	return c.Download(ctx, session, Request{Filter: filter, Timeout: timeout, Mode: mode, Action: action})
}

func (c *Coordinator) run(ctx context.Context, session Session, req Request, s strategy, start time.Time) (*files.DownloadedFile, string, error) {
	deadline := start.Add(req.Timeout)

	if err := s.arm(ctx); err != nil {
		return nil, outcomeOf(err), err
	}
	defer s.release()

	c.logger.Debugf("Armed %s strategy, running action", req.Mode)
	if err := session.Run(ctx, req.Action); err != nil {
		return nil, metrics.OutcomeActionError, err
	}

	for {
		file, err := s.poll(ctx, req.Filter)
		if err != nil {
			return nil, outcomeOf(err), err
		}
		if file != nil {
			return file, metrics.OutcomeSuccess, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, metrics.OutcomeNotFound, &FileNotFoundError{
				Description: req.Description,
				Filter:      req.Filter.Description(),
				Mode:        req.Mode,
				Timeout:     req.Timeout,
				Elapsed:     time.Since(start),
				Observed:    append([]string(nil), s.observed()...),
			}
		}

		wait := time.NewTimer(min(c.pollInterval, remaining))
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, metrics.OutcomeCanceled, ctx.Err()
		case <-wait.C:
		}
	}
}

func (c *Coordinator) strategyFor(session Session, mode Mode) (strategy, error) {
	dir := ResolveDownloadsDir(session.DownloadsDir())

	switch mode {
	case ModeProxy:
		interceptor := session.Interceptor()
		if interceptor == nil {
			return nil, &ProxyUnavailableError{Reason: "session was started without a traffic proxy"}
		}
		if interceptor.Endpoint() == "" {
			return nil, &ProxyUnavailableError{Reason: "traffic proxy is not listening"}
		}
		return newProxyStrategy(interceptor, dir, c.logger), nil
	default:
		return newFolderStrategy(dir, c.logger), nil
	}
}

// ResolveDownloadsDir returns dir, or a directory under os.TempDir when dir
// is empty.
func ResolveDownloadsDir(dir string) string {
	if dir == "" {
		return filepath.Join(os.TempDir(), "snare-downloads")
	}
	return dir
}

func outcomeOf(err error) string {
	var ioErr *IOError
	var unavailable *ProxyUnavailableError
	switch {
	case errors.As(err, &ioErr):
		return metrics.OutcomeIOError
	case errors.As(err, &unavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeActionError
	}
}
