package download

import (
	"context"

	"github.com/entrhq/snare/pkg/proxy"
)

// Session is the browser collaborator a download runs against.
type Session interface {
	// Run executes the action against the browser
	Run(ctx context.Context, action Action) error

	// Interceptor returns the session's traffic proxy, or nil if it has none
	Interceptor() Interceptor

	// DownloadsDir is where the browser saves files and where captured
	// files are persisted
	DownloadsDir() string
}

// Interceptor is the part of a traffic proxy the proxy strategy needs.
// *proxy.TrafficProxy implements it.
type Interceptor interface {
	Endpoint() string
	Attach() (*proxy.CaptureQueue, error)
	Detach(q *proxy.CaptureQueue) bool
}

var _ Interceptor = (*proxy.TrafficProxy)(nil)
