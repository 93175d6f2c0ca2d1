package download

import (
	"context"

	"github.com/entrhq/snare/pkg/files"
)

// strategy observes downloads for one request.
type strategy interface {
	// arm records the state before the action runs
	arm(ctx context.Context) error

	// poll checks once for a matching file and returns nil, nil if there is none yet
	poll(ctx context.Context, filter files.Filter) (*files.DownloadedFile, error)

	// observed lists candidate names seen so far, in detection order
	observed() []string

	// release undoes arm. It is called on every path after a successful arm.
	release()
}

// matches applies the filter to the sanitized name, falling back to the name
// as the server or browser reported it.
func matches(filter files.Filter, raw, sanitized string) bool {
	return filter.Matches(sanitized) || (raw != sanitized && filter.Matches(raw))
}
