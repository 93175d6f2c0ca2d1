package download

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/snare/pkg/files"
)

// Mode selects how a download is observed.
type Mode int

const (
	// ModeProxy captures the file from intercepted HTTP traffic
	ModeProxy Mode = iota
	// ModeFolder waits for the file to appear in the downloads directory
	ModeFolder
)

// String returns the lower-case mode name used in config and metrics.
func (m Mode) String() string {
	switch m {
	case ModeProxy:
		return "proxy"
	case ModeFolder:
		return "folder"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "proxy" or "folder", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proxy":
		return ModeProxy, nil
	case "folder":
		return ModeFolder, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, s)
	}
}

// Action is the UI interaction expected to trigger exactly one download.
// It runs once, synchronously, on the caller's goroutine.
type Action func(ctx context.Context) error

// Request describes one download. It is not modified by the Coordinator.
type Request struct {
	Filter  files.Filter
	Timeout time.Duration
	Mode    Mode
	Action  Action

	// Description names the trigger in failure messages, e.g. "click a#report"
	Description string
}

func (r Request) validate() error {
	switch {
	case r.Filter == nil:
		return fmt.Errorf("%w: filter is required", ErrInvalidRequest)
	case r.Action == nil:
		return fmt.Errorf("%w: action is required", ErrInvalidRequest)
	case r.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidRequest, r.Timeout)
	case r.Mode != ModeProxy && r.Mode != ModeFolder:
		return fmt.Errorf("%w: unknown mode %v", ErrInvalidRequest, r.Mode)
	}
	return nil
}
