package browser

import (
	"fmt"
	"strings"

	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/proxy"
)

// DialogPolicy decides how JavaScript dialogs are answered.
type DialogPolicy int

const (
	// DialogDismiss cancels confirm and prompt dialogs (default)
	DialogDismiss DialogPolicy = iota
	// DialogAccept confirms dialogs, answering prompts with an empty string
	DialogAccept
)

// String returns the policy name used by flags and config.
func (p DialogPolicy) String() string {
	switch p {
	case DialogAccept:
		return "accept"
	case DialogDismiss:
		return "dismiss"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseDialogPolicy accepts "accept" or "dismiss". An empty string is
// DialogDismiss.
func ParseDialogPolicy(s string) (DialogPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dismiss":
		return DialogDismiss, nil
	case "accept":
		return DialogAccept, nil
	default:
		return DialogDismiss, fmt.Errorf("unknown dialog policy %q", s)
	}
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for page operations (in milliseconds)
	Timeout float64

	// DownloadsDir is where the browser saves downloads and where captured
	// files are persisted. A temp directory is used when empty.
	DownloadsDir string

	// Proxy starts a traffic proxy for the session
	Proxy bool

	// ProxyAddr is the proxy listen address, proxy.DefaultAddr when empty
	ProxyAddr string

	// InsecureUpstream skips certificate verification towards origin servers
	InsecureUpstream bool

	// MaxCaptureBytes bounds a captured body, proxy.DefaultMaxCaptureBytes when zero
	MaxCaptureBytes int64

	// Dialogs is the default answer to JavaScript dialogs
	Dialogs DialogPolicy

	// Metrics counts captured responses
	Metrics proxy.CaptureRecorder

	Logger *logging.Logger
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for new sessions
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 5
)

func (o *SessionOptions) applyDefaults() {
	if o.Viewport == nil {
		o.Viewport = &Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}
