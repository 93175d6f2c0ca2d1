package download

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRequest is wrapped by errors for malformed requests.
var ErrInvalidRequest = errors.New("invalid download request")

// FileNotFoundError reports that no matching file appeared before the timeout.
type FileNotFoundError struct {
	// Description names the trigger, when the request carried one
	Description string
	// Filter is the filter's description
	Filter   string
	Mode     Mode
	Timeout  time.Duration
	Elapsed  time.Duration
	Observed []string
}

func (e *FileNotFoundError) Error() string {
	var b strings.Builder
	b.WriteString("failed to download file")
	if e.Description != "" {
		b.WriteString(" " + e.Description)
	}
	fmt.Fprintf(&b, " in %d ms.", e.Timeout.Milliseconds())
	if e.Filter != "" {
		b.WriteString(" " + e.Filter)
	}
	if len(e.Observed) == 0 {
		b.WriteString("; no files observed")
	} else {
		fmt.Fprintf(&b, "; observed: %s", strings.Join(e.Observed, ", "))
	}
	fmt.Fprintf(&b, " (mode %s, elapsed %d ms)", e.Mode, e.Elapsed.Milliseconds())
	return b.String()
}

// IsFileNotFound reports whether err is or wraps a FileNotFoundError.
func IsFileNotFound(err error) bool {
	var target *FileNotFoundError
	return errors.As(err, &target)
}

// ProxyUnavailableError is returned for ModeProxy requests on a session
// without a running traffic proxy, or whose proxy is busy with another request.
type ProxyUnavailableError struct {
	Reason string
	Err    error
}

func (e *ProxyUnavailableError) Error() string {
	msg := "traffic proxy unavailable: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProxyUnavailableError) Unwrap() error {
	return e.Err
}

// IOError reports a failure to store or inspect a downloaded file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
