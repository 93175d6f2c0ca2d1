package browser

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/entrhq/snare/pkg/download"
	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/proxy"
	"github.com/entrhq/snare/pkg/security/workspace"
)

// loopbackBypass makes Chromium send loopback traffic through the proxy too.
const loopbackBypass = "<-loopback>"

// sessionCore holds what both engines share: the downloads directory, the
// optional traffic proxy and the dialog policy.
type sessionCore struct {
	proxy        *proxy.TrafficProxy
	downloadsDir string
	dialogs      atomic.Int32
	logger       *logging.Logger
}

func newSessionCore(opts SessionOptions) (*sessionCore, error) {
	guard, err := workspace.NewGuard(download.ResolveDownloadsDir(opts.DownloadsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare downloads directory: %w", err)
	}

	c := &sessionCore{downloadsDir: guard.RootDir(), logger: opts.Logger}
	c.dialogs.Store(int32(opts.Dialogs))

	if opts.Proxy {
		p := proxy.New(proxy.Options{
			MaxCaptureBytes:  opts.MaxCaptureBytes,
			InsecureUpstream: opts.InsecureUpstream,
			Logger:           opts.Logger.Named("proxy"),
			Metrics:          opts.Metrics,
		})
		if err := p.Start(opts.ProxyAddr); err != nil {
			return nil, fmt.Errorf("failed to start traffic proxy: %w", err)
		}
		c.proxy = p
	}
	return c, nil
}

// Interceptor returns the session's proxy, or nil when it was started without one.
func (c *sessionCore) Interceptor() download.Interceptor {
	if c.proxy == nil {
		return nil
	}
	return c.proxy
}

// DownloadsDir returns the absolute downloads directory.
func (c *sessionCore) DownloadsDir() string {
	return c.downloadsDir
}

// ProxyEndpoint returns the proxy's host:port, or "" without a proxy.
func (c *sessionCore) ProxyEndpoint() string {
	if c.proxy == nil {
		return ""
	}
	return c.proxy.Endpoint()
}

// DialogPolicy returns the current answer to JavaScript dialogs.
func (c *sessionCore) DialogPolicy() DialogPolicy {
	return DialogPolicy(c.dialogs.Load())
}

// SetDialogPolicy changes the answer to subsequent JavaScript dialogs.
func (c *sessionCore) SetDialogPolicy(p DialogPolicy) {
	c.dialogs.Store(int32(p))
}

// withDialogs runs fn with policy in effect and restores the previous one.
func (c *sessionCore) withDialogs(policy DialogPolicy, fn func() error) error {
	prev := c.dialogs.Swap(int32(policy))
	defer c.dialogs.Store(prev)
	return fn()
}

// capturing reports whether a proxy-mode download is waiting on the proxy.
func (c *sessionCore) capturing() bool {
	return c.proxy != nil && c.proxy.Capturing()
}

func (c *sessionCore) proxyURL() string {
	return "http://" + c.proxy.Endpoint()
}

func (c *sessionCore) run(ctx context.Context, action download.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return action(ctx)
}

func (c *sessionCore) closeProxy() error {
	if c.proxy == nil {
		return nil
	}
	return c.proxy.Close()
}

// startsDownload reports whether a navigation error only means the response
// was turned into a download.
func startsDownload(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Download is starting") || strings.Contains(msg, "net::ERR_ABORTED")
}
