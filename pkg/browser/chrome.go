package browser

import (
	"context"
	"fmt"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/entrhq/snare/pkg/download"
)

// ChromeSession drives a local Chrome or Chromium over the DevTools protocol.
type ChromeSession struct {
	*sessionCore

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

var _ download.Session = (*ChromeSession)(nil)

// NewChromeSession launches Chrome and opens a blank tab. The browser lives
// until Close or until parent is cancelled.
func NewChromeSession(parent context.Context, opts SessionOptions) (*ChromeSession, error) {
	opts.applyDefaults()

	core, err := newSessionCore(opts)
	if err != nil {
		return nil, err
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	allocOpts = append(allocOpts,
		chromedp.NoSandbox,
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if core.proxy != nil {
		allocOpts = append(allocOpts,
			chromedp.ProxyServer(core.proxyURL()),
			chromedp.Flag("proxy-bypass-list", loopbackBypass),
			chromedp.IgnoreCertErrors,
		)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(core.logger.Debugf),
		chromedp.WithErrorf(core.logger.Errorf),
	)

	s := &ChromeSession{
		sessionCore: core,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		timeout:     time.Duration(opts.Timeout) * time.Millisecond,
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*page.EventJavascriptDialogOpening); ok {
			// blocking calls are not allowed inside a listener
			go s.answerDialog(e)
		}
	})

	if err := chromedp.Run(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	core.logger.Infof("Started chrome (headless=%t, proxy=%q, downloads=%s)",
		opts.Headless, s.ProxyEndpoint(), s.DownloadsDir())
	return s, nil
}

// Run points Chrome's download handling at the current strategy and executes
// action. Downloads are denied while the proxy is capturing and saved into the
// downloads directory otherwise.
func (s *ChromeSession) Run(ctx context.Context, action download.Action) error {
	behavior := cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
		WithDownloadPath(s.downloadsDir)
	if s.capturing() {
		behavior = cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorDeny)
	}
	if err := s.tasks(ctx, behavior); err != nil {
		return fmt.Errorf("failed to configure download behavior: %w", err)
	}
	return s.run(ctx, action)
}

// Goto navigates the tab to url. A URL that is served as a download is not
// an error.
func (s *ChromeSession) Goto(ctx context.Context, url string) error {
	if err := s.tasks(ctx, chromedp.Navigate(url)); err != nil {
		if startsDownload(err) {
			return nil
		}
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Navigate returns an action that opens url.
func (s *ChromeSession) Navigate(url string) download.Action {
	return func(ctx context.Context) error {
		return s.Goto(ctx, url)
	}
}

// Click returns an action that clicks the first element matching the CSS selector.
func (s *ChromeSession) Click(selector string) download.Action {
	return s.Tasks(chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// ClickConfirming is Click with dialogs answered according to policy while
// the click runs.
func (s *ChromeSession) ClickConfirming(selector string, policy DialogPolicy) download.Action {
	click := s.Click(selector)
	return func(ctx context.Context) error {
		return s.withDialogs(policy, func() error {
			return click(ctx)
		})
	}
}

// Tasks returns an action running arbitrary chromedp actions in the tab.
func (s *ChromeSession) Tasks(actions ...chromedp.Action) download.Action {
	return func(ctx context.Context) error {
		return s.tasks(ctx, actions...)
	}
}

// tasks runs actions in the tab, bounded by the session timeout and by ctx.
func (s *ChromeSession) tasks(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *ChromeSession) answerDialog(e *page.EventJavascriptDialogOpening) {
	policy := s.DialogPolicy()
	if err := chromedp.Run(s.ctx, page.HandleJavaScriptDialog(policy == DialogAccept)); err != nil {
		s.logger.Warnf("Failed to %s %s dialog: %v", policy, e.Type, err)
		return
	}
	s.logger.Debugf("Answered %s dialog %q with %s", e.Type, e.Message, policy)
}

// Close shuts the browser down and stops the proxy.
func (s *ChromeSession) Close() error {
	s.cancel()
	s.allocCancel()
	return s.closeProxy()
}
