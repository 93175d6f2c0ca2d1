package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/snare/pkg/download"
)

// Session represents an active Playwright browser session with its associated
// resources.
type Session struct {
	*sessionCore

	// Name is the unique identifier for this session
	Name string

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last operation on this session
	LastUsedAt time.Time

	// CurrentURL is the URL of the current page
	CurrentURL string
}

var _ download.Session = (*Session)(nil)

// UpdateLastUsed updates the LastUsedAt timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.LastUsedAt = time.Now()
}

// Run executes action on the caller's goroutine.
func (s *Session) Run(ctx context.Context, action download.Action) error {
	s.UpdateLastUsed()
	return s.run(ctx, action)
}

// Goto navigates the page to url. A URL that is served as a download leaves
// the page where it was and is not an error.
func (s *Session) Goto(url string) error {
	s.UpdateLastUsed()

	if _, err := s.Page.Goto(url); err != nil {
		if startsDownload(err) {
			return nil
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.CurrentURL = s.Page.URL()
	return nil
}

// Navigate returns an action that opens url, for links served as downloads.
func (s *Session) Navigate(url string) download.Action {
	return func(context.Context) error {
		return s.Goto(url)
	}
}

// Click returns an action that clicks the first element matching selector.
func (s *Session) Click(selector string) download.Action {
	return func(context.Context) error {
		return s.click(selector)
	}
}

// ClickConfirming is Click with dialogs answered according to policy while
// the click runs.
func (s *Session) ClickConfirming(selector string, policy DialogPolicy) download.Action {
	return func(context.Context) error {
		return s.withDialogs(policy, func() error {
			return s.click(selector)
		})
	}
}

// Interact returns an action running fn against the session's page.
func (s *Session) Interact(fn func(page playwright.Page) error) download.Action {
	return func(context.Context) error {
		s.UpdateLastUsed()
		return fn(s.Page)
	}
}

func (s *Session) click(selector string) error {
	s.UpdateLastUsed()

	if err := s.Page.Click(selector); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}

	// Update current URL in case click caused navigation
	s.CurrentURL = s.Page.URL()
	return nil
}

// handleDownload runs for every download the page starts. Playwright events
// are delivered on its dispatch goroutine, so the blocking calls run apart.
func (s *Session) handleDownload(d playwright.Download) {
	go func() {
		name := d.SuggestedFilename()
		if s.capturing() {
			s.logger.Debugf("Cancelling browser download of %q, captured by the proxy", name)
			if err := d.Cancel(); err != nil {
				s.logger.Warnf("Failed to cancel download of %q: %v", name, err)
			}
			return
		}

		target := filepath.Join(s.downloadsDir, baseName(name))
		partial := target + ".part"
		if err := d.SaveAs(partial); err != nil {
			s.logger.Warnf("Failed to save download of %q: %v", name, err)
			return
		}
		if err := os.Rename(partial, target); err != nil {
			s.logger.Warnf("Failed to move download into place: %v", err)
			return
		}
		s.logger.Infof("Browser saved %q to %s", name, target)
	}()
}

func (s *Session) handleDialog(d playwright.Dialog) {
	policy := s.DialogPolicy()
	go func() {
		var err error
		if policy == DialogAccept {
			err = d.Accept()
		} else {
			err = d.Dismiss()
		}
		if err != nil {
			s.logger.Warnf("Failed to %s %s dialog: %v", policy, d.Type(), err)
			return
		}
		s.logger.Debugf("Answered %s dialog %q with %s", d.Type(), d.Message(), policy)
	}()
}

// Close releases the page, context, browser and proxy.
func (s *Session) Close() error {
	var errs []error
	if err := s.Page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.Browser.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.closeProxy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// baseName keeps a browser-suggested name from escaping the downloads directory.
func baseName(suggested string) string {
	name := filepath.Base(filepath.Clean("/" + suggested))
	if name == "/" || name == "." {
		return "download"
	}
	return name
}
