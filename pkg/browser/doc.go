// Package browser provides the browser sessions downloads are triggered in.
//
// Two engines are available. Session drives Chromium through Playwright and is
// created by a SessionManager; ChromeSession drives a local Chrome over the
// DevTools protocol with chromedp. Both implement download.Session, so either
// can be handed to a download.Coordinator.
//
// # Traffic proxy
//
// With SessionOptions.Proxy set, a session starts its own proxy.TrafficProxy
// and routes all browser traffic, loopback included, through it. Certificate
// errors are ignored so intercepted HTTPS loads without installing the proxy's
// CA. Sessions without a proxy only support folder-mode downloads.
//
// # Browser downloads
//
// While the proxy is capturing, downloads the browser starts itself are
// cancelled since the proxy already holds the bytes. Otherwise they are saved
// into the session's downloads directory under the suggested file name, where
// the folder watcher picks them up.
//
// # Dialogs
//
// JavaScript dialogs are dismissed unless the session's DialogPolicy says
// otherwise. ClickConfirming accepts the dialogs raised by a single click,
// e.g. a "Download anyway?" confirmation.
//
// # Example Usage
//
//	manager := browser.NewSessionManager(logger)
//	if err := manager.Initialize(); err != nil {
//	    return err
//	}
//	defer manager.Shutdown()
//
//	session, err := manager.StartSession("reports", browser.SessionOptions{
//	    Headless: true,
//	    Proxy:    true,
//	})
//	if err := session.Goto("https://example.com/reports"); err != nil {
//	    return err
//	}
//	file, err := coordinator.DownloadWith(ctx, session, files.ByExtension("pdf"),
//	    30*time.Second, download.ModeProxy, session.Click("a#export"))
package browser
