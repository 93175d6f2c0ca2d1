// Package download turns a browser-initiated file download into a synchronous
// call: run one action, wait for the single file it produced, return it.
//
// Two strategies observe downloads. ModeProxy reads responses captured by the
// session's traffic proxy (see package proxy). ModeFolder diffs the session's
// downloads directory against a snapshot taken before the action and only
// accepts files whose size has stopped changing.
//
// Basic usage:
//
//	c := download.NewCoordinator(download.WithLogger(logger))
//	file, err := c.Download(ctx, session, download.Request{
//		Filter:  files.ByExtension("pdf"),
//		Timeout: 10 * time.Second,
//		Mode:    download.ModeProxy,
//		Action:  session.Click("a#report"),
//	})
//
// A Coordinator keeps no state between calls and may be shared, but a session
// serves one request at a time.
package download
