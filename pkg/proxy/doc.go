// Package proxy implements a local man-in-the-middle HTTP(S) proxy that
// watches the traffic of an automated browser and keeps every response that
// looks like a file download.
//
// A TrafficProxy is shared by one browser session. Callers that want to see
// downloads Attach a CaptureQueue, run the browser action, read the captured
// responses in arrival order, and Detach. While no queue is attached the proxy
// forwards traffic without retaining anything.
//
// HTTPS is intercepted with per-host certificates minted from a CA (the
// goproxy default unless Options.CA is set), so the browser must be started
// with certificate errors ignored or with that CA trusted.
package proxy
