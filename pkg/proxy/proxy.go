package proxy

import (
	"bytes"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/entrhq/snare/pkg/logging"
)

const (
	// DefaultAddr binds an ephemeral loopback port
	DefaultAddr = "127.0.0.1:0"

	// DefaultMaxCaptureBytes bounds the body retained for a single response
	DefaultMaxCaptureBytes int64 = 256 << 20

	readHeaderTimeout = 30 * time.Second
)

var (
	// ErrQueueAttached is returned by Attach while another queue is attached.
	ErrQueueAttached = errors.New("a capture queue is already attached to the proxy")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("proxy already started")
)

// CaptureRecorder receives a notification for every captured response.
type CaptureRecorder interface {
	ResponseCaptured()
}

// Options configures a TrafficProxy. The zero value is usable.
type Options struct {
	// MaxCaptureBytes is the largest body retained. Larger responses are
	// forwarded to the browser without being captured.
	MaxCaptureBytes int64

	// InsecureUpstream disables certificate verification towards origin servers
	InsecureUpstream bool

	// CA signs the per-host certificates presented to the browser. The
	// goproxy built-in CA is used when nil.
	CA *tls.Certificate

	Logger  *logging.Logger
	Metrics CaptureRecorder
}

// TrafficProxy is a MITM proxy that records download-like responses into the
// currently attached CaptureQueue.
type TrafficProxy struct {
	opts   Options
	logger *logging.Logger
	gp     *goproxy.ProxyHttpServer

	sink atomic.Pointer[CaptureQueue]
	seq  atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// New creates a proxy. Call Start to begin listening.
func New(opts Options) *TrafficProxy {
	if opts.MaxCaptureBytes <= 0 {
		opts.MaxCaptureBytes = DefaultMaxCaptureBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	p := &TrafficProxy{opts: opts, logger: logger}

	gp := goproxy.NewProxyHttpServer()
	gp.Logger = logger.Named("goproxy")
	gp.Tr = newUpstreamTransport(opts.InsecureUpstream, logger)
	gp.KeepAcceptEncoding = true
	gp.CertStore = newCertCache()

	if opts.CA != nil {
		mitm := &goproxy.ConnectAction{Action: goproxy.ConnectMitm, TLSConfig: goproxy.TLSConfigFromCA(opts.CA)}
		gp.OnRequest().HandleConnectFunc(func(host string, _ *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			return mitm, host
		})
	} else {
		gp.OnRequest().HandleConnect(goproxy.AlwaysMitm)
	}
	gp.OnResponse().DoFunc(p.capture)

	p.gp = gp
	return p
}

// Start listens on addr, or DefaultAddr when addr is empty, and serves in the
// background.
func (p *TrafficProxy) Start(addr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener != nil {
		return ErrAlreadyStarted
	}
	if addr == "" {
		addr = DefaultAddr
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           p.gp,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	p.listener = ln
	p.server = server

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Errorf("Proxy server stopped: %v", err)
		}
	}()

	p.logger.Infof("Traffic proxy listening on %s", ln.Addr())
	return nil
}

// Endpoint returns the host:port the proxy listens on, or "" before Start.
func (p *TrafficProxy) Endpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Close stops the listener. Intercepted connections already in flight are
// left to finish.
func (p *TrafficProxy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.server == nil {
		return nil
	}
	err := p.server.Close()
	p.gp.Tr.CloseIdleConnections()
	p.server = nil
	p.listener = nil
	p.logger.Infof("Traffic proxy closed")
	return err
}

// Attach installs a fresh queue as the capture sink.
func (p *TrafficProxy) Attach() (*CaptureQueue, error) {
	q := NewCaptureQueue()
	if !p.sink.CompareAndSwap(nil, q) {
		return nil, ErrQueueAttached
	}
	return q, nil
}

// Detach removes q if it is still the attached queue and reports whether it was.
func (p *TrafficProxy) Detach(q *CaptureQueue) bool {
	if q == nil {
		return false
	}
	return p.sink.CompareAndSwap(q, nil)
}

// Capturing reports whether a queue is attached.
func (p *TrafficProxy) Capturing() bool {
	return p.sink.Load() != nil
}

// CACertificatePEM returns the certificate browsers must trust to accept
// intercepted HTTPS without ignoring certificate errors.
func (p *TrafficProxy) CACertificatePEM() []byte {
	if p.opts.CA == nil || len(p.opts.CA.Certificate) == 0 {
		return goproxy.CA_CERT
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: p.opts.CA.Certificate[0]})
}

// capture runs on goproxy handler goroutines for every upstream response.
func (p *TrafficProxy) capture(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	queue := p.sink.Load()
	if queue == nil || resp == nil || ctx.Req == nil || !IsDownload(ctx.Req, resp) {
		return resp
	}

	url := ctx.Req.URL.String()
	limit := p.opts.MaxCaptureBytes
	if resp.ContentLength > limit {
		p.logger.Warnf("Not capturing %s: %d bytes exceeds limit of %d", url, resp.ContentLength, limit)
		return resp
	}

	original := resp.Body
	raw, err := io.ReadAll(io.LimitReader(original, limit+1))
	if err != nil || int64(len(raw)) > limit {
		if err != nil {
			p.logger.Warnf("Not capturing %s: %v", url, err)
		} else {
			p.logger.Warnf("Not capturing %s: body exceeds limit of %d bytes", url, limit)
		}
		resp.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(raw), original), closer: original}
		return resp
	}
	_ = original.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))

	body, err := DecodeBody(resp.Header.Get("Content-Encoding"), raw, limit)
	if errors.Is(err, ErrBodyTooLarge) {
		p.logger.Warnf("Not capturing %s: %v", url, err)
		return resp
	}
	if err != nil {
		p.logger.Warnf("Keeping encoded body for %s: %v", url, err)
		body = raw
	}

	captured := &CapturedResponse{
		Seq:         p.seq.Add(1),
		Method:      ctx.Req.Method,
		URL:         url,
		StatusCode:  resp.StatusCode,
		Header:      resp.Header.Clone(),
		Body:        body,
		Name:        ExtractName(resp.Header, ctx.Req.URL),
		ContentType: MediaType(resp.Header),
		ObservedAt:  time.Now(),
	}
	queue.Append(captured)

	if p.opts.Metrics != nil {
		p.opts.Metrics.ResponseCaptured()
	}
	p.logger.Infof("Captured %q (%d bytes) from %s", captured.Name, len(body), url)
	return resp
}

// replayBody hands already-consumed bytes back to the browser ahead of the
// rest of the upstream body.
type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error {
	return b.closer.Close()
}

// certCache reuses minted host certificates across connections.
type certCache struct {
	mu    sync.Mutex
	certs map[string]*tls.Certificate
}

func newCertCache() *certCache {
	return &certCache{certs: make(map[string]*tls.Certificate)}
}

func (c *certCache) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cert, ok := c.certs[hostname]; ok {
		return cert, nil
	}
	cert, err := gen()
	if err != nil {
		return nil, err
	}
	c.certs[hostname] = cert
	return cert, nil
}
