package proxy

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu    sync.Mutex
	count int
}

func (c *countingRecorder) ResponseCaptured() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *countingRecorder) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func startProxy(t *testing.T, opts Options) *TrafficProxy {
	t.Helper()
	opts.InsecureUpstream = true
	p := New(opts)
	require.NoError(t, p.Start(""))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// clientThrough returns an HTTP client routed through p that accepts the
// proxy's minted certificates.
func clientThrough(t *testing.T, p *TrafficProxy) *http.Client {
	t.Helper()
	proxyURL, err := url.Parse("http://" + p.Endpoint())
	require.NoError(t, err)
	return &http.Client{
		Transport: &http.Transport{
			Proxy:           http.ProxyURL(proxyURL),
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		},
	}
}

func fetch(t *testing.T, client *http.Client, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func downloadHandler(name, content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		_, _ = io.WriteString(w, content)
	}
}

func TestTrafficProxyCapturesDownload(t *testing.T) {
	upstream := httptest.NewServer(downloadHandler("hello_world.txt", "Hello, WinRar!"))
	defer upstream.Close()

	recorder := &countingRecorder{}
	p := startProxy(t, Options{Metrics: recorder})
	client := clientThrough(t, p)

	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/download", nil)
	resp, body := fetch(t, client, req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, WinRar!", string(body), "browser must still receive the file")

	require.Equal(t, 1, q.Len())
	captured := q.Since(0)[0]
	assert.Equal(t, "hello_world.txt", captured.Name)
	assert.Equal(t, "Hello, WinRar!", string(captured.Body))
	assert.Equal(t, http.MethodGet, captured.Method)
	assert.Equal(t, upstream.URL+"/download", captured.URL)
	assert.Equal(t, "text/plain", captured.ContentType)
	assert.EqualValues(t, 1, captured.Seq)
	assert.Equal(t, 1, recorder.Count())
}

func TestTrafficProxyIgnoresPagesAndDetachedTraffic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html></html>")
	})
	mux.Handle("/file", downloadHandler("a.txt", "a"))
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	p := startProxy(t, Options{})
	client := clientThrough(t, p)

	// nothing attached yet
	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/file", nil)
	_, body := fetch(t, client, req)
	assert.Equal(t, "a", string(body))

	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	req, _ = http.NewRequest(http.MethodGet, upstream.URL+"/page", nil)
	_, body = fetch(t, client, req)
	assert.Equal(t, "<html></html>", string(body))

	assert.Zero(t, q.Len())
}

func TestTrafficProxyKeepsArrivalOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/first", downloadHandler("first.txt", "1"))
	mux.Handle("/second", downloadHandler("second.txt", "2"))
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	p := startProxy(t, Options{})
	client := clientThrough(t, p)
	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	for _, path := range []string{"/first", "/second"} {
		req, _ := http.NewRequest(http.MethodGet, upstream.URL+path, nil)
		fetch(t, client, req)
	}

	all := q.Since(0)
	require.Len(t, all, 2)
	assert.Equal(t, "first.txt", all[0].Name)
	assert.Equal(t, "second.txt", all[1].Name)
	assert.Less(t, all[0].Seq, all[1].Seq)
	assert.Len(t, q.Since(1), 1)
	assert.Empty(t, q.Since(2))
}

func TestTrafficProxyInterceptsHTTPS(t *testing.T) {
	upstream := httptest.NewTLSServer(downloadHandler("secure.csv", "a,b\n1,2\n"))
	defer upstream.Close()

	p := startProxy(t, Options{})
	client := clientThrough(t, p)
	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/export", nil)
	_, body := fetch(t, client, req)
	assert.Equal(t, "a,b\n1,2\n", string(body))

	require.Equal(t, 1, q.Len())
	captured := q.Since(0)[0]
	assert.Equal(t, "secure.csv", captured.Name)
	assert.True(t, strings.HasPrefix(captured.URL, "https://"), captured.URL)
	assert.Equal(t, "a,b\n1,2\n", string(captured.Body))
}

func TestTrafficProxyDecodesBodies(t *testing.T) {
	content := strings.Repeat("compressible report line\n", 64)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = io.WriteString(gw, content)
	require.NoError(t, gw.Close())

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	_, _ = io.WriteString(bw, content)
	require.NoError(t, bw.Close())

	encoded := map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coding := strings.TrimPrefix(r.URL.Path, "/")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", coding)
		_, _ = w.Write(encoded[coding])
	}))
	defer upstream.Close()

	p := startProxy(t, Options{})
	client := clientThrough(t, p)

	for coding, raw := range encoded {
		t.Run(coding, func(t *testing.T) {
			q, err := p.Attach()
			require.NoError(t, err)
			defer p.Detach(q)

			req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/"+coding, nil)
			// explicit Accept-Encoding keeps the client from decoding on its own
			req.Header.Set("Accept-Encoding", coding)
			_, body := fetch(t, client, req)
			assert.Equal(t, raw, body, "browser receives the encoded bytes")

			require.Equal(t, 1, q.Len())
			assert.Equal(t, content, string(q.Since(0)[0].Body))
		})
	}
}

func TestTrafficProxyPassesOversizedBodies(t *testing.T) {
	content := strings.Repeat("x", 1024)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		if r.URL.Path == "/chunked" {
			// flushing early forces chunked encoding, so the length is unknown up front
			_, _ = io.WriteString(w, content[:10])
			w.(http.Flusher).Flush()
			_, _ = io.WriteString(w, content[10:])
			return
		}
		_, _ = io.WriteString(w, content)
	}))
	defer upstream.Close()

	p := startProxy(t, Options{MaxCaptureBytes: 100})
	client := clientThrough(t, p)
	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	for _, path := range []string{"/sized", "/chunked"} {
		req, _ := http.NewRequest(http.MethodGet, upstream.URL+path, nil)
		_, body := fetch(t, client, req)
		assert.Equal(t, content, string(body), path)
	}
	assert.Zero(t, q.Len())
}

func TestTrafficProxySkipsBodiesThatDecodePastLimit(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(make([]byte, 64<<10))
	require.NoError(t, gw.Close())
	encoded := gz.Bytes()
	require.Less(t, len(encoded), 4096)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")
		_, _ = w.Write(encoded)
	}))
	defer upstream.Close()

	p := startProxy(t, Options{MaxCaptureBytes: 4096})
	client := clientThrough(t, p)
	q, err := p.Attach()
	require.NoError(t, err)
	defer p.Detach(q)

	req, _ := http.NewRequest(http.MethodGet, upstream.URL+"/zeros.bin", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	_, body := fetch(t, client, req)
	assert.Equal(t, encoded, body, "browser still receives the response")
	assert.Zero(t, q.Len())
}

func TestTrafficProxyAttachIsExclusive(t *testing.T) {
	p := New(Options{})

	assert.False(t, p.Capturing())
	q1, err := p.Attach()
	require.NoError(t, err)
	assert.True(t, p.Capturing())

	_, err = p.Attach()
	assert.ErrorIs(t, err, ErrQueueAttached)

	assert.False(t, p.Detach(NewCaptureQueue()), "a stale queue must not detach the current one")
	assert.False(t, p.Detach(nil))
	assert.True(t, p.Detach(q1))
	assert.False(t, p.Detach(q1))
	assert.False(t, p.Capturing())

	q2, err := p.Attach()
	require.NoError(t, err)
	assert.NotSame(t, q1, q2)
}

func TestTrafficProxyLifecycle(t *testing.T) {
	p := New(Options{})
	assert.Empty(t, p.Endpoint())
	assert.NoError(t, p.Close(), "closing an unstarted proxy is a no-op")

	require.NoError(t, p.Start("127.0.0.1:0"))
	assert.NotEmpty(t, p.Endpoint())
	assert.ErrorIs(t, p.Start(""), ErrAlreadyStarted)

	require.NoError(t, p.Close())
	assert.Empty(t, p.Endpoint())
	assert.Contains(t, string(p.CACertificatePEM()), "BEGIN CERTIFICATE")
}

func TestCaptureQueueConcurrentAppend(t *testing.T) {
	q := NewCaptureQueue()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Append(&CapturedResponse{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, q.Len())
	assert.Len(t, q.Since(-1), 400)
}
