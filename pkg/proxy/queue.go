package proxy

import (
	"net/http"
	"sync"
	"time"
)

// CapturedResponse is one download candidate observed by the proxy.
type CapturedResponse struct {
	// Seq orders captures across the lifetime of the proxy
	Seq uint64

	Method     string
	URL        string
	StatusCode int
	Header     http.Header

	// Body is the payload with any Content-Encoding removed
	Body []byte

	// Name is the file name extracted from the response. It is not sanitized.
	Name string

	// ContentType is the media type without parameters
	ContentType string

	ObservedAt time.Time
}

// CaptureQueue is an append-only FIFO of captured responses. The proxy
// appends from its handler goroutines while a single consumer reads.
type CaptureQueue struct {
	mu    sync.Mutex
	items []*CapturedResponse
}

// NewCaptureQueue returns an empty queue.
func NewCaptureQueue() *CaptureQueue {
	return &CaptureQueue{}
}

// Append adds a response at the tail.
func (q *CaptureQueue) Append(r *CapturedResponse) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// Since returns the responses at positions offset and later, in arrival order.
func (q *CaptureQueue) Since(offset int) []*CapturedResponse {
	q.mu.Lock()
	defer q.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(q.items) {
		return nil
	}
	out := make([]*CapturedResponse, len(q.items)-offset)
	copy(out, q.items[offset:])
	return out
}

// Len returns the number of responses appended so far.
func (q *CaptureQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
