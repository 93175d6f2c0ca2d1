package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, coding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch coding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	case "br":
		w = brotli.NewWriter(&buf)
	default:
		t.Fatalf("unknown coding %s", coding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecodeBody(t *testing.T) {
	content := []byte("quarterly,revenue\nq1,100\nq2,120\n")

	tests := []struct {
		name     string
		encoding string
		body     []byte
	}{
		{name: "none", encoding: "", body: content},
		{name: "identity", encoding: "identity", body: content},
		{name: "gzip", encoding: "gzip", body: compress(t, "gzip", content)},
		{name: "x-gzip", encoding: "X-Gzip", body: compress(t, "gzip", content)},
		{name: "zlib deflate", encoding: "deflate", body: compress(t, "deflate", content)},
		{name: "raw deflate", encoding: "deflate", body: compress(t, "raw-deflate", content)},
		{name: "brotli", encoding: "br", body: compress(t, "br", content)},
		{name: "stacked", encoding: "gzip, br", body: compress(t, "br", compress(t, "gzip", content))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.encoding, tt.body, 1<<20)
			require.NoError(t, err)
			assert.Equal(t, content, got)
		})
	}
}

func TestDecodeBodyErrors(t *testing.T) {
	_, err := DecodeBody("compress", []byte("x"), 0)
	assert.ErrorContains(t, err, "unsupported Content-Encoding")

	_, err = DecodeBody("gzip", []byte("not gzip"), 0)
	assert.ErrorContains(t, err, "gzip error")
}

func TestDecodeBodyLimit(t *testing.T) {
	zeros := make([]byte, 4<<20)
	body := compress(t, "gzip", zeros)
	require.Less(t, len(body), 64<<10)

	_, err := DecodeBody("gzip", body, 1<<20)
	require.ErrorIs(t, err, ErrBodyTooLarge)

	_, err = DecodeBody("gzip, br", compress(t, "br", body), 1<<20)
	require.ErrorIs(t, err, ErrBodyTooLarge)

	got, err := DecodeBody("gzip", body, int64(len(zeros)))
	require.NoError(t, err)
	assert.Len(t, got, len(zeros))

	got, err = DecodeBody("gzip", body, 0)
	require.NoError(t, err)
	assert.Len(t, got, len(zeros))
}
