package proxy

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// ErrBodyTooLarge is returned by DecodeBody when the decoded body would exceed
// the limit.
var ErrBodyTooLarge = errors.New("decoded body exceeds capture limit")

// DecodeBody removes the content codings listed in a Content-Encoding header.
// Codings are undone in reverse order of application. No intermediate or
// final body may grow past limit bytes; a limit <= 0 disables the check.
func DecodeBody(contentEncoding string, body []byte, limit int64) ([]byte, error) {
	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))
		if coding == "" || coding == "identity" {
			continue
		}

		decoded, err := decodeOne(coding, body, limit)
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%s error: %w", coding, err)
		}
		body = decoded
	}
	return body, nil
}

func decodeOne(coding string, body []byte, limit int64) ([]byte, error) {
	var reader io.Reader
	switch coding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			fr := flate.NewReader(bytes.NewReader(body))
			defer fr.Close()
			reader = fr
		} else {
			defer zr.Close()
			reader = zr
		}
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %s", coding)
	}
	if limit <= 0 {
		return io.ReadAll(reader)
	}
	decoded, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(decoded)) > limit {
		return nil, fmt.Errorf("%w: %s body larger than %d bytes", ErrBodyTooLarge, coding, limit)
	}
	return decoded, nil
}
