package proxy

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispositionFilename(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		want        string
	}{
		{"quoted", `attachment; filename="hello_world.txt"`, "hello_world.txt"},
		{"token", `attachment; filename=report.pdf`, "report.pdf"},
		{"inline with name", `inline; filename="report.pdf"`, "report.pdf"},
		{"rfc 5987", `attachment; filename*=UTF-8''%D1%84%D0%B0%D0%B9%D0%BB.txt`, "файл.txt"},
		{"extended wins", `attachment; filename="naive.txt"; filename*=UTF-8''na%C3%AFve.txt`, "naïve.txt"},
		{"rfc 2047", `attachment; filename="=?UTF-8?B?0YTQsNC50LsudHh0?="`, "файл.txt"},
		{"latin1 extended", `attachment; filename*=iso-8859-1''caf%E9.txt`, "café.txt"},
		{"unquoted spaces", `attachment; filename=my report.pdf`, "my report.pdf"},
		{"escaped quote", `attachment; filename="say \"hi\".txt"`, `say "hi".txt`},
		{"no filename", `attachment`, ""},
		{"inline only", `inline`, ""},
		{"empty", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DispositionFilename(tt.disposition))
		})
	}
}

func TestExtractName(t *testing.T) {
	header := func(kv ...string) http.Header {
		h := http.Header{}
		for i := 0; i < len(kv); i += 2 {
			h.Set(kv[i], kv[i+1])
		}
		return h
	}
	mustURL := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		return u
	}

	t.Run("disposition first", func(t *testing.T) {
		h := header("Content-Disposition", `attachment; filename="a.csv"`, "Content-Type", "text/csv")
		assert.Equal(t, "a.csv", ExtractName(h, mustURL("http://x.test/files/b.csv")))
	})

	t.Run("url segment is percent decoded", func(t *testing.T) {
		h := header("Content-Type", "application/pdf")
		assert.Equal(t, "annual report.pdf", ExtractName(h, mustURL("http://x.test/files/annual%20report.pdf?v=2")))
	})

	t.Run("url segment without extension", func(t *testing.T) {
		h := header("Content-Type", "text/csv; charset=utf-8")
		assert.Equal(t, "export.csv", ExtractName(h, mustURL("http://x.test/reports/export/")))
	})

	t.Run("generated name", func(t *testing.T) {
		h := header("Content-Type", "application/pdf")
		name := ExtractName(h, mustURL("http://x.test/"))
		assert.True(t, strings.HasPrefix(name, "download-"), name)
		assert.True(t, strings.HasSuffix(name, ".pdf"), name)
	})

	t.Run("nil url", func(t *testing.T) {
		name := ExtractName(http.Header{}, nil)
		assert.True(t, strings.HasPrefix(name, "download-"), name)
	})
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionFor("application/pdf"))
	assert.Equal(t, ".txt", ExtensionFor("text/plain"))
	assert.Equal(t, "", ExtensionFor(""))
	assert.Equal(t, "", ExtensionFor("application/x-snare-unknown"))
}
