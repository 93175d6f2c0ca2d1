package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/snare/pkg/download"
	"github.com/entrhq/snare/pkg/files"
)

// Requires a local Chrome or Chromium.
func requireChrome(t *testing.T) {
	t.Helper()
	if os.Getenv("SNARE_CHROME_TESTS") == "" {
		t.Skip("set SNARE_CHROME_TESTS=1 to run tests against a local Chrome")
	}
}

func reportSite() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body>
<a id="report" href="/report">Report</a>
<button id="confirm" onclick="if (confirm('Download?')) location.href='/report'">Confirm</button>
</body></html>`)
	})
	mux.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		_, _ = io.WriteString(w, "a,b\n1,2\n")
	})
	return httptest.NewServer(mux)
}

func TestChromeSessionDownloads(t *testing.T) {
	requireChrome(t)

	site := reportSite()
	defer site.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	session, err := NewChromeSession(ctx, SessionOptions{
		Headless:         true,
		Proxy:            true,
		InsecureUpstream: true,
		DownloadsDir:     t.TempDir(),
	})
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.Goto(ctx, site.URL))
	coordinator := download.NewCoordinator()

	for _, mode := range []download.Mode{download.ModeProxy, download.ModeFolder} {
		t.Run(mode.String(), func(t *testing.T) {
			file, err := coordinator.DownloadWith(ctx, session, files.ByExtension("csv"), 20*time.Second,
				mode, session.Click("a#report"))
			require.NoError(t, err)
			assert.Equal(t, "report.csv", file.Name)

			data, err := file.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, "a,b\n1,2\n", string(data))
		})
	}

	t.Run("confirm dialog", func(t *testing.T) {
		file, err := coordinator.DownloadWith(ctx, session, files.ByName("report.csv"), 20*time.Second,
			download.ModeProxy, session.ClickConfirming("#confirm", DialogAccept))
		require.NoError(t, err)
		assert.Equal(t, "report.csv", file.Name)
	})

	t.Run("dismissed dialog", func(t *testing.T) {
		_, err := coordinator.DownloadWith(ctx, session, files.ByName("report.csv"), 2*time.Second,
			download.ModeProxy, session.Click("#confirm"))
		assert.True(t, download.IsFileNotFound(err), "%v", err)
	})
}
