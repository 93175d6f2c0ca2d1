package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/snare/pkg/config"
	"github.com/entrhq/snare/pkg/download"
	"github.com/entrhq/snare/pkg/logging"
	"github.com/entrhq/snare/pkg/metrics"
	"github.com/entrhq/snare/pkg/proxy"
)

type proxyOptions struct {
	addr        string
	dir         string
	metricsAddr string
	printCA     bool
}

func newProxyCmd(a *app) *cobra.Command {
	o := &proxyOptions{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run the capture proxy and save every download passing through it",
		Long: `Run the traffic proxy on its own. Point any browser or HTTP client at it
and every download-like response is written to the downloads directory until
the command is interrupted.

HTTPS is intercepted with certificates signed by the proxy's CA; print it with
--print-ca and add it to the client's trust store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProxy(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", "", "listen address (default from config)")
	f.StringVar(&o.dir, "dir", "", "downloads directory (or $"+envDownloadsDir+")")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&o.printCA, "print-ca", false, "print the CA certificate in PEM format and exit")

	return cmd
}

func (a *app) runProxy(ctx context.Context, out io.Writer, o *proxyOptions) error {
	bs := config.GetBrowser().Snapshot()
	_, _, pollInterval, dir := config.GetDownloads().Settings()
	if o.dir != "" {
		dir = o.dir
	}
	addr := bs.ProxyAddr
	if o.addr != "" {
		addr = o.addr
	}

	reg := prometheus.NewRegistry()
	recorder, err := metrics.New("snare", reg)
	if err != nil {
		return err
	}

	p := proxy.New(proxy.Options{
		MaxCaptureBytes:  bs.MaxCaptureBytes,
		InsecureUpstream: bs.InsecureUpstream,
		Logger:           a.logger.Named("proxy"),
		Metrics:          recorder,
	})
	if o.printCA {
		_, err := out.Write(p.CACertificatePEM())
		return err
	}

	store, err := download.NewStore(download.ResolveDownloadsDir(dir))
	if err != nil {
		return err
	}
	if err := p.Start(addr); err != nil {
		return err
	}
	defer p.Close()

	queue, err := p.Attach()
	if err != nil {
		return err
	}
	defer p.Detach(queue)

	if o.metricsAddr != "" {
		srv := serveMetrics(o.metricsAddr, reg, a.logger)
		defer srv.Close()
	}

	fmt.Fprintf(out, "Proxy listening on %s, saving downloads to %s\n", p.Endpoint(), store.Dir())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-ctx.Done():
			saveCaptured(out, store, queue, offset, recorder, a.logger)
			return nil
		case <-ticker.C:
			offset = saveCaptured(out, store, queue, offset, recorder, a.logger)
		}
	}
}

// saveCaptured persists the responses captured since offset and returns the
// new offset.
func saveCaptured(out io.Writer, store *download.Store, queue *proxy.CaptureQueue, offset int, recorder *metrics.Recorder, logger *logging.Logger) int {
	captured := queue.Since(offset)
	for _, resp := range captured {
		file, err := store.Save(resp)
		if err != nil {
			logger.Errorf("Failed to save %q from %s: %v", resp.Name, resp.URL, err)
			continue
		}
		recorder.FileDelivered(download.ModeProxy.String(), file.Size)
		logger.Infof("Saved %q (%d bytes) from %s", file.Name, file.Size, file.URL)
		fmt.Fprintf(out, "%s\t%d\t%s\n", file.Path, file.Size, file.URL)
	}
	return offset + len(captured)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server stopped: %v", err)
		}
	}()
	logger.Infof("Serving metrics on %s/metrics", addr)
	return srv
}
