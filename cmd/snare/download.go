package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/entrhq/snare/pkg/browser"
	"github.com/entrhq/snare/pkg/config"
	"github.com/entrhq/snare/pkg/download"
	"github.com/entrhq/snare/pkg/files"
	"github.com/entrhq/snare/pkg/metrics"
)

// downloadOptions holds the download command's flags. Unset flags fall back
// to the configuration.
type downloadOptions struct {
	click    string
	confirm  bool
	dialogs  string
	ext      string
	name     string
	match    string
	glob     string
	strategy string
	timeout  time.Duration
	engine   string
	headless bool
	dir      string

	output      string
	metricsFile string
}

// downloadSummary is written to --output as JSON.
type downloadSummary struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Mode        string `json:"mode"`
	ElapsedMs   int64  `json:"elapsed_ms"`
}

func newDownloadCmd(a *app) *cobra.Command {
	o := &downloadOptions{}

	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Open URL and return the file its download produces",
		Long: `Open URL in a browser and wait for a download to complete.

Without --click the URL itself is expected to be served as a download. With
--click the page is opened first and the download is triggered by clicking
the element matching the selector.`,
		Example: `  snare download https://example.com/report.pdf
  snare download https://example.com/reports --click "a#export" --ext csv
  snare download https://example.com --click "#delete-and-export" --confirm --strategy folder`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDownload(cmd, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.click, "click", "", "CSS selector of the element that starts the download")
	f.BoolVar(&o.confirm, "confirm", false, "accept dialogs raised by the click")
	f.StringVar(&o.dialogs, "dialogs", "dismiss", "answer to other JavaScript dialogs: accept or dismiss")
	f.StringVar(&o.ext, "ext", "", "only accept files with this extension")
	f.StringVar(&o.name, "name", "", "only accept a file with exactly this name")
	f.StringVar(&o.match, "match", "", "only accept file names matching this regular expression")
	f.StringVar(&o.glob, "glob", "", "only accept file names matching this shell pattern")
	f.StringVar(&o.strategy, "strategy", "", "how the file is observed: proxy or folder")
	f.DurationVar(&o.timeout, "timeout", 0, "how long to wait for the file")
	f.StringVar(&o.engine, "engine", "", "browser engine: playwright or chrome (or $"+envEngine+")")
	f.BoolVar(&o.headless, "headless", true, "run the browser without a window")
	f.StringVar(&o.dir, "dir", "", "downloads directory (or $"+envDownloadsDir+")")
	f.StringVarP(&o.output, "output", "o", "", "write a JSON summary of the download to this file")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")

	return cmd
}

// buildFilter combines the filter flags. No flags accept any file.
func buildFilter(o *downloadOptions) (files.Filter, error) {
	var filters []files.Filter

	if o.ext != "" {
		filters = append(filters, files.ByExtension(o.ext))
	}
	if o.name != "" {
		filters = append(filters, files.ByName(o.name))
	}
	if o.match != "" {
		f, err := files.ByNameMatching(o.match)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	if o.glob != "" {
		f, err := files.ByGlob(o.glob)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	switch len(filters) {
	case 0:
		return files.Any(), nil
	case 1:
		return filters[0], nil
	default:
		return files.All(filters...), nil
	}
}

// resolvedDownload is the outcome of merging flags, environment and config.
type resolvedDownload struct {
	mode         download.Mode
	timeout      time.Duration
	pollInterval time.Duration
	engine       string
	session      browser.SessionOptions
}

func resolveDownload(cmd *cobra.Command, o *downloadOptions) (*resolvedDownload, error) {
	strategy, timeout, pollInterval, dir := config.GetDownloads().Settings()
	bs := config.GetBrowser().Snapshot()

	if o.strategy != "" {
		strategy = o.strategy
	}
	if o.timeout > 0 {
		timeout = o.timeout
	}
	if o.dir != "" {
		dir = o.dir
	} else if env := os.Getenv(envDownloadsDir); env != "" {
		dir = env
	}
	engine := bs.Engine
	if o.engine != "" {
		engine = o.engine
	} else if env := os.Getenv(envEngine); env != "" {
		engine = env
	}
	if engine != config.EnginePlaywright && engine != config.EngineChrome {
		return nil, fmt.Errorf("unknown engine %q", engine)
	}
	headless := bs.Headless
	if cmd.Flags().Changed("headless") {
		headless = o.headless
	}

	mode, err := download.ParseMode(strategy)
	if err != nil {
		return nil, err
	}
	dialogs, err := browser.ParseDialogPolicy(o.dialogs)
	if err != nil {
		return nil, err
	}

	return &resolvedDownload{
		mode:         mode,
		timeout:      timeout,
		pollInterval: pollInterval,
		engine:       engine,
		session: browser.SessionOptions{
			Headless:         headless,
			DownloadsDir:     dir,
			Proxy:            bs.ProxyEnabled || mode == download.ModeProxy,
			ProxyAddr:        bs.ProxyAddr,
			InsecureUpstream: bs.InsecureUpstream,
			MaxCaptureBytes:  bs.MaxCaptureBytes,
			Dialogs:          dialogs,
		},
	}, nil
}

func (a *app) runDownload(cmd *cobra.Command, o *downloadOptions, url string) error {
	ctx := cmd.Context()

	filter, err := buildFilter(o)
	if err != nil {
		return err
	}
	r, err := resolveDownload(cmd, o)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	recorder, err := metrics.New("snare", reg)
	if err != nil {
		return err
	}
	if o.metricsFile != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
				a.logger.Warnf("Failed to write metrics to %s: %v", o.metricsFile, err)
			}
		}()
	}

	r.session.Metrics = recorder
	r.session.Logger = a.logger.Named("browser")
	session, release, err := openSession(ctx, r.engine, r.session, a.logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer release()

	action, description, err := prepareAction(ctx, session, o, url)
	if err != nil {
		return err
	}

	coordinator := download.NewCoordinator(
		download.WithLogger(a.logger.Named("download")),
		download.WithMetrics(recorder),
		download.WithPollInterval(r.pollInterval),
	)

	start := time.Now()
	file, err := coordinator.Download(ctx, session, download.Request{
		Filter:      filter,
		Timeout:     r.timeout,
		Mode:        r.mode,
		Action:      action,
		Description: description,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), file.Path)
	if o.output != "" {
		return writeSummary(o.output, file, r.mode, time.Since(start))
	}
	return nil
}

// prepareAction opens the page when the download is triggered by a click and
// returns the action that starts the download.
func prepareAction(ctx context.Context, session browserSession, o *downloadOptions, url string) (download.Action, string, error) {
	if o.click == "" {
		return session.Navigate(url), "navigating to " + url, nil
	}

	if err := session.Run(ctx, session.Navigate(url)); err != nil {
		return nil, "", err
	}
	if o.confirm {
		return session.ClickConfirming(o.click, browser.DialogAccept), "clicking " + o.click, nil
	}
	return session.Click(o.click), "clicking " + o.click, nil
}

func writeSummary(path string, file *files.DownloadedFile, mode download.Mode, elapsed time.Duration) error {
	data, err := json.MarshalIndent(downloadSummary{
		Name:        file.Name,
		Path:        file.Path,
		Size:        file.Size,
		URL:         file.URL,
		ContentType: file.ContentType,
		Mode:        mode.String(),
		ElapsedMs:   elapsed.Milliseconds(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
