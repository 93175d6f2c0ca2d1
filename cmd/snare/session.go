package main

import (
	"context"

	"github.com/entrhq/snare/pkg/browser"
	"github.com/entrhq/snare/pkg/config"
	"github.com/entrhq/snare/pkg/download"
	"github.com/entrhq/snare/pkg/logging"
)

// browserSession is what the CLI needs from either engine.
type browserSession interface {
	download.Session
	Navigate(url string) download.Action
	Click(selector string) download.Action
	ClickConfirming(selector string, policy browser.DialogPolicy) download.Action
}

var (
	_ browserSession = (*browser.Session)(nil)
	_ browserSession = (*browser.ChromeSession)(nil)
)

// openSession starts a browser for engine. The returned func releases it.
func openSession(ctx context.Context, engine string, opts browser.SessionOptions, logger *logging.Logger) (browserSession, func(), error) {
	if engine == config.EngineChrome {
		session, err := browser.NewChromeSession(ctx, opts)
		if err != nil {
			return nil, nil, err
		}
		return session, func() { _ = session.Close() }, nil
	}

	manager := browser.NewSessionManager(logger)
	if err := manager.Initialize(); err != nil {
		return nil, nil, err
	}
	session, err := manager.StartSession("cli", opts)
	if err != nil {
		_ = manager.Shutdown()
		return nil, nil, err
	}
	return session, func() { _ = manager.Shutdown() }, nil
}
