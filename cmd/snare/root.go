package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/entrhq/snare/pkg/config"
	"github.com/entrhq/snare/pkg/logging"
)

// Environment variables read after the .env file is loaded
const (
	envConfig       = "SNARE_CONFIG"
	envDownloadsDir = "SNARE_DOWNLOADS_DIR"
	envEngine       = "SNARE_ENGINE"
)

// app carries what every command needs once the root pre-run is done.
type app struct {
	configPath string
	envFile    string

	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "snare",
		Short:         "Capture files downloaded by a browser",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default ~/.snare/config.yaml, or $"+envConfig+")")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(
		newDownloadCmd(a),
		newProxyCmd(a),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	if err := loadEnv(a.envFile); err != nil {
		return err
	}

	path := a.configPath
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if err := config.Initialize(path); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	logger, err := logging.NewLogger("snare")
	if err != nil {
		// NewLogger falls back to stderr, keep going
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	a.logger = logger
	a.logger.Debugf("Configuration loaded from %s", configFile())
	return nil
}

func configFile() string {
	if fs, ok := config.Global().Store().(*config.FileStore); ok {
		return fs.Path()
	}
	return ""
}

// loadEnv loads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
