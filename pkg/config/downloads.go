package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

const (
	// SectionIDDownloads is the identifier for the downloads section
	SectionIDDownloads = "downloads"

	// StrategyProxy captures downloads from intercepted traffic
	StrategyProxy = "proxy"
	// StrategyFolder watches the browser's downloads directory
	StrategyFolder = "folder"

	defaultStrategy     = StrategyProxy
	defaultTimeout      = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// DefaultDownloadsDir is used when downloads_dir is not configured.
var DefaultDownloadsDir = filepath.Join("~", ".snare", "downloads")

// DownloadsSection configures how downloads are awaited.
type DownloadsSection struct {
	Strategy     string        `yaml:"strategy"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	DownloadsDir string        `yaml:"downloads_dir"`
	mu           sync.RWMutex
}

// NewDownloadsSection creates a downloads section with default settings.
func NewDownloadsSection() *DownloadsSection {
	s := &DownloadsSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *DownloadsSection) ID() string {
	return SectionIDDownloads
}

// Title returns the section title.
func (s *DownloadsSection) Title() string {
	return "Downloads"
}

// Description returns the section description.
func (s *DownloadsSection) Description() string {
	return "Capture strategy, default timeout and where downloaded files are stored."
}

// Data returns the current configuration data.
func (s *DownloadsSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"strategy":      s.Strategy,
		"timeout":       s.Timeout.String(),
		"poll_interval": s.PollInterval.String(),
		"downloads_dir": s.DownloadsDir,
	}
}

// SetData updates the configuration from the provided data.
func (s *DownloadsSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "strategy":
			strategy, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for strategy: expected string, got %T", value)
			}
			s.Strategy = strategy

		case "timeout":
			d, err := parseDuration(key, value)
			if err != nil {
				return err
			}
			s.Timeout = d

		case "poll_interval":
			d, err := parseDuration(key, value)
			if err != nil {
				return err
			}
			s.PollInterval = d

		case "downloads_dir":
			dir, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for downloads_dir: expected string, got %T", value)
			}
			s.DownloadsDir = dir

		default:
			// Ignore unknown keys for forward compatibility
			continue
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *DownloadsSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Strategy {
	case StrategyProxy, StrategyFolder:
	default:
		return fmt.Errorf("strategy must be %q or %q, got %q", StrategyProxy, StrategyFolder, s.Strategy)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", s.Timeout)
	}
	if s.PollInterval <= 0 || s.PollInterval > s.Timeout {
		return fmt.Errorf("poll_interval must be positive and at most the timeout, got %v", s.PollInterval)
	}
	if s.DownloadsDir == "" {
		return fmt.Errorf("downloads_dir must not be empty")
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *DownloadsSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Strategy = defaultStrategy
	s.Timeout = defaultTimeout
	s.PollInterval = defaultPollInterval
	s.DownloadsDir = DefaultDownloadsDir
}

// Settings returns (strategy, timeout, pollInterval, downloadsDir).
func (s *DownloadsSection) Settings() (string, time.Duration, time.Duration, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Strategy, s.Timeout, s.PollInterval, s.DownloadsDir
}

// parseDuration accepts "30s"-style strings or a number of nanoseconds.
func parseDuration(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v), nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("invalid value type for %s: expected string or number, got %T", key, value)
	}
}
