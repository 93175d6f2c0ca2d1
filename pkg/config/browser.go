package config

import (
	"fmt"
	"net"
	"sync"
)

const (
	// SectionIDBrowser is the identifier for the browser section
	SectionIDBrowser = "browser"

	// EnginePlaywright drives Chromium through Playwright
	EnginePlaywright = "playwright"
	// EngineChrome drives a local Chrome over the DevTools protocol
	EngineChrome = "chrome"

	defaultEngine          = EnginePlaywright
	defaultHeadless        = true
	defaultProxyEnabled    = true
	defaultProxyAddr       = "127.0.0.1:0"
	defaultInsecure        = true
	defaultMaxCaptureBytes = 256 << 20
)

// BrowserSection configures the browser and its capture proxy.
type BrowserSection struct {
	Engine           string `yaml:"engine"`
	Headless         bool   `yaml:"headless"`
	ProxyEnabled     bool   `yaml:"proxy_enabled"`
	ProxyAddr        string `yaml:"proxy_addr"`
	InsecureUpstream bool   `yaml:"insecure_upstream"`
	MaxCaptureBytes  int64  `yaml:"max_capture_bytes"`
	mu               sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	s := &BrowserSection{}
	s.Reset()
	return s
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Browser engine, headless mode and the traffic proxy downloads are captured through."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"engine":            s.Engine,
		"headless":          s.Headless,
		"proxy_enabled":     s.ProxyEnabled,
		"proxy_addr":        s.ProxyAddr,
		"insecure_upstream": s.InsecureUpstream,
		"max_capture_bytes": s.MaxCaptureBytes,
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]any) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, value := range data {
		switch key {
		case "engine", "proxy_addr":
			str, ok := value.(string)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
			}
			if key == "engine" {
				s.Engine = str
			} else {
				s.ProxyAddr = str
			}

		case "headless", "proxy_enabled", "insecure_upstream":
			enabled, ok := value.(bool)
			if !ok {
				return fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
			}
			switch key {
			case "headless":
				s.Headless = enabled
			case "proxy_enabled":
				s.ProxyEnabled = enabled
			default:
				s.InsecureUpstream = enabled
			}

		case "max_capture_bytes":
			switch v := value.(type) {
			case int:
				s.MaxCaptureBytes = int64(v)
			case int64:
				s.MaxCaptureBytes = v
			case float64:
				s.MaxCaptureBytes = int64(v)
			default:
				return fmt.Errorf("invalid value type for max_capture_bytes: expected number, got %T", value)
			}

		default:
			continue
		}
	}

	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.Engine {
	case EnginePlaywright, EngineChrome:
	default:
		return fmt.Errorf("engine must be %q or %q, got %q", EnginePlaywright, EngineChrome, s.Engine)
	}
	if s.ProxyEnabled {
		if _, _, err := net.SplitHostPort(s.ProxyAddr); err != nil {
			return fmt.Errorf("invalid proxy_addr %q: %w", s.ProxyAddr, err)
		}
	}
	if s.MaxCaptureBytes <= 0 {
		return fmt.Errorf("max_capture_bytes must be positive, got %d", s.MaxCaptureBytes)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Engine = defaultEngine
	s.Headless = defaultHeadless
	s.ProxyEnabled = defaultProxyEnabled
	s.ProxyAddr = defaultProxyAddr
	s.InsecureUpstream = defaultInsecure
	s.MaxCaptureBytes = defaultMaxCaptureBytes
}

// Snapshot returns a copy of the current settings without the lock.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BrowserSettings{
		Engine:           s.Engine,
		Headless:         s.Headless,
		ProxyEnabled:     s.ProxyEnabled,
		ProxyAddr:        s.ProxyAddr,
		InsecureUpstream: s.InsecureUpstream,
		MaxCaptureBytes:  s.MaxCaptureBytes,
	}
}

// BrowserSettings is a lock-free copy of BrowserSection.
type BrowserSettings struct {
	Engine           string
	Headless         bool
	ProxyEnabled     bool
	ProxyAddr        string
	InsecureUpstream bool
	MaxCaptureBytes  int64
}
