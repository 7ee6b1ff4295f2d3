package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"sync"
	"time"
)

// Defaults for optional Config fields.
const (
	DefaultMethod       = http.MethodPatch
	DefaultPayloadField = "webhook_url"
	DefaultTimeout      = 15 * time.Second
)

// Config describes how to detect a dynamically assigned public URL in a
// service's output and register it with an external endpoint. A typical use
// is a tunnel frontend printing its public URL at startup, which must then
// be pushed to a third-party callback registry.
type Config struct {
	Pattern      string        `json:"pattern" mapstructure:"pattern"`
	Method       string        `json:"method" mapstructure:"method"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	PayloadField string        `json:"payload_field" mapstructure:"payload_field"`
	BearerEnv    string        `json:"bearer_env" mapstructure:"bearer_env"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Validate checks required fields and that Pattern compiles.
func (c *Config) Validate() error {
	if c.Pattern == "" {
		return errors.New("announce: pattern is required")
	}
	if _, err := regexp.Compile(c.Pattern); err != nil {
		return fmt.Errorf("announce: invalid pattern: %w", err)
	}
	if c.Endpoint == "" {
		return errors.New("announce: endpoint is required")
	}
	return nil
}

func (c Config) normalized() Config {
	if c.Method == "" {
		c.Method = DefaultMethod
	}
	if c.PayloadField == "" {
		c.PayloadField = DefaultPayloadField
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Scanner watches output lines for the configured pattern and registers the
// first match with the external endpoint, at most once per process run.
// Scan never blocks on the network; registration runs in its own goroutine.
type Scanner struct {
	cfg    Config
	re     *regexp.Regexp
	client *http.Client

	mu      sync.Mutex
	fired   bool
	lastURL string
}

// New builds a Scanner from cfg. The returned Scanner is safe for use from a
// single output-pump goroutine plus concurrent Reset calls.
func New(cfg Config) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()
	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("announce: invalid pattern: %w", err)
	}
	return &Scanner{
		cfg:    cfg,
		re:     re,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Scan inspects one output line. On the first match per process run it
// dispatches the registration call and goes quiet until Reset.
func (s *Scanner) Scan(line string) {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	url := s.re.FindString(line)
	if url == "" {
		s.mu.Unlock()
		return
	}
	s.fired = true
	s.lastURL = url
	s.mu.Unlock()

	slog.Info("Detected service URL", "url", url)
	go s.register(url)
}

// Reset re-arms the scanner for a new process run. The URL usually changes
// across restarts, so each run announces again.
func (s *Scanner) Reset() {
	s.mu.Lock()
	s.fired = false
	s.mu.Unlock()
}

// LastURL returns the most recently detected URL, or "" if none.
func (s *Scanner) LastURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastURL
}

func (s *Scanner) register(url string) {
	body, err := json.Marshal(map[string]string{s.cfg.PayloadField: url})
	if err != nil {
		slog.Warn("Failed to encode announce payload", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		slog.Warn("Failed to build announce request", "endpoint", s.cfg.Endpoint, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.BearerEnv != "" {
		if token := os.Getenv(s.cfg.BearerEnv); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("Announce request failed", "endpoint", s.cfg.Endpoint, "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		slog.Warn("Announce request rejected", "endpoint", s.cfg.Endpoint, "status", resp.StatusCode)
		return
	}
	slog.Info("Announced service URL", "url", url, "endpoint", s.cfg.Endpoint)
}
