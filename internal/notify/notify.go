package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Lifecycle kinds carried in webhook events.
const (
	KindCrash    = "crash"
	KindCooldown = "cooldown"
	KindRecovery = "recovery"
)

const (
	DefaultTimeout = 5 * time.Second
	MaxTimeout     = 10 * time.Second
)

// Event is the wire format of one lifecycle notification.
type Event struct {
	Event        string `json:"event"` // "<service>.<crash|cooldown|recovery>"
	Timestamp    string `json:"timestamp"`
	Details      string `json:"details"`
	RestartCount int    `json:"restart_count"`
	UptimeSecs   int64  `json:"uptime_secs"`
}

// NewEvent stamps an event for service with the current UTC time.
func NewEvent(service, kind, details string, restarts int, uptimeSecs int64) Event {
	return Event{
		Event:        service + "." + kind,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Details:      details,
		RestartCount: restarts,
		UptimeSecs:   uptimeSecs,
	}
}

// Config configures the webhook sink.
type Config struct {
	URL     string        `json:"url" mapstructure:"url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	// Service names the supervised service that hosts the sink endpoint,
	// if any. The supervisor uses it to suppress self-referential noise.
	Service string `json:"service" mapstructure:"service"`
}

// Notifier delivers lifecycle events to a webhook, best effort. Delivery
// failures are warnings, never fatal to supervision.
type Notifier struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	cfg.Timeout = timeout
	return &Notifier{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

// SinkService returns the supervised service hosting the sink, "" when the
// sink is external.
func (n *Notifier) SinkService() string { return n.cfg.Service }

// Notify POSTs ev as JSON. The returned error reports the delivery result
// for accounting; it has already been logged and callers are free to drop
// it.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("Notification delivery failed", "event", ev.Event, "err", err)
		return fmt.Errorf("deliver %s: %w", ev.Event, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Notification rejected", "event", ev.Event, "status", resp.StatusCode)
		return fmt.Errorf("deliver %s: status %d", ev.Event, resp.StatusCode)
	}
	slog.Debug("Notification delivered", "event", ev.Event)
	return nil
}
