package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const DefaultTimeout = 5 * time.Second

// Prober issues bounded HTTP liveness probes against local services.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New returns a prober whose individual checks are bounded by timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Check GETs http://127.0.0.1:port{path}. Any HTTP response, whatever the
// status code, means something is listening and answering; only transport
// failures (refused, timeout) report unhealthy. The probe tests "process
// up", not application correctness, so error statuses are deliberately not
// treated as failures.
func (p *Prober) Check(ctx context.Context, port int, path string) error {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return nil
}
