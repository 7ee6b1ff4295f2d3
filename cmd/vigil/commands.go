package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/loykin/vigil"
	"github.com/loykin/vigil/internal/probe"
	"github.com/loykin/vigil/pkg/client"
)

const defaultAPIURL = "http://127.0.0.1:8080/api"

const defaultAPITimeout = 10 * time.Second

// command groups the CLI handlers. They talk to a running daemon over its
// status API or load the config file directly; no daemon state is held here.
type command struct {
	out io.Writer
}

// Status fetches service snapshots from a running daemon.
func (c command) Status(f StatusFlags) error {
	apiURL := f.APIUrl
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	cl := client.New(client.Config{BaseURL: apiURL, Timeout: f.APITimeout})
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable at %s - please start the daemon first with 'vigil serve'", apiURL)
	}

	if f.Name != "" {
		st, err := cl.Status(ctx, f.Name)
		if err != nil {
			return err
		}
		if f.JSON {
			printJSON(c.out, st)
			return nil
		}
		renderStatusTable(c.out, []client.ServiceStatus{st})
		return nil
	}

	sts, err := cl.Statuses(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, sts)
		return nil
	}
	renderStatusTable(c.out, sts)
	return nil
}

// CheckResult is one row of check output.
type CheckResult struct {
	Service   string `json:"service"`
	Target    string `json:"target"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Check probes every configured service once from this process, without
// going through a daemon.
func (c command) Check(f CheckFlags) error {
	if f.ConfigPath == "" {
		return fmt.Errorf("config file required for check command. Use --config=config.toml")
	}

	cfg, err := vigil.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	specs := cfg.Services
	if f.Name != "" {
		var match []vigil.Spec
		for _, s := range specs {
			if s.Name == f.Name {
				match = append(match, s)
			}
		}
		if len(match) == 0 {
			return fmt.Errorf("unknown service: %s", f.Name)
		}
		specs = match
	}
	if len(specs) == 0 {
		return fmt.Errorf("no services configured in %s", f.ConfigPath)
	}

	p := probe.New(cfg.Policy.ProbeTimeout)
	results := make([]CheckResult, 0, len(specs))
	unhealthy := 0
	for i := range specs {
		s := &specs[i]
		res := CheckResult{
			Service: s.Name,
			Target:  fmt.Sprintf("http://127.0.0.1:%d%s", s.HealthPort, s.ProbePath()),
		}
		start := time.Now()
		err := p.Check(context.Background(), s.HealthPort, s.ProbePath())
		res.LatencyMS = time.Since(start).Milliseconds()
		res.Healthy = err == nil
		if err != nil {
			res.Error = err.Error()
			unhealthy++
		}
		results = append(results, res)
	}

	if f.JSON {
		printJSON(c.out, results)
	} else {
		renderCheckTable(c.out, results)
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d services unhealthy", unhealthy, len(results))
	}
	return nil
}
