package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/vigil"
)

// A fast policy so the demo shows a crash and a restart within seconds.
// A real deployment keeps the stock timings and runs until signalled.
const demoConfig = `[policy]
check_interval = "300ms"
startup_grace = "200ms"
backoff_base = "300ms"
backoff_max = "1s"

[[service]]
name = "flaky"
command = "sleep 1"
health_port = 18080
`

// embedded_config_file: load a TOML config and supervise its services from
// an embedding program instead of the vigil CLI.
func main() {
	dir, err := os.MkdirTemp("", "vigil-demo-")
	if err != nil {
		panic(err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	cfgPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(cfgPath, []byte(demoConfig), 0o644); err != nil {
		panic(err)
	}

	cfg, err := vigil.LoadConfig(cfgPath)
	if err != nil {
		panic(err)
	}
	w, err := vigil.NewFromConfig(cfg)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The "flaky" service exits after a second; the watchdog notices the
	// crash and restarts it with backoff while we watch.
	time.Sleep(2 * time.Second)
	b, _ := json.MarshalIndent(w.StatusAll(), "", "  ")
	fmt.Println(string(b))

	if err := <-done; err != nil {
		panic(err)
	}
}
