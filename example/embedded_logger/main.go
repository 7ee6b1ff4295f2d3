package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/loykin/vigil"
)

// embedded_logger: capture a supervised service's combined stdout/stderr
// into a rotated file under a chosen directory.
func main() {
	// Use VIGIL_LOG_DIR if set, otherwise a temp directory.
	logDir := os.Getenv("VIGIL_LOG_DIR")
	if logDir == "" {
		logDir = filepath.Join(os.TempDir(), fmt.Sprintf("vigil-logs-%d", time.Now().UnixNano()))
	}
	_ = os.MkdirAll(logDir, 0o750)

	w := vigil.New(vigil.Policy{CheckInterval: 300 * time.Millisecond})

	spec := vigil.Spec{
		Name:       "logger-demo",
		Command:    "sh -c 'echo hello-out; echo hello-err 1>&2; sleep 2'",
		HealthPort: 18081,
		// Grace longer than the demo run keeps the probe quiet; this demo
		// is about output capture, not health.
		StartupGrace: 5 * time.Second,
	}
	// Capture goes to <logDir>/logger-demo.log, rotated by size and age.
	spec.Log.Dir = logDir

	if err := w.Register(spec); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		panic(err)
	}

	fmt.Println("Embedded logger example")
	fmt.Println("  Log directory:", logDir)
	fmt.Println("  Capture file:", filepath.Join(logDir, "logger-demo.log"))
	fmt.Println("Tip: set VIGIL_LOG_DIR to choose a custom log directory.")
}
