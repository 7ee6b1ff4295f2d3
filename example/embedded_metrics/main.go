package main

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/vigil"
)

// embedded_metrics: serve Prometheus metrics next to an embedded watchdog.
// Nothing listens on the demo service's health port, so probe failures and
// restarts move the counters while the demo runs.
func main() {
	if err := vigil.RegisterMetricsDefault(); err != nil {
		panic(err)
	}
	go func() {
		fmt.Println("Serving Prometheus metrics at http://localhost:9090/metrics")
		if err := vigil.ServeMetrics(":9090"); err != nil {
			panic(err)
		}
	}()

	policy := vigil.DefaultPolicy()
	policy.CheckInterval = 300 * time.Millisecond
	policy.StartupGrace = 200 * time.Millisecond
	policy.BackoffBase = 300 * time.Millisecond
	policy.BackoffMax = time.Second

	w := vigil.New(policy)
	if err := w.Register(vigil.Spec{Name: "metrics-demo", Command: "sleep 2", HealthPort: 19090}); err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	fmt.Println("Started metrics-demo; scrape /metrics while it runs...")
	if err := w.Run(ctx); err != nil {
		panic(err)
	}
	fmt.Println("Stopped metrics-demo. Check the counters in /metrics.")
}
