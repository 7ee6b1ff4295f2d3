package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/vigil/internal/announce"
	"github.com/loykin/vigil/internal/env"
	"github.com/loykin/vigil/internal/history"
	"github.com/loykin/vigil/internal/metrics"
	"github.com/loykin/vigil/internal/monitor"
	"github.com/loykin/vigil/internal/notify"
	"github.com/loykin/vigil/internal/portguard"
	"github.com/loykin/vigil/internal/probe"
)

// Watchdog owns a set of service monitors and runs one independent
// supervision loop per service. Loops share nothing but the shutdown
// context; a cooldown or failure in one service never stalls another.
type Watchdog struct {
	mu       sync.RWMutex
	policy   monitor.Policy
	prober   *probe.Prober
	guard    portguard.Guard
	notifier *notify.Notifier
	sinks    []history.Sink
	envs     *env.Table

	// unified per-service entry holding the monitor and its optional scanner
	entries map[string]*svcEntry
	order   []string

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type svcEntry struct {
	m  *monitor.Monitor
	sc *announce.Scanner
}

// New returns a watchdog with the given policy. Zero policy fields fall back
// to the stock defaults.
func New(policy monitor.Policy) *Watchdog {
	policy = policy.Normalize()
	return &Watchdog{
		policy:  policy,
		prober:  probe.New(policy.ProbeTimeout),
		guard:   portguard.New(),
		envs:    env.New(),
		entries: make(map[string]*svcEntry),
	}
}

func (w *Watchdog) Policy() monitor.Policy { return w.policy }

// Register adds a service to supervise. Specs are validated up front and
// must be registered before Run.
func (w *Watchdog) Register(spec monitor.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if w.running.Load() {
		return fmt.Errorf("cannot register %q while the watchdog is running", spec.Name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[spec.Name]; ok {
		return fmt.Errorf("duplicate service name: %s", spec.Name)
	}
	e := &svcEntry{m: monitor.New(spec, w.policy)}
	if spec.Announce != nil {
		sc, err := announce.New(*spec.Announce)
		if err != nil {
			return fmt.Errorf("service %q: %w", spec.Name, err)
		}
		e.sc = sc
		e.m.SetOutputHook(sc.Scan)
	}
	w.entries[spec.Name] = e
	w.order = append(w.order, spec.Name)
	return nil
}

// SetNotifier configures the lifecycle webhook sink. Passing nil disables
// notifications.
func (w *Watchdog) SetNotifier(n *notify.Notifier) {
	w.mu.Lock()
	w.notifier = n
	w.mu.Unlock()
}

// SetHistorySinks configures external audit sinks (SQLite, ClickHouse, etc.).
// Passing nil or no sinks clears the list.
func (w *Watchdog) SetHistorySinks(sinks ...history.Sink) {
	w.mu.Lock()
	w.sinks = append([]history.Sink(nil), sinks...)
	w.mu.Unlock()
}

// SetGlobalEnv configures the environment table merged into every service's
// environment at start time.
func (w *Watchdog) SetGlobalEnv(t *env.Table) {
	w.mu.Lock()
	w.envs = t
	w.mu.Unlock()
}

// SetGuard replaces the port reconciliation strategy. portguard.Noop opts
// out of stale-process cleanup.
func (w *Watchdog) SetGuard(g portguard.Guard) {
	w.mu.Lock()
	w.guard = g
	w.mu.Unlock()
}

// Run starts one supervision loop per registered service and blocks until
// ctx is cancelled (or Shutdown is called) and every loop has killed its
// process and returned.
func (w *Watchdog) Run(ctx context.Context) error {
	w.mu.RLock()
	monitors := make([]*monitor.Monitor, 0, len(w.order))
	for _, name := range w.order {
		monitors = append(monitors, w.entries[name].m)
	}
	w.mu.RUnlock()
	if len(monitors) == 0 {
		return errors.New("no services registered")
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("watchdog already running")
	}
	defer w.running.Store(false)

	cctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	slog.Info("Watchdog starting", "services", len(monitors), "check_interval", w.policy.CheckInterval)
	for _, m := range monitors {
		sp := m.Spec()
		slog.Info("Supervising service", "service", sp.Name, "port", sp.HealthPort, "command", sp.Command)
	}

	for _, m := range monitors {
		w.wg.Add(1)
		go w.supervise(cctx, m)
	}
	w.wg.Wait()
	slog.Info("Watchdog stopped")
	return nil
}

// Shutdown cancels all supervision loops and blocks until each one has
// killed its process and returned.
func (w *Watchdog) Shutdown() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

// Status returns the snapshot for one service.
func (w *Watchdog) Status(name string) (monitor.Status, error) {
	w.mu.RLock()
	e := w.entries[name]
	w.mu.RUnlock()
	if e == nil {
		return monitor.Status{}, fmt.Errorf("unknown service: %s", name)
	}
	return e.m.Snapshot(), nil
}

// StatusAll returns snapshots for every service in registration order.
func (w *Watchdog) StatusAll() []monitor.Status {
	w.mu.RLock()
	ms := make([]*monitor.Monitor, 0, len(w.order))
	for _, name := range w.order {
		ms = append(ms, w.entries[name].m)
	}
	w.mu.RUnlock()
	res := make([]monitor.Status, 0, len(ms))
	for _, m := range ms {
		res = append(res, m.Snapshot())
	}
	return res
}

// supervise is the per-service loop. The monitor's mutable state is driven
// only from here; other goroutines read snapshots.
func (w *Watchdog) supervise(ctx context.Context, m *monitor.Monitor) {
	defer w.wg.Done()
	grace := m.Spec().Grace(w.policy)

	// A failed initial start is not fatal: the loop below sees the dead
	// process and applies the regular restart policy.
	if err := w.startService(ctx, m); err == nil {
		if !sleepCtx(ctx, grace) {
			w.stopService(m)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.stopService(m)
			return
		default:
		}

		var restarted bool
		if !m.Alive() {
			restarted = w.handleCrash(ctx, m)
		} else {
			restarted = w.probeOnce(ctx, m)
		}
		// A restart already slept through backoff and grace; go straight to
		// the next check.
		if restarted {
			continue
		}
		if !sleepCtx(ctx, w.policy.CheckInterval) {
			w.stopService(m)
			return
		}
	}
}

// probeOnce issues one health probe and applies the success and failure
// paths. It reports whether a restart action was taken.
func (w *Watchdog) probeOnce(ctx context.Context, m *monitor.Monitor) bool {
	name := m.Name()
	spec := m.Spec()

	begin := time.Now()
	err := w.prober.Check(ctx, spec.HealthPort, spec.ProbePath())
	metrics.ObserveProbeDuration(name, time.Since(begin).Seconds())

	if err == nil {
		m.ResetProbeFailures()
		if m.HadFailure() {
			slog.Info("Service recovered", "service", name)
			metrics.IncRecovery(name)
			w.record(history.EventRecovery, m, "Service is healthy again")
			w.notifyEvent(m, notify.KindRecovery, "Service is healthy again")
			m.SetHadFailure(false)
		}
		now := time.Now()
		if m.Uptime(now) > w.policy.StableUptime && m.RestartsInWindow(now) > 0 {
			slog.Info("Service stable, forgetting restart history", "service", name)
			m.ClearWindow()
		}
		return false
	}
	if ctx.Err() != nil {
		// Shutting down; do not count an aborted probe as a failure.
		return false
	}
	metrics.IncProbeFailure(name)
	fails := m.IncProbeFailures()
	slog.Warn("Health probe failed", "service", name,
		"failures", fails, "max", w.policy.MaxProbeFailures, "err", err)
	if fails >= w.policy.MaxProbeFailures {
		return w.handleUnresponsive(ctx, m)
	}
	return false
}

// handleCrash runs the crash path for a process that exited on its own.
func (w *Watchdog) handleCrash(ctx context.Context, m *monitor.Monitor) bool {
	name := m.Name()
	st := m.Snapshot()
	detail := "Process exited"
	if st.ExitError != "" {
		detail = "Process exited (" + st.ExitError + ")"
	}
	slog.Error("Service exited unexpectedly", "service", name, "pid", st.PID, "exit", st.ExitError)
	metrics.IncCrash(name)
	metrics.SetUp(name, false)
	w.record(history.EventCrash, m, detail)
	w.notifyEvent(m, notify.KindCrash, detail)
	m.SetHadFailure(true)
	// Releases the exited handle and drains the output pump; for a dead
	// process this never signals anything.
	_ = m.Kill(context.Background())
	return w.restartAfterFailure(ctx, m)
}

// handleUnresponsive force-kills a process that kept failing probes, then
// runs the same storm/backoff/restart path as a crash.
func (w *Watchdog) handleUnresponsive(ctx context.Context, m *monitor.Monitor) bool {
	name := m.Name()
	slog.Error("Service unresponsive, forcing restart",
		"service", name, "failures", w.policy.MaxProbeFailures)
	metrics.IncUnresponsive(name)
	metrics.SetUp(name, false)
	detail := "Unresponsive (HTTP health check failed)"
	w.record(history.EventUnresponsive, m, detail)
	// The webhook taxonomy folds unresponsive into crash; the audit trail
	// keeps them apart.
	w.notifyEvent(m, notify.KindCrash, detail)
	m.SetHadFailure(true)
	if err := m.Kill(context.Background()); err != nil {
		slog.Warn("Failed to kill unresponsive service", "service", name, "err", err)
	}
	return w.restartAfterFailure(ctx, m)
}

// restartAfterFailure applies storm detection, cooldown, backoff and the
// restart itself. Returns true when a restart action was taken; false means
// ctx was cancelled mid-way and the loop should wind down.
func (w *Watchdog) restartAfterFailure(ctx context.Context, m *monitor.Monitor) bool {
	name := m.Name()
	if m.RecordRestart(time.Now()) {
		slog.Error("Restart storm detected, entering cooldown", "service", name,
			"window", w.policy.RestartWindow, "cooldown", w.policy.Cooldown)
		metrics.IncCooldown(name)
		detail := fmt.Sprintf("Too many restarts (%d). Cooling down for %s.",
			m.TotalRestarts(), w.policy.Cooldown)
		w.record(history.EventCooldown, m, detail)
		w.notifyEvent(m, notify.KindCooldown, detail)
		m.SetCooldown(true)
		ok := sleepCtx(ctx, w.policy.Cooldown)
		m.SetCooldown(false)
		m.ClearWindow()
		if !ok {
			return false
		}
		slog.Info("Cooldown complete, resuming", "service", name)
	}
	backoff := m.Backoff(time.Now())
	slog.Info("Restarting service", "service", name, "backoff", backoff)
	if !sleepCtx(ctx, backoff) {
		return false
	}
	if err := w.startService(ctx, m); err != nil {
		// Next iteration sees the dead process and retries with backoff.
		return true
	}
	metrics.IncRestart(name)
	if !sleepCtx(ctx, m.Spec().Grace(w.policy)) {
		return false
	}
	return true
}

// startService reconciles the health port, re-arms the announce scanner,
// merges the environment and launches the process.
func (w *Watchdog) startService(ctx context.Context, m *monitor.Monitor) error {
	spec := m.Spec()
	name := spec.Name
	w.mu.RLock()
	guard := w.guard
	envs := w.envs
	var sc *announce.Scanner
	if e := w.entries[name]; e != nil {
		sc = e.sc
	}
	w.mu.RUnlock()

	if guard != nil {
		if err := guard.TerminateOnPort(ctx, spec.HealthPort, os.Getpid()); err != nil {
			slog.Warn("Port cleanup failed", "service", name, "port", spec.HealthPort, "err", err)
		}
	}
	// The URL usually changes across runs, so each run announces again.
	if sc != nil {
		sc.Reset()
	}
	if envs != nil {
		m.SetEnv(envs.Merge(spec.Env))
	}
	if err := m.Start(ctx); err != nil {
		slog.Error("Failed to start service", "service", name, "err", err)
		return err
	}
	metrics.IncStart(name)
	metrics.SetUp(name, true)
	w.record(history.EventStart, m, "")
	return nil
}

// stopService is the shutdown path of one loop: kill the process, release
// the capture writer and record the stop.
func (w *Watchdog) stopService(m *monitor.Monitor) {
	name := m.Name()
	slog.Info("Stopping service", "service", name)
	if err := m.Kill(context.Background()); err != nil {
		slog.Warn("Failed to stop service", "service", name, "err", err)
	}
	_ = m.Close()
	metrics.SetUp(name, false)
	w.record(history.EventStop, m, "Watchdog shutdown")
	slog.Info("Stopped service", "service", name)
}

// record fans an audit event out to all configured sinks, best effort.
func (w *Watchdog) record(t history.EventType, m *monitor.Monitor, detail string) {
	w.mu.RLock()
	sinks := append([]history.Sink(nil), w.sinks...)
	w.mu.RUnlock()
	if len(sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Service:    m.Name(),
		PID:        m.PID(),
		Restarts:   m.TotalRestarts(),
		Detail:     detail,
	}
	for _, s := range sinks {
		_ = s.Send(context.Background(), e)
	}
}

// notifyEvent dispatches one lifecycle webhook, fire and forget. Events
// about the sink's own service are suppressed, as are events while the
// supervised sink service is down.
func (w *Watchdog) notifyEvent(m *monitor.Monitor, kind, detail string) {
	w.mu.RLock()
	n := w.notifier
	w.mu.RUnlock()
	if n == nil {
		return
	}
	name := m.Name()
	if sink := n.SinkService(); sink != "" {
		if sink == name {
			return
		}
		w.mu.RLock()
		se := w.entries[sink]
		w.mu.RUnlock()
		if se != nil && !se.m.Alive() {
			return
		}
	}
	ev := notify.NewEvent(name, kind, detail,
		m.TotalRestarts(), int64(m.Uptime(time.Now()).Seconds()))
	go func() {
		err := n.Notify(context.Background(), ev)
		metrics.IncNotification(name, err == nil)
	}()
}

// sleepCtx sleeps for d unless ctx is cancelled first. It reports whether
// the full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
