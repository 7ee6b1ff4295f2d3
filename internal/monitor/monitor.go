package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// maxLineSize bounds a single captured output line. Longer lines make the
// scanner stop rather than grow the buffer without limit.
const maxLineSize = 1024 * 1024

// pump owns the read end of the child's combined output pipe. closeRead is
// idempotent so Kill and a concurrent EOF cannot double-close the file.
type pump struct {
	r    *os.File
	done chan struct{} // closed when the pump goroutine has drained and returned
	once sync.Once
}

func (p *pump) closeRead() { p.once.Do(func() { _ = p.r.Close() }) }

// Monitor owns the lifecycle of exactly one child process for one Spec:
// start/kill, restart-rate accounting, backoff computation and non-blocking
// output consumption. The supervision loop that drives it is elsewhere; the
// monitor itself never restarts anything on its own.
type Monitor struct {
	spec   Spec
	policy Policy

	mu       sync.Mutex
	cmd      *exec.Cmd
	waitDone chan struct{} // closed by the reaper when cmd.Wait returns
	out      *pump
	capture  io.WriteCloser // rotated service log, kept open across restarts
	hook     func(string)
	env      []string

	restartTimes  []time.Time
	totalRestarts int
	probeFails    int
	startedAt     time.Time
	stoppedAt     time.Time
	exitErr       error
	running       bool
	pid           int
	inCooldown    bool
	hadFailure    bool
}

// New returns a monitor for spec. Zero policy fields are filled with the
// stock defaults.
func New(spec Spec, policy Policy) *Monitor {
	return &Monitor{spec: spec, policy: policy.Normalize()}
}

func (m *Monitor) Name() string { return m.spec.Name }

func (m *Monitor) Spec() Spec { return m.spec }

func (m *Monitor) Policy() Policy { return m.policy }

// SetEnv replaces the merged environment used for subsequent starts.
func (m *Monitor) SetEnv(env []string) {
	m.mu.Lock()
	m.env = env
	m.mu.Unlock()
}

// SetOutputHook installs a per-line callback invoked by the output pump.
// The callback must not block; slow work belongs in its own goroutine.
func (m *Monitor) SetOutputHook(fn func(line string)) {
	m.mu.Lock()
	m.hook = fn
	m.mu.Unlock()
}

// Start launches the configured command with combined stdout/stderr routed
// through the output pump, and spawns the reaper goroutine that waits for
// the exit. No-op when the process is already alive. A spawn failure is
// returned to the caller; the restart policy lives in the supervision loop.
func (m *Monitor) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Alive() {
		return nil
	}

	cmd := m.spec.BuildCommand()
	if m.spec.WorkDir != "" {
		cmd.Dir = m.spec.WorkDir
	}
	m.mu.Lock()
	env := m.env
	m.mu.Unlock()
	if len(env) > 0 {
		cmd.Env = env
	}
	configureSysProcAttr(cmd)

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("output pipe for %s: %w", m.spec.Name, err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return fmt.Errorf("start %s: %w", m.spec.Name, err)
	}
	// The child inherited its own copy of the write end. Closing ours makes
	// the pump observe EOF once the whole process group is gone.
	_ = pw.Close()

	m.mu.Lock()
	m.cmd = cmd
	m.pid = cmd.Process.Pid
	m.running = true
	m.startedAt = time.Now()
	m.exitErr = nil
	m.probeFails = 0
	m.waitDone = make(chan struct{})
	m.out = &pump{r: pr, done: make(chan struct{})}
	if m.capture == nil {
		m.capture = m.spec.Log.Writer(m.spec.Name)
	}
	wd := m.waitDone
	p := m.out
	m.mu.Unlock()

	slog.Info("Started service", "service", m.spec.Name, "pid", cmd.Process.Pid)

	go m.reap(cmd, wd)
	go m.pumpOutput(p)
	return nil
}

// reap is the single caller of cmd.Wait for this run, so Kill never races
// the reaper over the process state.
func (m *Monitor) reap(cmd *exec.Cmd, waitDone chan struct{}) {
	err := cmd.Wait()
	m.mu.Lock()
	m.running = false
	m.stoppedAt = time.Now()
	m.exitErr = err
	m.mu.Unlock()
	close(waitDone)
}

// pumpOutput drains the combined output pipe line by line until EOF so a
// chatty child can never block on a full pipe. Each line goes to the debug
// log, the optional capture writer and the optional hook.
func (m *Monitor) pumpOutput(p *pump) {
	defer close(p.done)
	defer p.closeRead()

	sc := bufio.NewScanner(p.r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := sc.Text()
		slog.Debug("Service output", "service", m.spec.Name, "line", line)
		m.mu.Lock()
		w := m.capture
		hook := m.hook
		m.mu.Unlock()
		if w != nil {
			_, _ = fmt.Fprintln(w, line)
		}
		if hook != nil {
			hook(line)
		}
	}
}

// Alive reports whether the owned process exists and has not been reaped.
// Non-blocking, safe to poll frequently.
func (m *Monitor) Alive() bool {
	m.mu.Lock()
	cmd := m.cmd
	wd := m.waitDone
	m.mu.Unlock()
	if cmd == nil || wd == nil {
		return false
	}
	select {
	case <-wd:
		return false
	default:
		return true
	}
}

// Kill stops the output pump first (close our pipe end, await the drain),
// then terminates the process group gracefully and escalates to a forced
// kill after KillWait. Killing an already-exited process is a no-op.
func (m *Monitor) Kill(ctx context.Context) error {
	m.mu.Lock()
	cmd := m.cmd
	wd := m.waitDone
	p := m.out
	pid := m.pid
	m.cmd = nil
	m.out = nil
	m.mu.Unlock()

	if cmd == nil {
		return nil
	}

	// Reader first, so no goroutine is left on a dead descriptor.
	if p != nil {
		p.closeRead()
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	}

	select {
	case <-wd:
		// already exited and reaped
	default:
		_ = killProcess(-pid, syscall.SIGTERM)
		if !waitOrTimeout(ctx, wd, m.policy.KillWait) {
			slog.Warn("Service ignored TERM, killing", "service", m.spec.Name, "pid", pid)
			_ = killProcess(-pid, syscall.SIGKILL)
			if !waitOrTimeout(ctx, wd, m.policy.KillWait) {
				return fmt.Errorf("kill %s: pid %d did not exit", m.spec.Name, pid)
			}
		}
	}
	return nil
}

// Close releases the capture writer. Call once, after the final Kill.
func (m *Monitor) Close() error {
	m.mu.Lock()
	w := m.capture
	m.capture = nil
	m.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

// waitOrTimeout waits for ch to close, bounded by d. A cancelled ctx cuts
// the wait short so shutdown escalates promptly.
func waitOrTimeout(ctx context.Context, ch <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}
}

// RecordRestart appends now to the restart ledger, prunes entries that fell
// out of the trailing window, bumps the lifetime counter and reports whether
// the windowed count has reached MaxRestartsInWindow (a restart storm).
func (m *Monitor) RecordRestart(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restartTimes = append(m.restartTimes, now)
	m.pruneLocked(now)
	m.totalRestarts++
	return len(m.restartTimes) >= m.policy.MaxRestartsInWindow
}

// pruneLocked drops restart timestamps older than the window. Caller holds mu.
func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.policy.RestartWindow)
	kept := m.restartTimes[:0]
	for _, ts := range m.restartTimes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.restartTimes = kept
}

// RestartsInWindow returns the restart count still inside the trailing
// window as of now.
func (m *Monitor) RestartsInWindow(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	return len(m.restartTimes)
}

// Backoff returns the restart delay for the current windowed restart count.
func (m *Monitor) Backoff(now time.Time) time.Duration {
	return m.policy.BackoffFor(m.RestartsInWindow(now))
}

// ClearWindow forgets the restart history. Called after a cooldown and
// after a long stable run.
func (m *Monitor) ClearWindow() {
	m.mu.Lock()
	m.restartTimes = nil
	m.mu.Unlock()
}

// TotalRestarts never resets for the lifetime of the monitor.
func (m *Monitor) TotalRestarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalRestarts
}

// IncProbeFailures bumps the consecutive probe failure counter and returns
// the new value.
func (m *Monitor) IncProbeFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeFails++
	return m.probeFails
}

// ResetProbeFailures clears the counter after any successful probe.
func (m *Monitor) ResetProbeFailures() {
	m.mu.Lock()
	m.probeFails = 0
	m.mu.Unlock()
}

func (m *Monitor) SetCooldown(v bool) {
	m.mu.Lock()
	m.inCooldown = v
	m.mu.Unlock()
}

func (m *Monitor) InCooldown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inCooldown
}

// SetHadFailure marks (or clears) "failed since last confirmed healthy",
// which decides whether a recovery notification is owed.
func (m *Monitor) SetHadFailure(v bool) {
	m.mu.Lock()
	m.hadFailure = v
	m.mu.Unlock()
}

func (m *Monitor) HadFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hadFailure
}

// PID returns the pid of the current (or most recent) child, 0 if never
// started.
func (m *Monitor) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// Uptime is the time since the most recent launch, 0 if never started.
func (m *Monitor) Uptime(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startedAt.IsZero() {
		return 0
	}
	return now.Sub(m.startedAt)
}

// Snapshot returns a point-in-time status for the API and CLI.
func (m *Monitor) Snapshot() Status {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)

	st := Status{
		Name:             m.spec.Name,
		Running:          m.running,
		PID:              m.pid,
		StartedAt:        m.startedAt,
		StoppedAt:        m.stoppedAt,
		Restarts:         m.totalRestarts,
		RestartsInWindow: len(m.restartTimes),
		ProbeFailures:    m.probeFails,
		InCooldown:       m.inCooldown,
		HadFailure:       m.hadFailure,
	}
	if m.exitErr != nil {
		st.ExitError = m.exitErr.Error()
	}
	switch {
	case m.inCooldown:
		st.State = "cooldown"
	case m.running:
		st.State = "running"
	default:
		st.State = "stopped"
	}
	if m.running && !m.startedAt.IsZero() {
		st.UptimeSecs = int64(now.Sub(m.startedAt).Seconds())
	}
	return st
}
