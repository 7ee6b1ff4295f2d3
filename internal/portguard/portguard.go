package portguard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultGrace bounds how long a stale process gets to exit after TERM
// before it is force killed.
const DefaultGrace = 2 * time.Second

// Guard finds and clears processes squatting on a service's health port
// after an unclean shutdown. The supervisor depends only on this interface;
// Gops is the stock implementation and Noop opts out entirely.
type Guard interface {
	// FindPID returns the pid listening on the local TCP port, 0 when free.
	FindPID(ctx context.Context, port int) (int32, error)
	// TerminateOnPort terminates whatever listens on port, unless that is
	// selfPID. Failures to kill are logged, not raised.
	TerminateOnPort(ctx context.Context, port int, selfPID int) error
}

// Gops is the gopsutil-backed Guard.
type Gops struct {
	Grace time.Duration
}

func New() *Gops { return &Gops{Grace: DefaultGrace} }

func (g *Gops) FindPID(ctx context.Context, port int) (int32, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, fmt.Errorf("list tcp connections: %w", err)
	}
	for _, c := range conns {
		if c.Status == "LISTEN" && c.Laddr.Port == uint32(port) {
			return c.Pid, nil
		}
	}
	return 0, nil
}

func (g *Gops) TerminateOnPort(ctx context.Context, port int, selfPID int) error {
	pid, err := g.FindPID(ctx, port)
	if err != nil {
		return err
	}
	if pid <= 0 || int(pid) == selfPID {
		return nil
	}
	slog.Warn("Port occupied by a stale process, terminating", "port", port, "pid", pid)

	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		// Gone between the lookup and now.
		return nil
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		slog.Warn("Terminate failed", "port", port, "pid", pid, "err", err)
		return nil
	}

	grace := g.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		running, err := p.IsRunningWithContext(ctx)
		if err != nil || !running {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	if err := p.KillWithContext(ctx); err != nil {
		slog.Warn("Force kill failed", "port", port, "pid", pid, "err", err)
	}
	return nil
}

// Noop never touches anything.
type Noop struct{}

func (Noop) FindPID(context.Context, int) (int32, error) { return 0, nil }

func (Noop) TerminateOnPort(context.Context, int, int) error { return nil }
