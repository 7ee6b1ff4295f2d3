package monitor

import "time"

// Stock supervision timings. Every value can be overridden per deployment
// through the [policy] section of the config file.
const (
	DefaultCheckInterval       = 30 * time.Second
	DefaultStartupGrace        = 15 * time.Second
	DefaultProbeTimeout        = 5 * time.Second
	DefaultMaxProbeFailures    = 3
	DefaultMaxRestartsInWindow = 5
	DefaultRestartWindow       = 600 * time.Second
	DefaultCooldown            = 300 * time.Second
	DefaultBackoffBase         = 5 * time.Second
	DefaultBackoffMax          = 60 * time.Second
	DefaultStableUptime        = 300 * time.Second
	DefaultKillWait            = 5 * time.Second
)

// Policy holds the timing and threshold knobs of the supervision loop.
type Policy struct {
	CheckInterval       time.Duration `json:"check_interval" mapstructure:"check_interval"`             // pause between loop iterations when nothing happened
	StartupGrace        time.Duration `json:"startup_grace" mapstructure:"startup_grace"`               // default grace before the first probe after a start
	ProbeTimeout        time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`               // per-probe HTTP timeout
	MaxProbeFailures    int           `json:"max_probe_failures" mapstructure:"max_probe_failures"`     // consecutive failures before a service counts as unresponsive
	MaxRestartsInWindow int           `json:"max_restarts_in_window" mapstructure:"max_restarts_in_window"` // windowed restarts before a storm is declared
	RestartWindow       time.Duration `json:"restart_window" mapstructure:"restart_window"`             // trailing window for restart accounting
	Cooldown            time.Duration `json:"cooldown" mapstructure:"cooldown"`                         // pause after a restart storm
	BackoffBase         time.Duration `json:"backoff_base" mapstructure:"backoff_base"`                 // first restart delay
	BackoffMax          time.Duration `json:"backoff_max" mapstructure:"backoff_max"`                   // restart delay cap
	StableUptime        time.Duration `json:"stable_uptime" mapstructure:"stable_uptime"`               // uptime that forgives past restart history
	KillWait            time.Duration `json:"kill_wait" mapstructure:"kill_wait"`                       // wait after TERM before escalating to KILL
}

// DefaultPolicy returns the stock policy.
func DefaultPolicy() Policy {
	return Policy{
		CheckInterval:       DefaultCheckInterval,
		StartupGrace:        DefaultStartupGrace,
		ProbeTimeout:        DefaultProbeTimeout,
		MaxProbeFailures:    DefaultMaxProbeFailures,
		MaxRestartsInWindow: DefaultMaxRestartsInWindow,
		RestartWindow:       DefaultRestartWindow,
		Cooldown:            DefaultCooldown,
		BackoffBase:         DefaultBackoffBase,
		BackoffMax:          DefaultBackoffMax,
		StableUptime:        DefaultStableUptime,
		KillWait:            DefaultKillWait,
	}
}

// Normalize fills zero or negative fields with their defaults and returns
// the completed policy.
func (p Policy) Normalize() Policy {
	if p.CheckInterval <= 0 {
		p.CheckInterval = DefaultCheckInterval
	}
	if p.StartupGrace <= 0 {
		p.StartupGrace = DefaultStartupGrace
	}
	if p.ProbeTimeout <= 0 {
		p.ProbeTimeout = DefaultProbeTimeout
	}
	if p.MaxProbeFailures <= 0 {
		p.MaxProbeFailures = DefaultMaxProbeFailures
	}
	if p.MaxRestartsInWindow <= 0 {
		p.MaxRestartsInWindow = DefaultMaxRestartsInWindow
	}
	if p.RestartWindow <= 0 {
		p.RestartWindow = DefaultRestartWindow
	}
	if p.Cooldown <= 0 {
		p.Cooldown = DefaultCooldown
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = DefaultBackoffBase
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = DefaultBackoffMax
	}
	if p.StableUptime <= 0 {
		p.StableUptime = DefaultStableUptime
	}
	if p.KillWait <= 0 {
		p.KillWait = DefaultKillWait
	}
	return p
}

// BackoffFor computes the restart delay for n restarts still inside the
// trailing window: BackoffBase doubled per restart, never above BackoffMax.
// As old restarts fall out of the window the delay shrinks again.
func (p Policy) BackoffFor(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}
