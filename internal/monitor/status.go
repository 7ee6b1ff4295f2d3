package monitor

import "time"

// Status is a point-in-time snapshot of one monitor, safe to marshal for
// the status API and CLI.
type Status struct {
	Name             string    `json:"name"`
	State            string    `json:"state"` // running, stopped, cooldown
	Running          bool      `json:"running"`
	PID              int       `json:"pid"`
	StartedAt        time.Time `json:"started_at"`
	StoppedAt        time.Time `json:"stopped_at"`
	ExitError        string    `json:"exit_error,omitempty"`
	Restarts         int       `json:"restarts"`
	RestartsInWindow int       `json:"restarts_in_window"`
	ProbeFailures    int       `json:"probe_failures"`
	InCooldown       bool      `json:"in_cooldown"`
	HadFailure       bool      `json:"had_failure"`
	UptimeSecs       int64     `json:"uptime_secs"`
}
