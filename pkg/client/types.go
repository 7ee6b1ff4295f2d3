package client

import "time"

// ServiceStatus mirrors the JSON snapshot served by the daemon's status API.
type ServiceStatus struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
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

// ErrorResponse is the error envelope the API returns on non-200 answers.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of the daemon's own liveness endpoint.
type HealthResponse struct {
	OK bool `json:"ok"`
}
