package monitor

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/loykin/vigil/internal/announce"
	"github.com/loykin/vigil/internal/logger"
)

// Spec describes one supervised service. It is built once from the config
// file, validated, and never mutated afterwards.
type Spec struct {
	Name         string            `json:"name" mapstructure:"name"`
	Command      string            `json:"command" mapstructure:"command"`             // command to launch the service (shell-aware)
	WorkDir      string            `json:"work_dir" mapstructure:"work_dir"`           // optional working dir
	Env          []string          `json:"env" mapstructure:"env"`                     // optional extra env, merged over the global table
	HealthPort   int               `json:"health_port" mapstructure:"health_port"`     // port of the HTTP liveness probe
	HealthPath   string            `json:"health_path" mapstructure:"health_path"`     // path of the probe, default "/"
	StartupGrace time.Duration     `json:"startup_grace" mapstructure:"startup_grace"` // per-service override of the policy grace
	Log          logger.FileConfig `json:"log" mapstructure:"log"`                     // optional rotated capture of the service output
	Announce     *announce.Config  `json:"announce" mapstructure:"announce"`           // optional stdout URL detection rule
}

// Validate checks required fields up front so misconfiguration surfaces at
// load time, not at the first restart.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("service name is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("service %q: command is required", s.Name)
	}
	if s.HealthPort < 1 || s.HealthPort > 65535 {
		return fmt.Errorf("service %q: health_port %d out of range", s.Name, s.HealthPort)
	}
	if s.Announce != nil {
		if err := s.Announce.Validate(); err != nil {
			return fmt.Errorf("service %q: %w", s.Name, err)
		}
	}
	return nil
}

// ProbePath returns HealthPath normalized to a leading slash, "/" when unset.
func (s *Spec) ProbePath() string {
	p := s.HealthPath
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// Grace returns the startup grace for this service, falling back to the
// policy default when the spec does not override it.
func (s *Spec) Grace(p Policy) time.Duration {
	if s.StartupGrace > 0 {
		return s.StartupGrace
	}
	return p.StartupGrace
}

// BuildCommand constructs an *exec.Cmd for the spec's Command. It avoids
// invoking a shell when not necessary, and it also respects an explicit
// shell invocation already present in the command string (e.g.
// "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		return getTrueCommand()
	}
	// If the command already explicitly uses a shell, honor it without
	// adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		return getShellCommand(afterC)
	}
	// Fallback: when metacharacters are present, hand the string to a shell.
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>"
// at the beginning of cmdStr. It returns (shellPath, afterCArg, true) when
// matched. The substring after "-c " is preserved verbatim to avoid breaking
// quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair
			// so the actual script reaches the shell (the outer quotes would
			// otherwise inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
