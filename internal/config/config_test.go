package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "vigil.toml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFullConfig(t *testing.T) {
	p := writeConfig(t, `
use_os_env = true
env = ["REGION=eu"]

[log.slog]
level = "debug"
format = "text"
color = true

[log.file]
dir = "logs"
max_size_mb = 5

[policy]
check_interval = "45s"
max_probe_failures = 4
cooldown = "2m"

[notify]
url = "http://127.0.0.1:9000/hook"
timeout = "3s"
service = "gateway"

[server]
listen = "127.0.0.1:8553"
base_path = "/api"

[server.tls]
enabled = true
dir = "certs"
auto_generate = true

[metrics]
enabled = true
listen = "127.0.0.1:9090"

[history]
enabled = true
sinks = ["sqlite://:memory:"]

[[service]]
name = "gateway"
command = "python3 gateway.py"
work_dir = "/srv/gateway"
health_port = 8080
health_path = "healthz"
startup_grace = "20s"
env = ["PORT=8080"]

[service.announce]
pattern = 'https://[a-z0-9-]+\.trycloudflare\.com[^\s]*'
endpoint = "https://api.example.com/hooks"
payload_field = "webhook_event_url"

[[service]]
name = "worker"
command = "sleep 60"
health_port = 8081
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.UseOSEnv || len(cfg.Env) != 1 {
		t.Fatalf("env section: %#v", cfg)
	}
	if cfg.Log.Slog.Level != "debug" || !cfg.Log.Slog.Color {
		t.Fatalf("log.slog: %#v", cfg.Log.Slog)
	}
	if cfg.Policy.CheckInterval != 45*time.Second {
		t.Fatalf("check_interval = %v", cfg.Policy.CheckInterval)
	}
	if cfg.Policy.MaxProbeFailures != 4 || cfg.Policy.Cooldown != 2*time.Minute {
		t.Fatalf("policy: %#v", cfg.Policy)
	}
	// Unset policy fields are filled with defaults.
	if cfg.Policy.BackoffBase != 5*time.Second || cfg.Policy.KillWait != 5*time.Second {
		t.Fatalf("policy defaults: %#v", cfg.Policy)
	}
	if cfg.Notify == nil || cfg.Notify.Service != "gateway" || cfg.Notify.Timeout != 3*time.Second {
		t.Fatalf("notify: %#v", cfg.Notify)
	}
	if cfg.Server == nil || cfg.Server.Listen != "127.0.0.1:8553" || cfg.Server.BasePath != "/api" {
		t.Fatalf("server: %#v", cfg.Server)
	}
	if cfg.Server.TLS == nil || !cfg.Server.TLS.Enabled || !cfg.Server.TLS.AutoGenerate {
		t.Fatalf("server.tls: %#v", cfg.Server.TLS)
	}
	if cfg.Metrics == nil || !cfg.Metrics.Enabled || cfg.Metrics.Listen == "" {
		t.Fatalf("metrics: %#v", cfg.Metrics)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("services: %d", len(cfg.Services))
	}
	gw := cfg.Services[0]
	if gw.Name != "gateway" || gw.HealthPort != 8080 || gw.StartupGrace != 20*time.Second {
		t.Fatalf("gateway spec: %#v", gw)
	}
	if gw.ProbePath() != "/healthz" {
		t.Fatalf("probe path = %q", gw.ProbePath())
	}
	if gw.Announce == nil || gw.Announce.PayloadField != "webhook_event_url" {
		t.Fatalf("announce: %#v", gw.Announce)
	}
	if !strings.Contains(gw.Announce.Pattern, "trycloudflare") {
		t.Fatalf("pattern lost escaping: %q", gw.Announce.Pattern)
	}
	// Capture defaults flow from [log.file] into every service.
	if gw.Log.Dir != "logs" || gw.Log.MaxSizeMB != 5 {
		t.Fatalf("capture defaults not merged: %#v", gw.Log)
	}
}

func TestLoadMergesCaptureOverrides(t *testing.T) {
	p := writeConfig(t, `
[log.file]
dir = "logs"
max_backups = 9

[[service]]
name = "svc"
command = "sleep 1"
health_port = 9001

[service.log]
dir = "other"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := cfg.Services[0].Log
	if got.Dir != "other" {
		t.Fatalf("per-service dir should win: %#v", got)
	}
	if got.MaxBackups != 9 {
		t.Fatalf("top-level max_backups should persist: %#v", got)
	}
}

func TestLoadRejectsDuplicateServices(t *testing.T) {
	p := writeConfig(t, `
[[service]]
name = "svc"
command = "sleep 1"
health_port = 9001

[[service]]
name = "svc"
command = "sleep 2"
health_port = 9002
`)
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
}

func TestLoadRejectsInvalidService(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"missing command", "[[service]]\nname = \"svc\"\nhealth_port = 9001\n"},
		{"missing name", "[[service]]\ncommand = \"sleep 1\"\nhealth_port = 9001\n"},
		{"bad port", "[[service]]\nname = \"svc\"\ncommand = \"sleep 1\"\nhealth_port = 70000\n"},
		{"no port", "[[service]]\nname = \"svc\"\ncommand = \"sleep 1\"\n"},
	}
	for _, tc := range cases {
		p := writeConfig(t, tc.toml)
		if _, err := Load(p); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestLoadValidatesSections(t *testing.T) {
	p := writeConfig(t, "[notify]\ntimeout = \"3s\"\n")
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "[notify]") {
		t.Fatalf("notify without url: %v", err)
	}
	p = writeConfig(t, "[server]\nbase_path = \"/api\"\n")
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "[server]") {
		t.Fatalf("server without listen: %v", err)
	}
	p = writeConfig(t, "[history]\nenabled = true\n")
	if _, err := Load(p); err == nil || !strings.Contains(err.Error(), "[history]") {
		t.Fatalf("history without sinks: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvTablePrecedence(t *testing.T) {
	t.Setenv("VIGIL_CFG_OS", "from-os")
	t.Setenv("VIGIL_CFG_OVERRIDE", "from-os")

	dir := t.TempDir()
	envFile := filepath.Join(dir, "extra.env")
	err := os.WriteFile(envFile, []byte("VIGIL_CFG_OVERRIDE=from-file\nVIGIL_CFG_FILE=from-file\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	p := writeConfig(t, fmt.Sprintf(`
use_os_env = true
env_files = [%q]
env = ["VIGIL_CFG_OVERRIDE=from-list"]
`, envFile))
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	table, err := cfg.EnvTable()
	if err != nil {
		t.Fatalf("env table: %v", err)
	}
	got := map[string]string{}
	for _, kv := range table.Merge(nil) {
		if k, v, ok := strings.Cut(kv, "="); ok {
			got[k] = v
		}
	}
	if got["VIGIL_CFG_OS"] != "from-os" {
		t.Fatalf("os base missing: %v", got["VIGIL_CFG_OS"])
	}
	if got["VIGIL_CFG_FILE"] != "from-file" {
		t.Fatalf("env file entry missing: %v", got["VIGIL_CFG_FILE"])
	}
	if got["VIGIL_CFG_OVERRIDE"] != "from-list" {
		t.Fatalf("env list should win: %v", got["VIGIL_CFG_OVERRIDE"])
	}
}

func TestEnvTableMissingFile(t *testing.T) {
	cfg := &Config{EnvFiles: []string{filepath.Join(t.TempDir(), "absent.env")}}
	if _, err := cfg.EnvTable(); err == nil {
		t.Fatalf("expected error for missing env file")
	}
}

func TestBuildSinks(t *testing.T) {
	var hc *HistoryConfig
	if sinks, err := hc.BuildSinks(); err != nil || sinks != nil {
		t.Fatalf("nil section: %v, %v", sinks, err)
	}
	hc = &HistoryConfig{Enabled: false, Sinks: []string{"sqlite://:memory:"}}
	if sinks, err := hc.BuildSinks(); err != nil || sinks != nil {
		t.Fatalf("disabled section: %v, %v", sinks, err)
	}

	dbPath := filepath.Join(t.TempDir(), "audit.db")
	hc = &HistoryConfig{Enabled: true, Sinks: []string{"sqlite://" + dbPath}}
	sinks, err := hc.BuildSinks()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(sinks) != 1 {
		t.Fatalf("want 1 sink, got %d", len(sinks))
	}

	hc = &HistoryConfig{Enabled: true, Sinks: []string{"bogus://nowhere"}}
	if _, err := hc.BuildSinks(); err == nil {
		t.Fatalf("expected error for unsupported DSN")
	}
}
