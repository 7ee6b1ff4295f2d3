package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestPidFileWriteAndRemove(t *testing.T) {
	tempDir := t.TempDir()
	pidFile := filepath.Join(tempDir, "test_daemon.pid")

	if err := writePidFile(pidFile, os.Getpid()); err != nil {
		t.Errorf("writePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		t.Error("PID file was not created")
	}

	if err := removePidFile(pidFile); err != nil {
		t.Errorf("removePidFile failed: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file was not removed")
	}

	// Empty path is a no-op.
	if err := removePidFile(""); err != nil {
		t.Errorf("removePidFile(\"\") failed: %v", err)
	}
}

func TestStripDaemonArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want []string
	}{
		{[]string{"serve", "config.toml", "--daemonize"}, []string{"serve", "config.toml"}},
		{[]string{"serve", "--daemonize=true", "config.toml"}, []string{"serve", "config.toml"}},
		{[]string{"serve", "--logfile", "/tmp/v.log", "config.toml"}, []string{"serve", "config.toml"}},
		{[]string{"serve", "--logfile=/tmp/v.log"}, []string{"serve"}},
		{[]string{"serve", "config.toml"}, []string{"serve", "config.toml"}},
	}
	for _, c := range cases {
		got := stripDaemonArgs(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("stripDaemonArgs(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestServeFlags(t *testing.T) {
	flags := &ServeFlags{
		ConfigPath: "test.toml",
		Daemonize:  true,
		PidFile:    "/tmp/test.pid",
		LogFile:    "/tmp/test.log",
	}

	if flags.ConfigPath != "test.toml" {
		t.Errorf("Expected ConfigPath 'test.toml', got '%s'", flags.ConfigPath)
	}
	if !flags.Daemonize {
		t.Error("Expected Daemonize to be true")
	}
	if flags.PidFile != "/tmp/test.pid" {
		t.Errorf("Expected PidFile '/tmp/test.pid', got '%s'", flags.PidFile)
	}
	if flags.LogFile != "/tmp/test.log" {
		t.Errorf("Expected LogFile '/tmp/test.log', got '%s'", flags.LogFile)
	}
}
