package main

import "time"

// Flag structs decouple cobra from the handlers so tests can drive the
// handlers directly.

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ServeFlags holds flags for the serve command. PidFile and LogFile are
// resolved from the [server] config section when not given on the command
// line.
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	Name string
	JSON bool
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

// CheckFlags holds flags for the check command.
type CheckFlags struct {
	ConfigPath string
	Name       string
	JSON       bool
}
