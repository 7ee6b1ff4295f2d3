package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/loykin/vigil/pkg/client"
	"github.com/olekukonko/tablewriter"
)

// renderStatusTable prints one row per service snapshot.
func renderStatusTable(w io.Writer, sts []client.ServiceStatus) {
	if len(sts) == 0 {
		_, _ = fmt.Fprintln(w, "No services supervised")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Service", "State", "PID", "Uptime", "Restarts", "Window", "Probe Fails", "Last Error")

	for _, st := range sts {
		pid := "-"
		if st.Running && st.PID > 0 {
			pid = strconv.Itoa(st.PID)
		}
		uptime := "-"
		if st.Running {
			uptime = formatUptime(st.UptimeSecs)
		}
		table.Append(
			st.Name,
			st.State,
			pid,
			uptime,
			strconv.Itoa(st.Restarts),
			strconv.Itoa(st.RestartsInWindow),
			strconv.Itoa(st.ProbeFailures),
			truncate(st.ExitError, 48),
		)
	}

	table.Render()
}

// renderCheckTable prints one row per probe result.
func renderCheckTable(w io.Writer, results []CheckResult) {
	table := tablewriter.NewWriter(w)
	table.Header("Service", "Target", "Healthy", "Latency", "Error")

	for _, r := range results {
		healthy := "yes"
		if !r.Healthy {
			healthy = "NO"
		}
		table.Append(
			r.Service,
			r.Target,
			healthy,
			fmt.Sprintf("%dms", r.LatencyMS),
			truncate(r.Error, 48),
		)
	}

	table.Render()
}

// formatUptime renders whole seconds compactly: 42s, 3m10s, 2h5m, 4d7h.
func formatUptime(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	d := time.Duration(secs) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd%dh", d/(24*time.Hour), (d%(24*time.Hour))/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", d/time.Hour, (d%time.Hour)/time.Minute)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%ds", d/time.Minute, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
