// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const defaultStatusTimeout = 2 * time.Second

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe      string `json:"probe"`
	URL        string `json:"url"`
	Healthy    bool   `json:"healthy"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	serverURL  string
	metricsURL string
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running todochat server",
		Long:  `Probe the chat server and its observability endpoints and report their health.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.serverURL, "url", "http://localhost:8080", "base URL of the chat server")
	cmd.Flags().StringVar(&cfg.metricsURL, "metrics-url", "http://127.0.0.1:9100", "base URL of the observability server")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultStatusTimeout, "per-probe timeout")

	return cmd
}

// runStatus executes the status command. It fails if any probe is unhealthy.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	client := &http.Client{Timeout: cfg.timeout}
	probes := []ProbeStatus{
		queryProbe(cmd.Context(), client, "server", strings.TrimRight(cfg.serverURL, "/")+"/"),
		queryProbe(cmd.Context(), client, "liveness", strings.TrimRight(cfg.metricsURL, "/")+"/healthz/liveness"),
		queryProbe(cmd.Context(), client, "readiness", strings.TrimRight(cfg.metricsURL, "/")+"/healthz/readiness"),
	}

	var output string
	if cfg.jsonOutput {
		var err error
		output, err = formatStatusJSON(probes)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(probes)
	}
	cmd.Println(output)

	for _, p := range probes {
		if !p.Healthy {
			return oops.Code("STATUS_UNHEALTHY").With("probe", p.Probe).Errorf("%s probe failed", p.Probe)
		}
	}
	return nil
}

// queryProbe issues a GET and reports whether it answered 200.
func queryProbe(ctx context.Context, client *http.Client, name, url string) ProbeStatus {
	status := ProbeStatus{Probe: name, URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		status.Error = fmt.Sprintf("invalid url: %v", err)
		return status
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	status.LatencyMS = time.Since(start).Milliseconds()
	status.StatusCode = resp.StatusCode
	status.Healthy = resp.StatusCode == http.StatusOK
	if !status.Healthy {
		status.Error = resp.Status
	}
	return status
}

// formatStatusTable formats the probes as a human-readable table.
func formatStatusTable(probes []ProbeStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tCODE\tLATENCY\tURL")
	_, _ = fmt.Fprintln(w, "-----\t------\t----\t-------\t---")

	for _, p := range probes {
		if p.Healthy {
			_, _ = fmt.Fprintf(w, "%s\thealthy\t%d\t%dms\t%s\n", p.Probe, p.StatusCode, p.LatencyMS, p.URL)
			continue
		}
		code := "-"
		if p.StatusCode != 0 {
			code = fmt.Sprint(p.StatusCode)
		}
		_, _ = fmt.Fprintf(w, "%s\tunhealthy\t%s\t-\t%s\n", p.Probe, code, p.Error)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the probes as JSON.
func formatStatusJSON(probes []ProbeStatus) (string, error) {
	data, err := json.MarshalIndent(probes, "", "  ")
	if err != nil {
		return "", oops.Code("STATUS_FORMAT_FAILED").Wrapf(err, "marshal status")
	}
	return string(data), nil
}
