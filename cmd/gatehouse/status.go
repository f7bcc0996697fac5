// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
)

// ServiceStatus holds the probe results for a running gatehouse process.
type ServiceStatus struct {
	Addr  string `json:"addr"`
	Alive bool   `json:"alive"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	metricsAddr string
	jsonOutput  bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running gatehouse process",
		Long:  `Probe the liveness and readiness endpoints of a running gatehouse process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.metricsAddr, "metrics_addr", "", "metrics/health address to probe (default: from config)")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	addr := cfg.metricsAddr
	if addr == "" {
		fileCfg, err := config.Load(configFile, nil)
		if err != nil {
			return err
		}
		addr = fileCfg.MetricsAddr
	}

	status := queryServiceStatus(addr)

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(out))
		return nil
	}

	cmd.Println(formatStatusTable(status))
	return nil
}

// queryServiceStatus probes the health endpoints at addr.
func queryServiceStatus(addr string) ServiceStatus {
	status := ServiceStatus{Addr: addr}

	client := &http.Client{Timeout: 3 * time.Second}
	base := "http://" + addr

	alive, err := probe(client, base+"/healthz/liveness")
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	status.Alive = alive

	ready, err := probe(client, base+"/healthz/readiness")
	if err != nil {
		// Liveness succeeded so the process is up; readiness is just not
		// answering yet.
		return status
	}
	status.Ready = ready

	return status
}

// probe returns true when the endpoint answers 200.
func probe(client *http.Client, url string) (bool, error) {
	resp, err := client.Get(url)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK, nil
}

// formatStatusTable renders the status as an aligned text table.
func formatStatusTable(status ServiceStatus) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 8, 2, ' ', 0)

	fmt.Fprintln(w, "ADDR\tALIVE\tREADY\tERROR")
	fmt.Fprintf(w, "%s\t%v\t%v\t%s\n", status.Addr, status.Alive, status.Ready, status.Error)

	_ = w.Flush()
	return strings.TrimRight(sb.String(), "\n")
}
