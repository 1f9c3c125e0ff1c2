package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	sweepURL       string
	sweepThreshold time.Duration
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Agent maintenance commands",
}

var agentsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove agents that stopped sending heartbeats",
	Long: `Asks a running coordinator to drop every agent whose last heartbeat is older
than the inactivity threshold. The registry lives in the coordinator's memory,
so this talks to its HTTP API rather than the database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		base := cfg.Agents.CoordinatorURL
		if sweepURL != "" {
			base = sweepURL
		}
		threshold := cfg.Agents.InactivityThreshold
		if sweepThreshold > 0 {
			threshold = sweepThreshold
		}

		endpoint := strings.TrimRight(base, "/") + "/api/agents/sweep?threshold=" + url.QueryEscape(threshold.String())
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Post(endpoint, "application/json", nil)
		if err != nil {
			return fmt.Errorf("failed to reach coordinator: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sweep failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		var result struct {
			Removed int      `json:"removed"`
			IDs     []string `json:"ids"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		fmt.Printf("Removed %d inactive agent(s) (threshold %s)\n", result.Removed, threshold)
		for _, id := range result.IDs {
			fmt.Println("  " + id)
		}
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsSweepCmd)

	agentsCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	agentsSweepCmd.Flags().StringVar(&sweepURL, "url", "", "coordinator URL (default: agents.coordinator_url)")
	agentsSweepCmd.Flags().DurationVar(&sweepThreshold, "threshold", 0, "inactivity threshold (default: agents.inactivity_threshold)")

	rootCmd.AddCommand(agentsCmd)
}
