package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect and drive remote agents",
	}

	cmd.AddCommand(newAgentsListCmd())
	cmd.AddCommand(newAgentsGetCmd())
	cmd.AddCommand(newAgentsPingCmd())
	cmd.AddCommand(newAgentsRunCmd())
	cmd.AddCommand(newAgentsSweepCmd())
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	var available bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/agents"
			if available {
				path = "/api/agents/available"
			}

			body, err := getClient().Get(path, nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp PaginatedResponse[agent.Info]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "NAME", "HOST", "STATUS", "TASK", "PENDING", "LAST SEEN"}
			var rows [][]string
			for _, a := range resp.Items {
				task := a.CurrentTask
				if task == "" {
					task = "-"
				}
				rows = append(rows, []string{
					a.ID.String(),
					a.Name,
					a.Hostname,
					colorAgentStatus(a.Status),
					task,
					fmt.Sprintf("%d", a.PendingCommands),
					time.Since(a.LastSeen).Round(time.Second).String() + " ago",
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d agents", len(resp.Items)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&available, "available", false, "Only agents that can take work")
	return cmd
}

func newAgentsGetCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show one agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Get(fmt.Sprintf("/api/agents/%s", id), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var a agent.Info
			if err := json.Unmarshal(body, &a); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", a.ID.String()},
				{"Name", a.Name},
				{"Hostname", a.Hostname},
				{"IP Address", a.IPAddress},
				{"Status", colorAgentStatus(a.Status)},
				{"Capabilities", strings.Join(a.Capabilities, ", ")},
				{"Current Task", a.CurrentTask},
				{"Pending Commands", fmt.Sprintf("%d", a.PendingCommands)},
				{"Last Seen", a.LastSeen.Format("2006-01-02 15:04:05")},
				{"Registered At", a.CreatedAt.Format("2006-01-02 15:04:05")},
			}
			printTable(headers, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Agent ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newAgentsPingCmd() *cobra.Command {
	var id string
	var timeout int

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send a ping command and wait for the agent to answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := getClient()
			client.httpClient.Timeout = time.Duration(timeout+5) * time.Second

			start := time.Now()
			body, err := client.Post(fmt.Sprintf("/api/agents/%s/command", id), map[string]interface{}{
				"type":    agent.CommandPing,
				"timeout": timeout,
			})
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp agent.Response
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(fmt.Sprintf("%s from %s in %s", resp.Message, id, time.Since(start).Round(time.Millisecond)))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Agent ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().IntVar(&timeout, "timeout", 60, "Seconds to wait for the answer")
	return cmd
}

func newAgentsRunCmd() *cobra.Command {
	var id, caseID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Queue a test case on a specific agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Post(fmt.Sprintf("/api/agents/%s/run/testcase/%s", id, caseID), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp TriggeredResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			msg := fmt.Sprintf("Test case %s %s on agent %s", caseID, resp.Message, id)
			if resp.CommandID != nil {
				msg += fmt.Sprintf(" (command %s)", resp.CommandID)
			}
			printMessage(msg)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Agent ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&caseID, "case-id", "", "Test case ID (required)")
	cmd.MarkFlagRequired("case-id")
	return cmd
}

func newAgentsSweepCmd() *cobra.Command {
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove agents that stopped sending heartbeats",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/agents/sweep"
			if threshold > 0 {
				path += "?threshold=" + url.QueryEscape(threshold.String())
			}

			body, err := getClient().Post(path, nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp struct {
				Removed int      `json:"removed"`
				IDs     []string `json:"ids"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(fmt.Sprintf("Removed %d inactive agent(s)", resp.Removed))
			for _, id := range resp.IDs {
				printMessage("  " + id)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&threshold, "threshold", 0, "Inactivity threshold (default: coordinator setting)")
	return cmd
}
