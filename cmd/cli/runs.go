package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Trigger and inspect test runs",
	}

	cmd.AddCommand(newRunsTriggerCmd())
	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsGetCmd())
	cmd.AddCommand(newRunsDownloadCmd())
	return cmd
}

func newRunsTriggerCmd() *cobra.Command {
	var caseID, moduleID, projectID string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Queue a test case, module or project for execution on the coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case caseID != "":
				path = fmt.Sprintf("/api/testcases/%s/run", caseID)
			case moduleID != "":
				path = fmt.Sprintf("/api/modules/%s/run", moduleID)
			case projectID != "":
				path = fmt.Sprintf("/api/projects/%s/run", projectID)
			default:
				return fmt.Errorf("one of --case-id, --module-id or --project-id is required")
			}

			body, err := getClient().Post(path, nil)
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
			printMessage(fmt.Sprintf("%s: %d test case(s) queued", resp.Message, resp.Count))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case-id", "", "Test case ID")
	cmd.Flags().StringVar(&moduleID, "module-id", "", "Module ID")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID")
	return cmd
}

func newRunsListCmd() *cobra.Command {
	var caseID string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the runs of a test case, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			body, err := getClient().Get(fmt.Sprintf("/api/testcases/%s/runs", caseID), query)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp PaginatedResponse[testrun.TestRun]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "STATUS", "EXECUTOR", "STARTED AT", "DURATION"}
			var rows [][]string
			for _, r := range resp.Items {
				rows = append(rows, []string{
					r.ID.String(),
					colorRunStatus(r.Status),
					r.Executor,
					r.StartTime.Format("2006-01-02 15:04:05"),
					fmt.Sprintf("%.1fs", r.Duration),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d runs", len(resp.Items)))
			return nil
		},
	}

	cmd.Flags().StringVar(&caseID, "case-id", "", "Test case ID (required)")
	cmd.MarkFlagRequired("case-id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")
	return cmd
}

func newRunsGetCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a run and its step log",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Get(fmt.Sprintf("/api/runs/%s", id), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var r RunDetailResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", r.ID.String()},
				{"Case ID", r.CaseID.String()},
				{"Status", colorRunStatus(r.Status)},
				{"Executor", r.Executor},
				{"Started At", r.StartTime.Format("2006-01-02 15:04:05")},
				{"Ended At", r.EndTime.Format("2006-01-02 15:04:05")},
				{"Duration", fmt.Sprintf("%.2fs", r.Duration)},
				{"Trace", r.TracePath},
				{"Log", r.LogPath},
			}
			printTable(headers, rows)

			printMessage("")
			rows = nil
			for _, e := range r.Logs {
				pos := "-"
				if e.Position != nil {
					pos = strconv.Itoa(*e.Position)
				}
				rows = append(rows, []string{pos, colorLevel(e.Level), e.Message, e.ScreenshotPath})
			}
			printTable([]string{"STEP", "LEVEL", "MESSAGE", "SCREENSHOT"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Run ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newRunsDownloadCmd() *cobra.Command {
	var id, kind, output string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download a run's trace archive or log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = map[string]string{"trace": "trace.zip", "log": "run.log"}[kind]
				if output == "" {
					return fmt.Errorf("--kind must be trace or log")
				}
			}

			client := getClient()
			req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/runs/%s/artifacts/%s", client.baseURL, id, kind), nil)
			if err != nil {
				return err
			}
			resp, err := client.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				var errResp struct {
					Error string `json:"error"`
				}
				json.NewDecoder(resp.Body).Decode(&errResp)
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()

			n, err := io.Copy(f, resp.Body)
			if err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			printMessage(fmt.Sprintf("Saved %s (%d bytes)", output, n))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Run ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&kind, "kind", "trace", "Artifact kind: trace or log")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default trace.zip or run.log)")
	return cmd
}
