package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hairizuanbinnoorazman/keyword-runner/keyword"
	"github.com/hairizuanbinnoorazman/keyword-runner/testcase"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/spf13/cobra"
)

func newModulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "modules",
		Short: "Manage modules",
	}

	cmd.AddCommand(newModulesCreateCmd())
	cmd.AddCommand(newModulesDeleteCmd())
	return cmd
}

func newModulesCreateCmd() *cobra.Command {
	var projectID, name, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a module in a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Post(fmt.Sprintf("/api/projects/%s/modules", projectID), map[string]string{
				"name":        name,
				"description": description,
			})
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var m testmodule.Module
			if err := json.Unmarshal(body, &m); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(fmt.Sprintf("Module created: %s (%s)", m.Name, m.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID (required)")
	cmd.MarkFlagRequired("project-id")
	cmd.Flags().StringVar(&name, "name", "", "Module name (required)")
	cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&description, "description", "", "Module description")
	return cmd
}

func newModulesDeleteCmd() *cobra.Command {
	var id string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a module; its test cases are kept",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmAction(fmt.Sprintf("Delete module %s?", id), yes) {
				printMessage("Aborted.")
				return nil
			}
			if _, err := getClient().Delete(fmt.Sprintf("/api/modules/%s", id)); err != nil {
				return err
			}
			printMessage("Module deleted successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Module ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation")
	return cmd
}

func newTestCasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "testcases",
		Aliases: []string{"cases"},
		Short:   "Manage test cases",
	}

	cmd.AddCommand(newTestCasesListCmd())
	cmd.AddCommand(newTestCasesGetCmd())
	cmd.AddCommand(newTestCasesCreateCmd())
	cmd.AddCommand(newTestCasesDeleteCmd())
	cmd.AddCommand(newKeywordsCmd())
	return cmd
}

func newTestCasesListCmd() *cobra.Command {
	var projectID, moduleID string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the test cases of a project or module",
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			switch {
			case moduleID != "":
				path = fmt.Sprintf("/api/modules/%s/testcases", moduleID)
			case projectID != "":
				path = fmt.Sprintf("/api/projects/%s/testcases", projectID)
			default:
				return fmt.Errorf("one of --project-id or --module-id is required")
			}

			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			body, err := getClient().Get(path, query)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp PaginatedResponse[testcase.TestCase]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "NAME", "MODULE ID", "STEPS", "UPDATED AT"}
			var rows [][]string
			for _, tc := range resp.Items {
				module := "-"
				if tc.ModuleID != nil {
					module = tc.ModuleID.String()
				}
				rows = append(rows, []string{
					tc.ID.String(),
					truncate(tc.Name, 40),
					module,
					strconv.Itoa(len(tc.Steps)),
					tc.UpdatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d test cases", len(resp.Items)))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID")
	cmd.Flags().StringVar(&moduleID, "module-id", "", "Module ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")
	return cmd
}

func newTestCasesGetCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a test case and its steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Get(fmt.Sprintf("/api/testcases/%s", id), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var tc testcase.TestCase
			if err := json.Unmarshal(body, &tc); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(fmt.Sprintf("%s (%s)", tc.Name, tc.ID))
			if tc.Description != "" {
				printMessage(tc.Description)
			}
			printMessage("")

			headers := []string{"POS", "OPERATION", "LOCATOR", "VALUE", "DESCRIPTION"}
			var rows [][]string
			for _, s := range tc.Steps {
				rows = append(rows, []string{
					strconv.Itoa(s.Position),
					s.Operation,
					deref(s.Locator),
					truncate(deref(s.Value), 40),
					truncate(s.Description, 40),
				})
			}
			printTable(headers, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Test case ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newTestCasesCreateCmd() *cobra.Command {
	var projectID, moduleID, name, description, stepsFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a test case from a JSON steps file",
		Long: `Create a test case. The steps file holds a JSON array such as
[{"position":1,"operation":"navigate","value":"/login"},
 {"position":2,"operation":"click","locator":"#submit"}]`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateTestCaseRequest{Name: name, Description: description}

			if moduleID != "" {
				mid, err := uuid.Parse(moduleID)
				if err != nil {
					return fmt.Errorf("invalid module ID: %w", err)
				}
				req.ModuleID = &mid
			}

			if stepsFile != "" {
				data, err := os.ReadFile(stepsFile)
				if err != nil {
					return fmt.Errorf("failed to read steps file: %w", err)
				}
				if err := json.Unmarshal(data, &req.Steps); err != nil {
					return fmt.Errorf("failed to parse steps file: %w", err)
				}
			}

			body, err := getClient().Post(fmt.Sprintf("/api/projects/%s/testcases", projectID), req)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var tc testcase.TestCase
			if err := json.Unmarshal(body, &tc); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			printMessage(fmt.Sprintf("Test case created: %s (%s) with %d steps", tc.Name, tc.ID, len(tc.Steps)))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID (required)")
	cmd.MarkFlagRequired("project-id")
	cmd.Flags().StringVar(&moduleID, "module-id", "", "Module ID")
	cmd.Flags().StringVar(&name, "name", "", "Test case name (required)")
	cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&description, "description", "", "Test case description")
	cmd.Flags().StringVar(&stepsFile, "steps", "", "Path to a JSON file with the steps")
	return cmd
}

func newTestCasesDeleteCmd() *cobra.Command {
	var id string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a test case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmAction(fmt.Sprintf("Delete test case %s?", id), yes) {
				printMessage("Aborted.")
				return nil
			}
			if _, err := getClient().Delete(fmt.Sprintf("/api/testcases/%s", id)); err != nil {
				return err
			}
			printMessage("Test case deleted successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Test case ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation")
	return cmd
}

func newKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "List the supported step operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getClient().Get("/api/testcases/keywords", nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var defs []keyword.Definition
			if err := json.Unmarshal(body, &defs); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			var rows [][]string
			for _, d := range defs {
				rows = append(rows, []string{string(d.Name), joinOrDash(d.Params), joinOrDash(d.Aliases), d.Description})
			}
			printTable([]string{"OPERATION", "PARAMS", "ALIASES", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
