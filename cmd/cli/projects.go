package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/hairizuanbinnoorazman/keyword-runner/project"
	"github.com/hairizuanbinnoorazman/keyword-runner/testmodule"
	"github.com/spf13/cobra"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects",
	}

	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsCreateCmd())
	cmd.AddCommand(newProjectsGetCmd())
	cmd.AddCommand(newProjectsUpdateCmd())
	cmd.AddCommand(newProjectsDeleteCmd())
	return cmd
}

func newProjectsListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			body, err := getClient().Get("/api/projects", query)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var resp PaginatedResponse[project.Project]
			if err := json.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"ID", "NAME", "BASE URL", "BROWSER", "HEADLESS", "CREATED AT"}
			var rows [][]string
			for _, p := range resp.Items {
				rows = append(rows, []string{
					p.ID.String(),
					truncate(p.Name, 30),
					truncate(p.BaseURL, 40),
					string(p.Browser),
					strconv.FormatBool(p.Headless),
					p.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			printTable(headers, rows)
			printMessage(fmt.Sprintf("\nShowing %d projects", len(resp.Items)))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset for pagination")
	return cmd
}

func newProjectsCreateCmd() *cobra.Command {
	var name, description, baseURL, browser string
	var headless bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new project",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateProjectRequest{
				Name:        name,
				Description: description,
				BaseURL:     baseURL,
				Browser:     browser,
			}
			if cmd.Flags().Changed("headless") {
				req.Headless = &headless
			}

			body, err := getClient().Post("/api/projects", req)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var p project.Project
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(fmt.Sprintf("Project created: %s (%s)", p.Name, p.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Project name (required)")
	cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&description, "description", "", "Project description")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL prefixed to relative navigate steps")
	cmd.Flags().StringVar(&browser, "browser", "", "Browser: chromium, firefox or webkit (default chromium)")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	return cmd
}

func newProjectsGetCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a project and its modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := getClient()

			body, err := client.Get(fmt.Sprintf("/api/projects/%s", id), nil)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var p project.Project
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			headers := []string{"FIELD", "VALUE"}
			rows := [][]string{
				{"ID", p.ID.String()},
				{"Name", p.Name},
				{"Description", p.Description},
				{"Base URL", p.BaseURL},
				{"Browser", string(p.Browser)},
				{"Headless", strconv.FormatBool(p.Headless)},
				{"Created At", p.CreatedAt.Format("2006-01-02 15:04:05")},
				{"Updated At", p.UpdatedAt.Format("2006-01-02 15:04:05")},
			}
			printTable(headers, rows)

			body, err = client.Get(fmt.Sprintf("/api/projects/%s/modules", id), nil)
			if err != nil {
				return err
			}
			var modules PaginatedResponse[testmodule.Module]
			if err := json.Unmarshal(body, &modules); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			if len(modules.Items) == 0 {
				return nil
			}

			printMessage("\nModules:")
			rows = nil
			for _, m := range modules.Items {
				rows = append(rows, []string{m.ID.String(), m.Name, truncate(m.Description, 40)})
			}
			printTable([]string{"ID", "NAME", "DESCRIPTION"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Project ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newProjectsUpdateCmd() *cobra.Command {
	var id, name, description, baseURL, browser string
	var headless bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := UpdateProjectRequest{}
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("description") {
				req.Description = &description
			}
			if cmd.Flags().Changed("base-url") {
				req.BaseURL = &baseURL
			}
			if cmd.Flags().Changed("browser") {
				req.Browser = &browser
			}
			if cmd.Flags().Changed("headless") {
				req.Headless = &headless
			}

			body, err := getClient().Put(fmt.Sprintf("/api/projects/%s", id), req)
			if err != nil {
				return err
			}

			if flagJSON {
				printRaw(body)
				return nil
			}

			var p project.Project
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			printMessage(fmt.Sprintf("Project updated: %s (%s)", p.Name, p.ID))
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Project ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().StringVar(&name, "name", "", "New project name")
	cmd.Flags().StringVar(&description, "description", "", "New project description")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "New base URL")
	cmd.Flags().StringVar(&browser, "browser", "", "New browser")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run the browser headless")
	return cmd
}

func newProjectsDeleteCmd() *cobra.Command {
	var id string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a project with its modules and test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmAction(fmt.Sprintf("Delete project %s?", id), yes) {
				printMessage("Aborted.")
				return nil
			}

			if _, err := getClient().Delete(fmt.Sprintf("/api/projects/%s", id)); err != nil {
				return err
			}

			printMessage("Project deleted successfully.")
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Project ID (required)")
	cmd.MarkFlagRequired("id")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip confirmation")
	return cmd
}
