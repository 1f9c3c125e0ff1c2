package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/hairizuanbinnoorazman/keyword-runner/agent"
	"github.com/hairizuanbinnoorazman/keyword-runner/testrun"
)

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// printRaw pretty-prints a JSON response body as is.
func printRaw(body []byte) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		fmt.Println(string(body))
		return
	}
	printJSON(raw)
}

func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

func printMessage(msg string) {
	fmt.Println(msg)
}

func confirmAction(prompt string, skipConfirm bool) bool {
	if skipConfirm {
		return true
	}

	fmt.Printf("%s [y/N]: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes"
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Colours are dropped automatically when stdout is not a terminal.
var (
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func colorRunStatus(s testrun.Status) string {
	switch s {
	case testrun.StatusPassed:
		return green(string(s))
	case testrun.StatusFailed:
		return red(string(s))
	default:
		return string(s)
	}
}

func colorLevel(l testrun.Level) string {
	switch l {
	case testrun.LevelInfo:
		return green(string(l))
	case testrun.LevelError:
		return red(string(l))
	case testrun.LevelCritical:
		return color.New(color.FgWhite, color.BgRed, color.Bold).Sprint(string(l))
	default:
		return string(l)
	}
}

func colorAgentStatus(s agent.Status) string {
	switch s {
	case agent.StatusOnline:
		return green(string(s))
	case agent.StatusBusy:
		return yellow(string(s))
	case agent.StatusError:
		return red(string(s))
	default:
		return faint(string(s))
	}
}
