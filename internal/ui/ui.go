// Package ui provides formatted output utilities for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// Color functions for consistent styling.
var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Blue   = color.New(color.FgBlue).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc() // Dimmed text (more readable than gray)
	Bold   = color.New(color.Bold).SprintFunc()
)

// Output is the destination for UI output.
// Defaults to os.Stdout but can be overridden for testing.
var Output io.Writer = os.Stdout

// StatusBadge returns a colored job state indicator with label.
func StatusBadge(state string) string {
	switch state {
	case "running":
		return Green("● Running")
	case "paused":
		return Yellow("⏸ Paused")
	case "aborting":
		return Yellow("◐ Aborting")
	case "completed":
		return Green("✓ Completed")
	case "failed":
		return Red("✗ Failed")
	case "idle":
		return Yellow("○ Idle")
	default:
		return Red("○ Not Running")
	}
}

// ProgressBar renders percent as a bar of width cells.
func ProgressBar(percent, width int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * width / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// JobStatus contains job information for display.
type JobStatus struct {
	State        string
	RunID        string
	Folder       string
	Reason       string
	CurrentIndex int
	CurrentFile  string
	TotalLayers  int
	Progress     int
	Snapshot     string
	StartedAt    string
	LogPath      string
	Events       []EventLine
}

// EventLine is one recent job event.
type EventLine struct {
	Time    string
	Type    string
	Message string
}

// PrintJobStatus prints the job status in a formatted style.
func PrintJobStatus(s JobStatus) {
	fmt.Fprintf(Output, "%s %s\n", Bold("Status:"), StatusBadge(s.State))

	if s.TotalLayers > 0 {
		layer := 0
		if s.CurrentIndex >= 0 {
			layer = s.CurrentIndex + 1
		}
		fmt.Fprintf(Output, "%s [%s] %d%% (layer %d/%d)\n",
			Bold("Progress:"), ProgressBar(s.Progress, 30), s.Progress, layer, s.TotalLayers)
	}
	if s.CurrentFile != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Layer:"), Cyan(filepath.Base(s.CurrentFile)))
	}
	if s.Folder != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Folder:"), s.Folder)
	}
	if s.Reason != "" {
		reason := s.Reason
		if s.State == "failed" {
			reason = Red(reason)
		}
		fmt.Fprintf(Output, "%s %s\n", Bold("Reason:"), reason)
	}
	if s.RunID != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Run:"), Dim(s.RunID))
	}
	if s.StartedAt != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Started:"), s.StartedAt)
	}
	if s.Snapshot != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Snapshot:"), Blue(s.Snapshot))
	}
	if s.LogPath != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Logs:"), s.LogPath)
	}

	if len(s.Events) > 0 {
		fmt.Fprintln(Output, Bold("Recent events:"))
		for _, ev := range s.Events {
			fmt.Fprintf(Output, "  %s %s %s\n", Dim(ev.Time), Cyan(ev.Type), ev.Message)
		}
	}
}

// PrintLayerList prints the layer files queued from folder.
func PrintLayerList(folder string, files []string) {
	if len(files) == 0 {
		fmt.Fprintf(Output, "No layer files found in %s.\n", folder)
		return
	}

	fmt.Fprintf(Output, "%s %s\n", Bold(fmt.Sprintf("%d layers in", len(files))), folder)
	for i, f := range files {
		fmt.Fprintf(Output, "  %s %s\n", Dim(fmt.Sprintf("%4d", i+1)), filepath.Base(f))
	}
}

// SnapshotInfo represents a saved job snapshot for display.
type SnapshotInfo struct {
	Path         string
	Timestamp    string
	CurrentLayer int
	TotalLayers  int
}

// PrintSnapshotList prints saved snapshots, newest first.
func PrintSnapshotList(snapshots []SnapshotInfo) {
	if len(snapshots) == 0 {
		fmt.Fprintln(Output, "No saved snapshots.")
		return
	}

	fmt.Fprintln(Output, Bold("Saved snapshots:"))
	for _, s := range snapshots {
		fmt.Fprintf(Output, "  %s %s %s\n",
			Cyan(filepath.Base(s.Path)),
			Yellow(fmt.Sprintf("layer %d/%d", s.CurrentLayer, s.TotalLayers)),
			Dim(fmt.Sprintf("(%s)", s.Timestamp)),
		)
	}
}

// PrintDeviceStatus prints the scancard working status.
func PrintDeviceStatus(addr, status string) {
	badge := Yellow(status)
	if status == "Waiting" {
		badge = Green("● " + status)
	}
	fmt.Fprintf(Output, "%s %s\n", Bold("Scancard:"), Blue(addr))
	fmt.Fprintf(Output, "%s %s\n", Bold("Status:"), badge)
}

// PrintDeviceError prints the scancard error state.
func PrintDeviceError(code int, description string) {
	if code == 1 {
		fmt.Fprintf(Output, "%s %s\n", Bold("Error state:"), Green("none"))
		return
	}
	fmt.Fprintf(Output, "%s %s %s\n", Bold("Error state:"), Red(fmt.Sprintf("[%d]", code)), description)
}

// ParamReport summarizes a batch parameter write for display.
type ParamReport struct {
	Applied    []int
	Invalid    []string
	Failures   []string
	Downloaded bool
}

// PrintParamReport prints the outcome of a parameter apply.
func PrintParamReport(r ParamReport) {
	if len(r.Applied) > 0 {
		PrintSuccess(fmt.Sprintf("Applied parameters to %d layer(s): %s", len(r.Applied), FormatLayers(r.Applied)))
	}
	for _, inv := range r.Invalid {
		PrintWarning("Skipped: " + inv)
	}
	for _, f := range r.Failures {
		PrintError(f)
	}
	if r.Downloaded {
		PrintSuccess("Parameters downloaded to hardware")
	} else {
		PrintWarning("Parameters were not downloaded to hardware")
	}
}

// FormatLayers renders layer numbers compactly, collapsing runs: 1-3,5.
func FormatLayers(layers []int) string {
	var parts []string
	for i := 0; i < len(layers); {
		j := i
		for j+1 < len(layers) && layers[j+1] == layers[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", layers[i], layers[j]))
		} else {
			parts = append(parts, fmt.Sprint(layers[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// PrintSuccess prints a success message with green checkmark.
func PrintSuccess(message string) {
	fmt.Fprintf(Output, "%s %s\n", Green("✓"), message)
}

// PrintError prints an error message with red X.
func PrintError(message string) {
	fmt.Fprintf(Output, "%s %s\n", Red("✗"), message)
}

// PrintWarning prints a warning message with yellow exclamation.
func PrintWarning(message string) {
	fmt.Fprintf(Output, "%s %s\n", Yellow("⚠"), message)
}

// PrintInfo prints an info message with blue dot.
func PrintInfo(message string) {
	fmt.Fprintf(Output, "%s %s\n", Blue("•"), message)
}
