package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alvesdmateus/easydeploy/internal/gateway"
	"github.com/alvesdmateus/easydeploy/internal/status"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

// styles renders colour only when the writer is a terminal.
type styles struct {
	success lipgloss.Style
	failure lipgloss.Style
	pending lipgloss.Style
	header  lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")),
		pending: r.NewStyle().Foreground(lipgloss.Color("11")),
		header:  r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s styles) state(st status.State) lipgloss.Style {
	switch st {
	case status.Completed:
		return s.success
	case status.Failed:
		return s.failure
	default:
		return s.pending
	}
}

var tableHeaders = []string{"Job ID", "App Name", "Status", "Created At", "URL"}

// printDeployments writes deployments as an aligned table.
func printDeployments(w io.Writer, deployments []tracker.Deployment) {
	st := newStyles(w)
	if len(deployments) == 0 {
		fmt.Fprintln(w, st.muted.Render("No deployments found."))
		return
	}

	rows := make([][]string, 0, len(deployments))
	for _, d := range deployments {
		raw := d.RawStatus
		if raw == "" {
			raw = string(d.State)
		}
		rows = append(rows, []string{d.ID, orDash(d.Name), raw, formatTime(d.CreatedAt), orDash(d.URL)})
	}

	widths := make([]int, len(tableHeaders))
	for i, h := range tableHeaders {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	headers := make([]string, len(tableHeaders))
	for i, h := range tableHeaders {
		headers[i] = st.header.Render(pad(h, widths[i]))
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(headers, "  "), " "))

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = pad(cell, widths[j])
		}
		cells[2] = st.state(deployments[i].State).Render(cells[2])
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

// printDetail writes one deployment's status.
func printDetail(w io.Writer, d gateway.DeploymentDetail) {
	st := newStyles(w)
	fmt.Fprintf(w, "Deployment: %s\n", d.ID)
	if d.Name != "" {
		fmt.Fprintf(w, "App:        %s\n", d.Name)
	}
	raw := d.RawStatus
	if raw == "" {
		raw = string(d.State)
	}
	fmt.Fprintf(w, "Status:     %s\n", st.state(d.State).Render(raw))
	if d.CreatedAt != nil {
		fmt.Fprintf(w, "Created:    %s\n", formatTime(d.CreatedAt))
	}
	if d.Platform != "" {
		fmt.Fprintf(w, "Platform:   %s %s\n", d.Platform, d.Region)
	}
	if d.URL != "" {
		fmt.Fprintf(w, "URL:        %s\n", d.URL)
	}
	if d.Message != "" {
		fmt.Fprintf(w, "Message:    %s\n", d.Message)
	}
	if d.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", st.failure.Render(d.Error))
	}
}

func printSuccess(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, newStyles(w).success.Render(fmt.Sprintf(format, a...)))
}

func printWarning(w io.Writer, format string, a ...any) {
	fmt.Fprintln(w, newStyles(w).pending.Render(fmt.Sprintf(format, a...)))
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
