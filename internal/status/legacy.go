package status

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoTable is returned when legacy output contains no recognizable table header.
var ErrNoTable = errors.New("no deployment table found in output")

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

type column int

const (
	colUnknown column = iota
	colID
	colName
	colStatus
	colCreated
	colURL
)

func headerColumn(h string) column {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, "_", " ")
	switch h {
	case "job id", "id", "deployment id":
		return colID
	case "app name", "name", "app":
		return colName
	case "status", "state":
		return colStatus
	case "created at", "created":
		return colCreated
	case "url":
		return colURL
	}
	return colUnknown
}

// StripANSI removes terminal colour escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ParseLegacyListing extracts deployment summaries from the table printed by
// older EasyDeploy CLI releases ("pretty" bordered or plain pipe tables).
// Status values go through Classify so both input paths agree.
func ParseLegacyListing(text string) ([]Summary, error) {
	var columns []column
	var out []Summary

	for _, line := range strings.Split(StripANSI(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBorder(line) || !strings.Contains(line, "|") {
			continue
		}
		cells := splitRow(line)

		if columns == nil {
			mapped := make([]column, len(cells))
			hasID := false
			for i, c := range cells {
				mapped[i] = headerColumn(c)
				if mapped[i] == colID {
					hasID = true
				}
			}
			if hasID {
				columns = mapped
			}
			continue
		}

		var s Summary
		for i, cell := range cells {
			if i >= len(columns) {
				break
			}
			switch columns[i] {
			case colID:
				s.ID = cell
			case colName:
				s.Name = cell
			case colStatus:
				s.RawStatus = cell
				s.State = Classify(cell)
			case colCreated:
				s.CreatedAt = ParseTime(cell)
			case colURL:
				if !isPlaceholder(cell) {
					s.URL = cell
				}
			}
		}
		if s.ID == "" || isPlaceholder(s.ID) {
			continue
		}
		if s.State == "" {
			s.State = Classify(s.RawStatus)
		}
		out = append(out, s)
	}

	if columns == nil {
		return nil, ErrNoTable
	}
	return out, nil
}

func isBorder(line string) bool {
	return strings.Trim(line, "+-=|: ") == ""
}

func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}
