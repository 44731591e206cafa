package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/alvesdmateus/easydeploy/internal/status"
)

// DeploymentSummary is one entry of a deployment listing.
type DeploymentSummary = status.Summary

// DeploymentDetail is the result of GET /deployments/{id}.
type DeploymentDetail struct {
	DeploymentSummary
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
	Platform string `json:"platform,omitempty"`
	Region   string `json:"region,omitempty"`
}

// DeployResult carries the id assigned to a new deployment.
type DeployResult struct {
	DeploymentID string `json:"deployment_id"`
}

// ListFilter narrows ListDeployments. Zero values are not sent.
type ListFilter struct {
	AppName string
	Limit   int
}

// UserInfo identifies the owner of the API key.
type UserInfo struct {
	ID       string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// HealthResult is the outcome of a health probe. It is never an error.
type HealthResult struct {
	OK         bool          `json:"ok"`
	Latency    time.Duration `json:"latency"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string {
	return string(f)
}

// rawDeployment tolerates the field names used by different server versions.
type rawDeployment struct {
	ID           flexString `json:"id"`
	JobID        flexString `json:"job_id"`
	DeploymentID flexString `json:"deployment_id"`
	Name         flexString `json:"name"`
	AppName      flexString `json:"app_name"`
	Status       flexString `json:"status"`
	URL          flexString `json:"url"`
	CreatedAt    flexString `json:"created_at"`
	Message      flexString `json:"message"`
	Error        flexString `json:"error"`
	Platform     flexString `json:"platform"`
	Provider     flexString `json:"provider"`
	Region       flexString `json:"region"`
}

func (r rawDeployment) id() string {
	return firstNonEmpty(r.ID.String(), r.JobID.String(), r.DeploymentID.String())
}

func (r rawDeployment) summary() DeploymentSummary {
	raw := r.Status.String()
	return DeploymentSummary{
		ID:        r.id(),
		Name:      firstNonEmpty(r.Name.String(), r.AppName.String()),
		RawStatus: raw,
		State:     status.Classify(raw),
		URL:       r.URL.String(),
		CreatedAt: status.ParseTime(r.CreatedAt.String()),
	}
}

func (r rawDeployment) detail() DeploymentDetail {
	return DeploymentDetail{
		DeploymentSummary: r.summary(),
		Message:           r.Message.String(),
		Error:             r.Error.String(),
		Platform:          firstNonEmpty(r.Platform.String(), r.Provider.String()),
		Region:            r.Region.String(),
	}
}

// decodeList normalizes a wrapped {"deployments": [...]} or bare [...]
// listing. Unknown shapes and undecodable items are dropped.
func decodeList(body []byte) []DeploymentSummary {
	out := []DeploymentSummary{}

	items, ok := listItems(body, "deployments")
	if !ok {
		return out
	}
	for _, item := range items {
		var r rawDeployment
		if err := json.Unmarshal(item, &r); err != nil {
			continue
		}
		s := r.summary()
		if s.ID == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// listItems returns the elements of a bare JSON array or of the array stored
// under key in a JSON object.
func listItems(body []byte, key string) ([]json.RawMessage, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false
	}

	var items []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, false
		}
		inner, ok := wrapped[key]
		if !ok {
			return nil, false
		}
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, false
		}
		return items, true
	}
	return nil, false
}

type logEntry struct {
	Timestamp flexString `json:"timestamp"`
	Level     flexString `json:"level"`
	Message   flexString `json:"message"`
}

func (e logEntry) String() string {
	var parts []string
	if ts := e.Timestamp.String(); ts != "" {
		parts = append(parts, ts)
	}
	if lvl := e.Level.String(); lvl != "" {
		parts = append(parts, "["+strings.ToUpper(lvl)+"]")
	}
	parts = append(parts, e.Message.String())
	return strings.Join(parts, " ")
}

// formatLogs renders the logs payload, which is either plain text or a list
// of structured entries, as text.
func formatLogs(body []byte) (string, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", false
	}

	if body[0] == '{' {
		var wrapped map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return "", false
		}
		inner, ok := wrapped["logs"]
		if !ok {
			return "", false
		}
		body = bytes.TrimSpace(inner)
		if len(body) == 0 || string(body) == "null" {
			return "", true
		}
	}

	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return "", false
		}
		return s, true
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return "", false
		}
		lines := make([]string, 0, len(items))
		for _, item := range items {
			var s string
			if err := json.Unmarshal(item, &s); err == nil {
				lines = append(lines, s)
				continue
			}
			var e logEntry
			if err := json.Unmarshal(item, &e); err != nil {
				continue
			}
			lines = append(lines, e.String())
		}
		return strings.Join(lines, "\n"), true
	}
	return "", false
}

func decodeDomains(body []byte) []string {
	out := []string{}
	items, ok := listItems(body, "domains")
	if !ok {
		return out
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Domain flexString `json:"domain"`
			Name   flexString `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		if d := firstNonEmpty(obj.Domain.String(), obj.Name.String()); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
