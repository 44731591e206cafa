package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
)

// Deploy submits a new deployment and returns the id assigned by the server.
func (c *Client) Deploy(ctx context.Context, req descriptor.DeployRequest) (DeployResult, error) {
	var raw rawDeployment
	code, err := c.do(ctx, request{op: "deploy", method: http.MethodPost, path: "/deployments", body: req}, &raw)
	if err != nil {
		return DeployResult{}, err
	}
	id := raw.id()
	if id == "" {
		return DeployResult{}, shapeError("deploy", code, "response did not include a deployment id")
	}
	return DeployResult{DeploymentID: id}, nil
}

// ListDeployments lists deployments known to the server. A 2xx response in
// an unrecognized shape, including an empty or non-JSON body, yields an
// empty list.
func (c *Client) ListDeployments(ctx context.Context, filter ListFilter) ([]DeploymentSummary, error) {
	query := url.Values{}
	if filter.AppName != "" {
		query.Set("app_name", filter.AppName)
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var body []byte
	code, err := c.do(ctx, request{op: "list deployments", method: http.MethodGet, path: "/deployments", query: query}, &body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		c.logger.Debug().Int("status", code).Int("bytes", len(body)).Msg("Undecodable deployment listing treated as empty")
		return []DeploymentSummary{}, nil
	}
	return decodeList(body), nil
}

// GetStatus returns the current state of one deployment.
func (c *Client) GetStatus(ctx context.Context, id string) (DeploymentDetail, error) {
	var raw rawDeployment
	if _, err := c.do(ctx, request{op: "get status", method: http.MethodGet, path: deploymentPath(id)}, &raw); err != nil {
		return DeploymentDetail{}, err
	}
	d := raw.detail()
	if d.ID == "" {
		d.ID = id
	}
	return d, nil
}

// GetLogs returns the deployment log as text.
func (c *Client) GetLogs(ctx context.Context, id string) (string, error) {
	var body json.RawMessage
	code, err := c.do(ctx, request{op: "get logs", method: http.MethodGet, path: deploymentPath(id) + "/logs"}, &body)
	if err != nil {
		return "", err
	}
	logs, ok := formatLogs(body)
	if !ok {
		return "", shapeError("get logs", code, "response did not include logs")
	}
	return logs, nil
}

// Remove deletes a deployment.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.do(ctx, request{op: "remove", method: http.MethodDelete, path: deploymentPath(id)}, nil)
	return err
}

// Redeploy starts a new deployment from an existing one. The returned id
// identifies the new deployment.
func (c *Client) Redeploy(ctx context.Context, id string) (DeployResult, error) {
	var raw rawDeployment
	code, err := c.do(ctx, request{op: "redeploy", method: http.MethodPost, path: deploymentPath(id) + "/redeploy", body: struct{}{}}, &raw)
	if err != nil {
		return DeployResult{}, err
	}
	newID := firstNonEmpty(raw.DeploymentID.String(), raw.ID.String(), raw.JobID.String())
	if newID == "" {
		return DeployResult{}, shapeError("redeploy", code, "response did not include a deployment id")
	}
	return DeployResult{DeploymentID: newID}, nil
}

// ListDomains lists the custom domains of the account.
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	var body json.RawMessage
	if _, err := c.do(ctx, request{op: "list domains", method: http.MethodGet, path: "/domains"}, &body); err != nil {
		return nil, err
	}
	return decodeDomains(body), nil
}

// AddDomain registers a custom domain.
func (c *Client) AddDomain(ctx context.Context, domain string) error {
	body := map[string]string{"domain": strings.TrimSpace(domain)}
	_, err := c.do(ctx, request{op: "add domain", method: http.MethodPost, path: "/domains", body: body}, nil)
	return err
}

// GetUserInfo returns the identity behind the API key.
func (c *Client) GetUserInfo(ctx context.Context) (UserInfo, error) {
	var raw struct {
		UserID   flexString `json:"user_id"`
		ID       flexString `json:"id"`
		Username flexString `json:"username"`
		Email    flexString `json:"email"`
	}
	code, err := c.do(ctx, request{op: "get user", method: http.MethodGet, path: "/user"}, &raw)
	if err != nil {
		return UserInfo{}, err
	}
	info := UserInfo{
		ID:       firstNonEmpty(raw.UserID.String(), raw.ID.String()),
		Username: raw.Username.String(),
		Email:    raw.Email.String(),
	}
	if info.ID == "" && info.Username == "" {
		return UserInfo{}, shapeError("get user", code, "response did not identify a user")
	}
	return info, nil
}

// HealthCheck probes the API. It never returns an error; failures are
// described in the result.
func (c *Client) HealthCheck(ctx context.Context) HealthResult {
	start := time.Now()
	code, err := c.do(ctx, request{op: "health", method: http.MethodGet, path: "/health", timeout: c.healthTimeout}, nil)
	result := HealthResult{
		OK:         err == nil,
		Latency:    time.Since(start),
		StatusCode: code,
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func deploymentPath(id string) string {
	return fmt.Sprintf("/deployments/%s", url.PathEscape(id))
}
