// Package apitest provides an in-memory fake of the EasyDeploy control plane
// API for tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// BasePath is where the API routes are mounted.
const BasePath = "/api/v1"

// ListShape selects how GET /deployments wraps its result.
type ListShape int

const (
	// WrappedList responds with {"deployments": [...]}.
	WrappedList ListShape = iota
	// BareList responds with [...].
	BareList
	// OddList responds with an object the client does not recognize.
	OddList
)

// Operation names used by FailNext and Count.
const (
	OpDeploy    = "deploy"
	OpList      = "list"
	OpStatus    = "status"
	OpLogs      = "logs"
	OpRemove    = "remove"
	OpRedeploy  = "redeploy"
	OpDomains   = "domains"
	OpAddDomain = "add_domain"
	OpUser      = "user"
	OpHealth    = "health"
)

// Deployment is a deployment held by the fake.
type Deployment struct {
	ID        string
	Name      string
	Status    string
	URL       string
	Platform  string
	Region    string
	CreatedAt time.Time
	Logs      []LogEntry
}

// LogEntry mirrors the server's log entry payload.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// Request is a recorded inbound request.
type Request struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
	Body          []byte
}

type failure struct {
	status int
	times  int
}

// ControlPlane is the fake server state.
type ControlPlane struct {
	mu          sync.Mutex
	apiKey      string
	deployments []*Deployment
	domains     []string
	username    string
	listShape   ListShape
	failures    map[string]*failure
	counts      map[string]int
	delay       time.Duration
	requests    []Request
	router      *chi.Mux
}

// New creates a fake that requires apiKey as bearer token. An empty apiKey
// disables authentication.
func New(apiKey string) *ControlPlane {
	cp := &ControlPlane{
		apiKey:   apiKey,
		username: "tester",
		failures: make(map[string]*failure),
		counts:   make(map[string]int),
		router:   chi.NewRouter(),
	}
	cp.setupRoutes()
	return cp
}

// Start serves the fake on a local listener until the test ends and returns
// the API base URL.
func (cp *ControlPlane) Start(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(cp.router)
	t.Cleanup(srv.Close)
	return srv.URL + BasePath
}

// Handler returns the http.Handler for the fake.
func (cp *ControlPlane) Handler() http.Handler {
	return cp.router
}

func (cp *ControlPlane) setupRoutes() {
	cp.router.Use(middleware.RequestID)
	cp.router.Use(recovery)
	cp.router.Use(requestLogger)
	cp.router.Use(cp.record)
	cp.router.Use(cp.slowdown)

	cp.router.Route(BasePath, func(r chi.Router) {
		r.Get("/health", cp.guard(OpHealth, false, cp.health))

		r.Route("/deployments", func(r chi.Router) {
			r.Get("/", cp.guard(OpList, true, cp.listDeployments))
			r.Post("/", cp.guard(OpDeploy, true, cp.createDeployment))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", cp.guard(OpStatus, true, cp.getDeployment))
				r.Delete("/", cp.guard(OpRemove, true, cp.deleteDeployment))
				r.Get("/logs", cp.guard(OpLogs, true, cp.getLogs))
				r.Post("/redeploy", cp.guard(OpRedeploy, true, cp.redeploy))
			})
		})

		r.Get("/domains", cp.guard(OpDomains, true, cp.listDomains))
		r.Post("/domains", cp.guard(OpAddDomain, true, cp.addDomain))
		r.Get("/user", cp.guard(OpUser, true, cp.user))
	})
}

// guard counts the call, applies injected failures and checks the API key.
func (cp *ControlPlane) guard(op string, auth bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cp.mu.Lock()
		cp.counts[op]++
		f := cp.failures[op]
		var failStatus int
		if f != nil && f.times > 0 {
			f.times--
			failStatus = f.status
		}
		cp.mu.Unlock()

		if failStatus != 0 {
			RespondWithError(w, failStatus, http.StatusText(failStatus))
			return
		}
		if auth && cp.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+cp.apiKey {
			RespondWithError(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next(w, r)
	}
}

func (cp *ControlPlane) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(strings.NewReader(string(body)))
		}
		cp.mu.Lock()
		cp.requests = append(cp.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
			Body:          body,
		})
		cp.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (cp *ControlPlane) slowdown(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cp.mu.Lock()
		d := cp.delay
		cp.mu.Unlock()
		if d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SetListShape changes the shape of GET /deployments responses.
func (cp *ControlPlane) SetListShape(shape ListShape) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.listShape = shape
}

// SetDelay delays every response.
func (cp *ControlPlane) SetDelay(d time.Duration) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.delay = d
}

// FailNext makes the next `times` calls of op answer with status.
func (cp *ControlPlane) FailNext(op string, status, times int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.failures[op] = &failure{status: status, times: times}
}

// Count returns how many times op was called.
func (cp *ControlPlane) Count(op string) int {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.counts[op]
}

// Requests returns the recorded requests in arrival order.
func (cp *ControlPlane) Requests() []Request {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	out := make([]Request, len(cp.requests))
	copy(out, cp.requests)
	return out
}

// AddDeployment inserts a deployment as the newest one and returns its id.
func (cp *ControlPlane) AddDeployment(name, status string) string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	d := &Deployment{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    status,
		Platform:  "aws",
		Region:    "us-west-2",
		CreatedAt: time.Now().UTC(),
	}
	cp.deployments = append([]*Deployment{d}, cp.deployments...)
	return d.ID
}

// SetStatus updates a deployment's status and URL.
func (cp *ControlPlane) SetStatus(id, status, url string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if d := cp.find(id); d != nil {
		d.Status = status
		d.URL = url
	}
}

// SetLogs replaces a deployment's log entries.
func (cp *ControlPlane) SetLogs(id string, entries ...LogEntry) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if d := cp.find(id); d != nil {
		d.Logs = entries
	}
}

// Deployment returns a copy of the stored deployment.
func (cp *ControlPlane) Deployment(id string) (Deployment, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if d := cp.find(id); d != nil {
		return *d, true
	}
	return Deployment{}, false
}

// Domains returns the registered domains.
func (cp *ControlPlane) Domains() []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return append([]string(nil), cp.domains...)
}

func (cp *ControlPlane) find(id string) *Deployment {
	for _, d := range cp.deployments {
		if d.ID == id {
			return d
		}
	}
	return nil
}

func (d *Deployment) payload() map[string]any {
	p := map[string]any{
		"id":         d.ID,
		"name":       d.Name,
		"status":     d.Status,
		"platform":   d.Platform,
		"region":     d.Region,
		"created_at": d.CreatedAt.Format("2006-01-02T15:04:05.999999"),
		"url":        nil,
	}
	if d.URL != "" {
		p["url"] = d.URL
	}
	return p
}

func (cp *ControlPlane) health(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (cp *ControlPlane) listDeployments(w http.ResponseWriter, r *http.Request) {
	appName := r.URL.Query().Get("app_name")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cp.mu.Lock()
	items := []map[string]any{}
	for _, d := range cp.deployments {
		if appName != "" && d.Name != appName {
			continue
		}
		items = append(items, d.payload())
		if limit > 0 && len(items) == limit {
			break
		}
	}
	shape := cp.listShape
	cp.mu.Unlock()

	switch shape {
	case BareList:
		RespondWithJSON(w, http.StatusOK, items)
	case OddList:
		RespondWithJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
	default:
		RespondWithJSON(w, http.StatusOK, map[string]any{"deployments": items, "total": len(items)})
	}
}

type createRequest struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	Platform string            `json:"platform"`
	Region   string            `json:"region"`
	EnvVars  map[string]string `json:"env_vars"`
}

func (cp *ControlPlane) createDeployment(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		RespondWithError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	d := &Deployment{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Status:    "pending",
		Platform:  req.Platform,
		Region:    req.Region,
		CreatedAt: time.Now().UTC(),
		Logs: []LogEntry{{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     "info",
			Message:   "Deployment queued",
		}},
	}

	cp.mu.Lock()
	cp.deployments = append([]*Deployment{d}, cp.deployments...)
	cp.mu.Unlock()

	RespondWithJSON(w, http.StatusCreated, map[string]string{"id": d.ID, "status": d.Status})
}

func (cp *ControlPlane) getDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cp.mu.Lock()
	d := cp.find(id)
	var payload map[string]any
	if d != nil {
		payload = d.payload()
		if d.Status == "failed" {
			payload["error"] = "container exited with code 1"
		}
	}
	cp.mu.Unlock()

	if payload == nil {
		RespondWithError(w, http.StatusNotFound, "Deployment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, payload)
}

func (cp *ControlPlane) getLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cp.mu.Lock()
	d := cp.find(id)
	var entries []LogEntry
	if d != nil {
		entries = append([]LogEntry{}, d.Logs...)
	}
	cp.mu.Unlock()

	if d == nil {
		RespondWithError(w, http.StatusNotFound, "Deployment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{"deployment_id": id, "logs": entries})
}

func (cp *ControlPlane) deleteDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cp.mu.Lock()
	found := false
	for i, d := range cp.deployments {
		if d.ID == id {
			cp.deployments = append(cp.deployments[:i], cp.deployments[i+1:]...)
			found = true
			break
		}
	}
	cp.mu.Unlock()

	if !found {
		RespondWithError(w, http.StatusNotFound, "Deployment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Deployment deleted"})
}

func (cp *ControlPlane) redeploy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cp.mu.Lock()
	old := cp.find(id)
	var newID string
	if old != nil {
		d := &Deployment{
			ID:        uuid.NewString(),
			Name:      old.Name,
			Status:    "pending",
			Platform:  old.Platform,
			Region:    old.Region,
			CreatedAt: time.Now().UTC(),
		}
		cp.deployments = append([]*Deployment{d}, cp.deployments...)
		newID = d.ID
	}
	cp.mu.Unlock()

	if newID == "" {
		RespondWithError(w, http.StatusNotFound, "Deployment not found")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"deployment_id": newID, "message": "Redeployment started"})
}

func (cp *ControlPlane) listDomains(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]any{"domains": cp.Domains()})
}

func (cp *ControlPlane) addDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Domain) == "" {
		RespondWithError(w, http.StatusUnprocessableEntity, "domain is required")
		return
	}

	cp.mu.Lock()
	for _, d := range cp.domains {
		if d == req.Domain {
			cp.mu.Unlock()
			RespondWithError(w, http.StatusConflict, "Domain already registered")
			return
		}
	}
	cp.domains = append(cp.domains, req.Domain)
	cp.mu.Unlock()

	RespondWithJSON(w, http.StatusCreated, map[string]string{"domain": req.Domain})
}

func (cp *ControlPlane) user(w http.ResponseWriter, r *http.Request) {
	cp.mu.Lock()
	name := cp.username
	cp.mu.Unlock()
	RespondWithJSON(w, http.StatusOK, map[string]string{"user_id": "u-1", "username": name})
}
