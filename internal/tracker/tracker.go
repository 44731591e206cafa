// Package tracker keeps the client-side view of known deployments,
// most recent first, and reconciles it against server reports.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alvesdmateus/easydeploy/internal/observability"
	"github.com/alvesdmateus/easydeploy/internal/status"
)

// Deployment is a tracked deployment record.
type Deployment struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	State     status.State `json:"status"`
	RawStatus string       `json:"raw_status,omitempty"`
	URL       string       `json:"url,omitempty"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// EventType describes a tracker change.
type EventType string

const (
	EventRecorded EventType = "recorded"
	EventUpdated  EventType = "updated"
	EventRemoved  EventType = "removed"
)

// Event is published to the Notifier after every change.
type Event struct {
	Type       EventType   `json:"type"`
	Deployment Deployment  `json:"deployment"`
	Previous   *Deployment `json:"previous,omitempty"`
	At         time.Time   `json:"at"`
}

// Store persists the tracked set between processes.
type Store interface {
	LoadAll(ctx context.Context) ([]Deployment, error)
	SaveAll(ctx context.Context, deployments []Deployment) error
}

// Notifier receives tracker events.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

const storeTimeout = 5 * time.Second

// Tracker is safe for concurrent use. Reads never wait on network calls.
type Tracker struct {
	mu       sync.RWMutex
	items    []Deployment
	gen      uint64
	saveMu   sync.Mutex
	savedGen uint64
	store    Store
	notifier Notifier
	metrics  *observability.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore enables write-through persistence.
func WithStore(s Store) Option {
	return func(t *Tracker) {
		t.store = s
	}
}

// WithNotifier publishes change events.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithMetrics keeps the tracked_deployments gauge current.
func WithMetrics(m *observability.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger.With().Str("component", "tracker").Logger()
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load replaces the tracked set with the store's contents.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	items, err := t.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tracked deployments: %w", err)
	}

	t.mu.Lock()
	t.items = dedupe(items)
	t.observeLocked()
	t.mu.Unlock()

	t.logger.Debug().Int("count", len(items)).Msg("Loaded tracked deployments")
	return nil
}

// RecordNew inserts a deployment at the front in the in_progress state.
// It returns false, changing nothing, when the id is already tracked.
func (t *Tracker) RecordNew(id, name string) bool {
	t.mu.Lock()
	if t.indexLocked(id) >= 0 {
		t.mu.Unlock()
		return false
	}
	d := Deployment{
		ID:        id,
		Name:      name,
		State:     status.InProgress,
		UpdatedAt: t.now(),
	}
	t.items = append([]Deployment{d}, t.items...)
	p := t.commitLocked()
	t.mu.Unlock()

	t.persist(p)

	t.publish(Event{Type: EventRecorded, Deployment: d, At: d.UpdatedAt})
	return true
}

// Reconcile merges server-reported summaries into the tracked set. Tracked
// ids missing from list are kept. States only move forward. Unknown ids are
// appended in list order. It returns the number of records changed or added.
func (t *Tracker) Reconcile(list []status.Summary) int {
	var events []Event

	t.mu.Lock()
	now := t.now()
	for _, s := range list {
		if s.ID == "" {
			continue
		}

		idx := t.indexLocked(s.ID)
		if idx < 0 {
			state := s.State
			if !state.Valid() {
				state = status.Classify(s.RawStatus)
			}
			d := Deployment{
				ID:        s.ID,
				Name:      s.Name,
				State:     state,
				RawStatus: s.RawStatus,
				URL:       s.URL,
				CreatedAt: s.CreatedAt,
				UpdatedAt: now,
			}
			t.items = append(t.items, d)
			events = append(events, Event{Type: EventRecorded, Deployment: d, At: now})
			continue
		}

		prev := t.items[idx]
		cur := prev
		next := status.Advance(cur.State, s.State)
		if next != cur.State {
			cur.State = next
		}
		if s.RawStatus != "" && next == s.State {
			cur.RawStatus = s.RawStatus
		}
		if s.URL != "" {
			cur.URL = s.URL
		}
		if cur.Name == "" && s.Name != "" {
			cur.Name = s.Name
		}
		if cur.CreatedAt == nil && s.CreatedAt != nil {
			cur.CreatedAt = s.CreatedAt
		}

		if !sameFields(prev, cur) {
			cur.UpdatedAt = now
			t.items[idx] = cur
			p := prev
			events = append(events, Event{Type: EventUpdated, Deployment: cur, Previous: &p, At: now})
		}
	}
	var p *pendingSave
	if len(events) > 0 {
		p = t.commitLocked()
	}
	t.mu.Unlock()

	t.persist(p)

	for _, e := range events {
		t.publish(e)
	}
	return len(events)
}

// Remove deletes a record. Callers only do this after the server confirmed
// the removal.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	idx := t.indexLocked(id)
	if idx < 0 {
		t.mu.Unlock()
		return false
	}
	d := t.items[idx]
	t.items = append(t.items[:idx:idx], t.items[idx+1:]...)
	p := t.commitLocked()
	t.mu.Unlock()

	t.persist(p)

	t.publish(Event{Type: EventRemoved, Deployment: d, At: t.now()})
	return true
}

// Snapshot returns a copy of the tracked records, most recent first.
func (t *Tracker) Snapshot() []Deployment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Deployment, len(t.items))
	copy(out, t.items)
	return out
}

// Latest returns the most recently recorded deployment.
func (t *Tracker) Latest() (Deployment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.items) == 0 {
		return Deployment{}, false
	}
	return t.items[0], true
}

// Get returns the record for id.
func (t *Tracker) Get(id string) (Deployment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx := t.indexLocked(id); idx >= 0 {
		return t.items[idx], true
	}
	return Deployment{}, false
}

// Len returns the number of tracked records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

func (t *Tracker) indexLocked(id string) int {
	for i := range t.items {
		if t.items[i].ID == id {
			return i
		}
	}
	return -1
}

type pendingSave struct {
	gen   uint64
	items []Deployment
}

// commitLocked refreshes metrics and copies the current set for persist.
// It returns nil when there is no store.
func (t *Tracker) commitLocked() *pendingSave {
	t.observeLocked()
	if t.store == nil {
		return nil
	}
	t.gen++
	items := make([]Deployment, len(t.items))
	copy(items, t.items)
	return &pendingSave{gen: t.gen, items: items}
}

// persist writes p outside the read/write lock. Saves are serialized and a
// copy older than one already written is dropped.
func (t *Tracker) persist(p *pendingSave) {
	if p == nil {
		return
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()
	if p.gen <= t.savedGen {
		return
	}
	t.savedGen = p.gen

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := t.store.SaveAll(ctx, p.items); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to persist tracked deployments")
	}
}

func (t *Tracker) observeLocked() {
	if t.metrics == nil {
		return
	}
	byState := make(map[string]int)
	for _, d := range t.items {
		byState[string(d.State)]++
	}
	t.metrics.SetTrackedDeployments(byState)
}

func (t *Tracker) publish(e Event) {
	if t.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := t.notifier.Publish(ctx, e); err != nil {
		t.logger.Warn().
			Err(err).
			Str("deployment_id", e.Deployment.ID).
			Str("event", string(e.Type)).
			Msg("Failed to publish tracker event")
	}
}

func sameFields(a, b Deployment) bool {
	return a.State == b.State &&
		a.RawStatus == b.RawStatus &&
		a.URL == b.URL &&
		a.Name == b.Name &&
		(a.CreatedAt == nil) == (b.CreatedAt == nil)
}

func dedupe(items []Deployment) []Deployment {
	seen := make(map[string]bool, len(items))
	out := make([]Deployment, 0, len(items))
	for _, d := range items {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}
