// Package dispatcher implements the orchestration operations shared by every
// front end: it loads descriptors, calls the control plane and keeps the
// deployment tracker in step with the results.
package dispatcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
	"github.com/alvesdmateus/easydeploy/internal/gateway"
	"github.com/alvesdmateus/easydeploy/internal/observability"
	"github.com/alvesdmateus/easydeploy/internal/status"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

// DefaultPollDelay is how long after a deploy the first reconciliation runs.
const DefaultPollDelay = 3 * time.Second

// Gateway is the control plane surface the dispatcher needs.
type Gateway interface {
	Deploy(ctx context.Context, req descriptor.DeployRequest) (gateway.DeployResult, error)
	ListDeployments(ctx context.Context, filter gateway.ListFilter) ([]gateway.DeploymentSummary, error)
	GetStatus(ctx context.Context, id string) (gateway.DeploymentDetail, error)
	GetLogs(ctx context.Context, id string) (string, error)
	Remove(ctx context.Context, id string) error
	Redeploy(ctx context.Context, id string) (gateway.DeployResult, error)
	ListDomains(ctx context.Context) ([]string, error)
	AddDomain(ctx context.Context, domain string) error
	GetUserInfo(ctx context.Context) (gateway.UserInfo, error)
	HealthCheck(ctx context.Context) gateway.HealthResult
}

// Builder builds a local container image for a descriptor and returns the
// image reference sent with the deploy request.
type Builder interface {
	Build(ctx context.Context, d *descriptor.Descriptor, contextDir string) (string, error)
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	gw          Gateway
	tracker     *tracker.Tracker
	builder     Builder
	retryPolicy RetryPolicy
	pollDelay   time.Duration
	poller      *Poller
	progress    func(gateway.DeploymentDetail)
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	logger      zerolog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBuilder enables local image builds on deploy.
func WithBuilder(b Builder) Option {
	return func(d *Dispatcher) {
		d.builder = b
	}
}

// WithRetry overrides the retry policy for idempotent reads.
func WithRetry(p RetryPolicy) Option {
	return func(d *Dispatcher) {
		d.retryPolicy = p
	}
}

// WithPollDelay sets the delay of the post-deploy reconciliation poll.
// Zero or negative disables it.
func WithPollDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		d.pollDelay = delay
	}
}

// WithProgress registers a callback invoked after every poll of
// WaitForCompletion.
func WithProgress(fn func(gateway.DeploymentDetail)) Option {
	return func(d *Dispatcher) {
		d.progress = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger.With().Str("component", "dispatcher").Logger()
	}
}

// WithMetrics records operation outcomes and retries.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a dispatcher over gw and tr.
func New(gw Gateway, tr *tracker.Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		gw:          gw,
		tracker:     tr,
		retryPolicy: DefaultRetryPolicy(),
		pollDelay:   DefaultPollDelay,
		tracer:      observability.GetGlobalTracer(),
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.poller = NewPoller(d.Refresh, 0, WithPollerLogger(d.logger), WithPollerMetrics(d.metrics))
	return d
}

// Tracker returns the tracker the dispatcher updates.
func (d *Dispatcher) Tracker() *tracker.Tracker {
	return d.tracker
}

// Close cancels scheduled polls and waits for a running one to finish.
func (d *Dispatcher) Close() {
	d.poller.Stop()
}

// DeployOptions tunes Deploy.
type DeployOptions struct {
	// Build builds the image locally first when the runtime is docker.
	Build bool
}

// DeployOutcome is the result of a successful Deploy.
type DeployOutcome struct {
	DeploymentID string
	Name         string
	Image        string
	Descriptor   *descriptor.Descriptor
}

// Deploy loads the descriptor at configPath, optionally builds the image,
// submits the deployment and tracks it. On any failure the tracker is
// left unchanged.
func (d *Dispatcher) Deploy(ctx context.Context, configPath string, opts DeployOptions) (_ DeployOutcome, err error) {
	const op = "deploy"

	ctx, span := d.startSpan(ctx, op)
	var touched tracker.Deployment
	defer func() { endSpan(span, touched, err) }()

	if err := ctx.Err(); err != nil {
		return DeployOutcome{}, d.finish(ctx, op, err)
	}

	desc, err := descriptor.Load(configPath)
	if err != nil {
		return DeployOutcome{}, d.finish(ctx, op, err)
	}

	tagDescriptor(span, desc)
	logger := d.logger.With().Str("app_name", desc.Name).Logger()

	var image string
	if opts.Build && desc.Runtime == "docker" {
		if d.builder == nil {
			return DeployOutcome{}, d.finish(ctx, op, fmt.Errorf("%w: no image builder configured", ErrBuildFailed))
		}
		logger.Info().Msg("Building image")
		image, err = d.builder.Build(ctx, desc, filepath.Dir(configPath))
		if err != nil {
			if ctx.Err() == nil {
				err = fmt.Errorf("%w: %w", ErrBuildFailed, err)
			}
			return DeployOutcome{}, d.finish(ctx, op, err)
		}
	}

	res, err := d.gw.Deploy(ctx, desc.DeployRequest(image))
	if err != nil {
		return DeployOutcome{}, d.finish(ctx, op, err)
	}

	d.tracker.RecordNew(res.DeploymentID, desc.Name)
	touched = tracker.Deployment{ID: res.DeploymentID, Name: desc.Name, State: status.InProgress}
	d.schedulePoll(ctx)

	logger.Info().Str("deployment_id", res.DeploymentID).Msg("Deployment submitted")
	return DeployOutcome{
		DeploymentID: res.DeploymentID,
		Name:         desc.Name,
		Image:        image,
		Descriptor:   desc,
	}, d.finish(ctx, op, nil)
}

// StatusQuery selects what Status reports.
type StatusQuery struct {
	ID      string
	AppName string
	Limit   int
}

// StatusResult carries either one deployment's detail or the tracked list.
type StatusResult struct {
	Detail      *gateway.DeploymentDetail
	Deployments []tracker.Deployment
}

// Status reports one deployment when id is set, otherwise refreshes and
// returns the tracked list.
func (d *Dispatcher) Status(ctx context.Context, id string) (StatusResult, error) {
	return d.Query(ctx, StatusQuery{ID: id})
}

// Query is Status with list filters.
func (d *Dispatcher) Query(ctx context.Context, q StatusQuery) (StatusResult, error) {
	const op = "status"

	if err := ctx.Err(); err != nil {
		return StatusResult{}, d.finish(ctx, op, err)
	}

	if id := strings.TrimSpace(q.ID); id != "" {
		var detail gateway.DeploymentDetail
		err := d.retry(ctx, op, func(ctx context.Context) error {
			var err error
			detail, err = d.gw.GetStatus(ctx, id)
			return err
		})
		if err != nil {
			return StatusResult{}, d.finish(ctx, op, err)
		}
		d.tracker.Reconcile([]status.Summary{detail.DeploymentSummary})
		return StatusResult{Detail: &detail, Deployments: d.tracker.Snapshot()}, d.finish(ctx, op, nil)
	}

	list, err := d.list(ctx, op, gateway.ListFilter{AppName: q.AppName, Limit: q.Limit})
	if err != nil {
		return StatusResult{}, d.finish(ctx, op, err)
	}
	d.tracker.Reconcile(list)

	snapshot := d.tracker.Snapshot()
	if q.AppName != "" {
		filtered := snapshot[:0]
		for _, dep := range snapshot {
			if dep.Name == q.AppName {
				filtered = append(filtered, dep)
			}
		}
		snapshot = filtered
	}
	return StatusResult{Deployments: snapshot}, d.finish(ctx, op, nil)
}

// Refresh lists deployments and reconciles the tracker. It is the poll
// function used after deploys and by watch.
func (d *Dispatcher) Refresh(ctx context.Context) error {
	list, err := d.list(ctx, "refresh", gateway.ListFilter{})
	if err != nil {
		return err
	}
	if changed := d.tracker.Reconcile(list); changed > 0 {
		d.logger.Debug().Int("changed", changed).Msg("Reconciled tracked deployments")
	}
	return nil
}

// Logs returns the logs of id, or of the latest tracked deployment when id
// is empty.
func (d *Dispatcher) Logs(ctx context.Context, id string) (string, error) {
	const op = "logs"

	target, err := d.resolve(ctx, id)
	if err != nil {
		return "", d.finish(ctx, op, err)
	}

	var logs string
	err = d.retry(ctx, op, func(ctx context.Context) error {
		var err error
		logs, err = d.gw.GetLogs(ctx, target)
		return err
	})
	if err != nil {
		return "", d.finish(ctx, op, err)
	}
	return logs, d.finish(ctx, op, nil)
}

// Remove deletes a deployment. Without confirmed it returns ErrNotConfirmed
// and dispatches nothing. An empty id targets the latest tracked
// deployment. The tracker entry goes only after the server confirms.
func (d *Dispatcher) Remove(ctx context.Context, id string, confirmed bool) (_ string, err error) {
	const op = "remove"

	ctx, span := d.startSpan(ctx, op)
	var touched tracker.Deployment
	defer func() { endSpan(span, touched, err) }()

	target, err := d.resolve(ctx, id)
	if err != nil {
		return "", d.finish(ctx, op, err)
	}
	touched, _ = d.tracker.Get(target)
	touched.ID = target
	if !confirmed {
		return target, d.finish(ctx, op, fmt.Errorf("%w: deployment %s", ErrNotConfirmed, target))
	}

	if err := d.gw.Remove(ctx, target); err != nil {
		return target, d.finish(ctx, op, err)
	}
	d.tracker.Remove(target)

	d.logger.Info().Str("deployment_id", target).Msg("Deployment removed")
	return target, d.finish(ctx, op, nil)
}

// Redeploy re-runs a deployment. The new id is tracked under the original
// application name.
func (d *Dispatcher) Redeploy(ctx context.Context, id string) (_ DeployOutcome, err error) {
	const op = "redeploy"

	ctx, span := d.startSpan(ctx, op)
	var touched tracker.Deployment
	defer func() { endSpan(span, touched, err) }()

	target, err := d.resolve(ctx, id)
	if err != nil {
		return DeployOutcome{}, d.finish(ctx, op, err)
	}

	res, err := d.gw.Redeploy(ctx, target)
	if err != nil {
		return DeployOutcome{}, d.finish(ctx, op, err)
	}

	var name string
	if prev, ok := d.tracker.Get(target); ok {
		name = prev.Name
	}
	d.tracker.RecordNew(res.DeploymentID, name)
	touched = tracker.Deployment{ID: res.DeploymentID, Name: name, State: status.InProgress}
	d.schedulePoll(ctx)

	d.logger.Info().
		Str("deployment_id", res.DeploymentID).
		Str("previous_id", target).
		Msg("Redeployment submitted")
	return DeployOutcome{DeploymentID: res.DeploymentID, Name: name}, d.finish(ctx, op, nil)
}

// ListDomains returns the custom domains of the account.
func (d *Dispatcher) ListDomains(ctx context.Context) ([]string, error) {
	const op = "domains"

	var domains []string
	err := d.retry(ctx, op, func(ctx context.Context) error {
		var err error
		domains, err = d.gw.ListDomains(ctx)
		return err
	})
	if err != nil {
		return nil, d.finish(ctx, op, err)
	}
	return domains, d.finish(ctx, op, nil)
}

// AddDomain registers a custom domain.
func (d *Dispatcher) AddDomain(ctx context.Context, domain string) error {
	const op = "add domain"

	domain = strings.TrimSpace(domain)
	if domain == "" {
		return d.finish(ctx, op, fmt.Errorf("%w: domain is required", ErrInvalidArgument))
	}
	if err := d.gw.AddDomain(ctx, domain); err != nil {
		return d.finish(ctx, op, err)
	}
	return d.finish(ctx, op, nil)
}

// WhoAmI returns the identity behind the configured API key.
func (d *Dispatcher) WhoAmI(ctx context.Context) (gateway.UserInfo, error) {
	const op = "whoami"

	var info gateway.UserInfo
	err := d.retry(ctx, op, func(ctx context.Context) error {
		var err error
		info, err = d.gw.GetUserInfo(ctx)
		return err
	})
	if err != nil {
		return gateway.UserInfo{}, d.finish(ctx, op, err)
	}
	return info, d.finish(ctx, op, nil)
}

// Health probes the control plane.
func (d *Dispatcher) Health(ctx context.Context) gateway.HealthResult {
	res := d.gw.HealthCheck(ctx)
	result := "success"
	if !res.OK {
		result = "error"
	}
	d.metrics.RecordOperation("health", result)
	return res
}

// WaitForCompletion polls id up to maxPolls times, interval apart, until it
// reaches a terminal state. The last observed detail is returned; it may
// still be in progress when the polls run out.
func (d *Dispatcher) WaitForCompletion(ctx context.Context, id string, interval time.Duration, maxPolls int) (gateway.DeploymentDetail, error) {
	const op = "wait"

	if maxPolls < 1 {
		maxPolls = 1
	}

	var detail gateway.DeploymentDetail
	for i := 0; i < maxPolls; i++ {
		if i > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return detail, d.finish(ctx, op, ctx.Err())
			case <-timer.C:
			}
		}

		err := d.retry(ctx, op, func(ctx context.Context) error {
			var err error
			detail, err = d.gw.GetStatus(ctx, id)
			return err
		})
		if err != nil {
			return detail, d.finish(ctx, op, err)
		}
		d.tracker.Reconcile([]status.Summary{detail.DeploymentSummary})
		if d.progress != nil {
			d.progress(detail)
		}
		if detail.State.Terminal() {
			break
		}
	}
	return detail, d.finish(ctx, op, nil)
}

// ImportLegacy reconciles a table listing printed by the legacy CLI and
// returns the number of tracker records changed.
func (d *Dispatcher) ImportLegacy(text string) (int, error) {
	list, err := status.ParseLegacyListing(text)
	if err != nil {
		return 0, &Error{Op: "import", Err: err}
	}
	return d.tracker.Reconcile(list), nil
}

func (d *Dispatcher) list(ctx context.Context, op string, filter gateway.ListFilter) ([]gateway.DeploymentSummary, error) {
	var list []gateway.DeploymentSummary
	err := d.retry(ctx, op, func(ctx context.Context) error {
		var err error
		list, err = d.gw.ListDeployments(ctx, filter)
		return err
	})
	return list, err
}

// resolve returns id, or the latest tracked id when id is blank.
func (d *Dispatcher) resolve(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	latest, ok := d.tracker.Latest()
	if !ok {
		return "", ErrNoTargetDeployment
	}
	return latest.ID, nil
}

// schedulePoll runs one reconciliation after the poll delay. The poll is
// detached from ctx cancellation so it outlives the calling command.
func (d *Dispatcher) schedulePoll(ctx context.Context) {
	if d.pollDelay <= 0 {
		return
	}
	d.poller.TriggerAfter(context.WithoutCancel(ctx), d.pollDelay)
}

// finish records the outcome of op and wraps err.
func (d *Dispatcher) finish(ctx context.Context, op string, err error) error {
	if err == nil {
		d.metrics.RecordOperation(op, "success")
		return nil
	}

	wrapped := fail(ctx, op, err)
	result := "error"
	if ctx.Err() != nil {
		result = "cancelled"
	}
	d.metrics.RecordOperation(op, result)
	d.logger.Debug().Err(err).Str("operation", op).Msg("Operation failed")
	return wrapped
}
