// Package builder builds the application image locally with the Docker
// daemon before it is deployed.
package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/alvesdmateus/easydeploy/internal/descriptor"
	"github.com/alvesdmateus/easydeploy/internal/observability"
)

// ErrDockerfileNotFound is returned before contacting the daemon when the
// descriptor's Dockerfile does not exist.
var ErrDockerfileNotFound = errors.New("dockerfile not found")

// dockerAPI is the part of the Docker client the builder uses.
type dockerAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	Close() error
}

// DockerBuilder builds images through the local Docker daemon.
type DockerBuilder struct {
	client  dockerAPI
	out     io.Writer
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  zerolog.Logger
}

// Option configures a DockerBuilder.
type Option func(*DockerBuilder)

// WithOutput streams build output to w.
func WithOutput(w io.Writer) Option {
	return func(b *DockerBuilder) {
		b.out = w
	}
}

// WithMetrics records build counts and durations.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *DockerBuilder) {
		b.metrics = m
	}
}

// WithTracer overrides the process-wide tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(b *DockerBuilder) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *DockerBuilder) {
		b.logger = logger.With().Str("component", "builder").Logger()
	}
}

// NewDockerBuilder creates a builder using the environment's Docker
// settings (DOCKER_HOST and friends).
func NewDockerBuilder(opts ...Option) (*DockerBuilder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerBuilder(cli, opts...), nil
}

func newDockerBuilder(api dockerAPI, opts ...Option) *DockerBuilder {
	b := &DockerBuilder{
		client: api,
		out:    io.Discard,
		tracer: observability.GetGlobalTracer(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build builds the image for d from contextDir (the directory holding the
// descriptor) and returns the primary tag.
func (b *DockerBuilder) Build(ctx context.Context, d *descriptor.Descriptor, contextDir string) (image string, err error) {
	start := time.Now()

	ctx, span := b.tracer.StartSpan(ctx, "easydeploy.build")
	span.SetAttributes(observability.AttrDeploymentName.String(d.Name))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	dockerfile, buildDir := buildPaths(d, contextDir)
	if _, err := os.Stat(filepath.Join(buildDir, dockerfile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrDockerfileNotFound, filepath.Join(buildDir, dockerfile))
		}
		return "", fmt.Errorf("failed to stat Dockerfile: %w", err)
	}

	tags := Tags(d.ImageName(), buildDir)
	span.SetAttributes(observability.AttrBuildImage.String(tags[0]))
	logger := b.logger.With().Strs("tags", tags).Logger()
	logger.Info().Str("context", buildDir).Msg("Building Docker image")

	buildContext, err := createBuildContext(buildDir)
	if err != nil {
		b.metrics.RecordBuild("failure", time.Since(start))
		return "", fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	options := types.ImageBuildOptions{
		Tags:        tags,
		Dockerfile:  filepath.ToSlash(dockerfile),
		Remove:      true,
		ForceRemove: true,
		BuildArgs:   buildArgs(d),
		Labels: map[string]string{
			"io.easydeploy.app":      d.Name,
			"io.easydeploy.provider": d.Platform,
		},
	}

	resp, err := b.client.ImageBuild(ctx, buildContext, options)
	if err != nil {
		b.metrics.RecordBuild("failure", time.Since(start))
		return "", fmt.Errorf("docker build failed: %w", err)
	}
	defer resp.Body.Close()

	if err := b.streamBuildOutput(ctx, resp.Body); err != nil {
		b.metrics.RecordBuild("failure", time.Since(start))
		return "", err
	}

	duration := time.Since(start)
	b.metrics.RecordBuild("success", duration)
	logger.Info().Dur("duration", duration).Msg("Docker build completed")
	return tags[0], nil
}

// Close closes the Docker client connection
func (b *DockerBuilder) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func buildPaths(d *descriptor.Descriptor, contextDir string) (dockerfile, buildDir string) {
	dockerfile = descriptor.DefaultDockerfile
	buildDir = contextDir
	if d.Build != nil {
		if d.Build.Dockerfile != "" {
			dockerfile = d.Build.Dockerfile
		}
		if d.Build.Context != "" {
			buildDir = filepath.Join(contextDir, d.Build.Context)
		}
	}
	return dockerfile, buildDir
}

func buildArgs(d *descriptor.Descriptor) map[string]*string {
	if d.Build == nil || len(d.Build.Args) == 0 {
		return nil
	}
	args := make(map[string]*string, len(d.Build.Args))
	for k, v := range d.Build.Args.Map() {
		args[k] = &v
	}
	return args
}

// streamBuildOutput copies the daemon's JSON message stream to the output
// writer and returns the first build error it reports.
func (b *DockerBuilder) streamBuildOutput(ctx context.Context, reader io.Reader) error {
	decoder := json.NewDecoder(reader)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg struct {
			Stream      string `json:"stream"`
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}

		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode build output: %w", err)
		}

		if msg.Error != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.Error
			}
			return fmt.Errorf("build error: %s", detail)
		}

		if msg.Stream != "" {
			_, _ = io.WriteString(b.out, msg.Stream)
			b.logger.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("Build output")
		}
	}
}
