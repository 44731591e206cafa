package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/dispatcher"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll deployments and print the list whenever it changes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "poll interval (default from watch.interval)")
	watchCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	watchCmd.Flags().Int("iterations", 0, "stop after this many polls (0 runs until interrupted)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = cfg.Watch.Interval
	}
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = cfg.Watch.MetricsAddr
	}
	iterations, _ := cmd.Flags().GetInt("iterations")

	rt, err := newSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if addr != "" {
		stop := serveMetrics(rt, addr)
		defer stop()
	}

	var (
		mu       sync.Mutex
		polls    int
		lastSeen string
	)
	done := make(chan struct{})

	poll := func(ctx context.Context) error {
		err := rt.dispatcher.Refresh(ctx)

		mu.Lock()
		defer mu.Unlock()
		polls++
		if err != nil {
			printWarning(out, "%s poll failed: %v", time.Now().Format("15:04:05"), err)
		} else if deployments := rt.tracker.Snapshot(); fingerprint(deployments) != lastSeen {
			lastSeen = fingerprint(deployments)
			fmt.Fprintf(out, "\n%s\n", time.Now().Format("15:04:05"))
			printDeployments(out, deployments)
		}
		if iterations > 0 && polls == iterations {
			close(done)
		}
		return err
	}

	poller := dispatcher.NewPoller(poll, interval,
		dispatcher.WithPollerLogger(rt.logger),
		dispatcher.WithPollerMetrics(rt.metrics),
	)
	poller.PollNow(ctx)
	poller.Start(ctx)
	defer poller.Stop()

	select {
	case <-ctx.Done():
	case <-done:
	}
	return nil
}

// fingerprint identifies the visible content of a deployment list.
func fingerprint(deployments []tracker.Deployment) string {
	var b strings.Builder
	for _, d := range deployments {
		fmt.Fprintf(&b, "%s|%s|%s|%s\n", d.ID, d.Name, d.RawStatus, d.URL)
	}
	return b.String()
}

// serveMetrics exposes the session's registry and returns a shutdown func.
func serveMetrics(rt *session, addr string) func() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", rt.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		rt.logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("Metrics server forced to shutdown")
		}
	}
}
