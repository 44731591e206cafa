package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/notify"
	"github.com/alvesdmateus/easydeploy/internal/tracker"
)

var errNotifyDisabled = errors.New("deployment events need notify.redis_url (EASYDEPLOY_NOTIFY_REDIS_URL)")

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow deployment events published by easydeploy clients",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().Int("recent", 10, "print this many past events first")
	eventsCmd.Flags().Bool("no-follow", false, "exit after printing past events")
}

func runEvents(cmd *cobra.Command, args []string) error {
	if cfg.Notify.RedisURL == "" {
		return errNotifyDisabled
	}
	out := cmd.OutOrStdout()

	pub, err := notify.NewRedisPublisher(cfg.Notify.RedisURL, cfg.Notify.RedisPassword, cfg.Notify.RedisDB, cfg.Notify.Channel)
	if err != nil {
		return err
	}
	defer pub.Close()

	if n, _ := cmd.Flags().GetInt("recent"); n > 0 {
		past, err := pub.Recent(cmd.Context(), n)
		if err != nil {
			return err
		}
		for i := len(past) - 1; i >= 0; i-- {
			printEvent(out, past[i])
		}
	}
	if noFollow, _ := cmd.Flags().GetBool("no-follow"); noFollow {
		return nil
	}

	events, err := pub.Subscribe(cmd.Context())
	if err != nil {
		return err
	}
	for e := range events {
		printEvent(out, e)
	}
	return nil
}

func printEvent(w io.Writer, e tracker.Event) {
	st := newStyles(w)
	d := e.Deployment
	raw := d.RawStatus
	if raw == "" {
		raw = string(d.State)
	}

	line := fmt.Sprintf("%s  %-8s  %s  %s  %s",
		e.At.Local().Format("15:04:05"), e.Type, d.ID, orDash(d.Name), st.state(d.State).Render(raw))
	if e.Previous != nil && e.Previous.State != d.State {
		line += st.muted.Render(fmt.Sprintf("  (was %s)", e.Previous.State))
	}
	if d.URL != "" {
		line += "  " + d.URL
	}
	fmt.Fprintln(w, line)
}
