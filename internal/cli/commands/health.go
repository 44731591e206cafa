package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the control plane is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newSession(cmd, sessionOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		res := rt.dispatcher.Health(cmd.Context())
		if !res.OK {
			return fmt.Errorf("control plane at %s is unhealthy: %s", rt.gateway.BaseURL(), res.Error)
		}
		printSuccess(cmd.OutOrStdout(), "Control plane at %s is healthy (%s).", rt.gateway.BaseURL(), res.Latency.Round(time.Millisecond))
		return nil
	},
}
