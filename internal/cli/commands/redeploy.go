package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var redeployCmd = &cobra.Command{
	Use:   "redeploy [deployment-id]",
	Short: "Redeploy an existing deployment (defaults to the latest deployment)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newSession(cmd, sessionOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		var id string
		if len(args) == 1 {
			id = args[0]
		}
		outcome, err := rt.dispatcher.Redeploy(cmd.Context(), id)
		if err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Redeployment submitted: %s", outcome.DeploymentID)
		fmt.Fprintf(cmd.OutOrStdout(), "Check progress with 'easydeploy status %s'\n", outcome.DeploymentID)
		return nil
	},
}
