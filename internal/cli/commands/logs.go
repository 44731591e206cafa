package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs [deployment-id]",
	Short: "Show deployment logs (defaults to the latest deployment)",
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
		logs, err := rt.dispatcher.Logs(cmd.Context(), id)
		if err != nil {
			return err
		}
		if strings.TrimSpace(logs) == "" {
			fmt.Fprintln(cmd.OutOrStdout(), newStyles(cmd.OutOrStdout()).muted.Render("No logs yet."))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(logs, "\n"))
		return nil
	},
}
