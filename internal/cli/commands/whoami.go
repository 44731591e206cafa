package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the account behind the configured API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newSession(cmd, sessionOptions{requireKey: true})
		if err != nil {
			return err
		}
		defer rt.Close()

		info, err := rt.dispatcher.WhoAmI(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:    %s\n", info.Username)
		fmt.Fprintf(out, "User ID: %s\n", info.ID)
		if info.Email != "" {
			fmt.Fprintf(out, "Email:   %s\n", info.Email)
		}
		fmt.Fprintf(out, "API:     %s\n", rt.gateway.BaseURL())
		return nil
	},
}
