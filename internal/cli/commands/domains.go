package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "Manage custom domains",
}

var domainsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List custom domains",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newSession(cmd, sessionOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		domains, err := rt.dispatcher.ListDomains(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(domains) == 0 {
			fmt.Fprintln(out, newStyles(out).muted.Render("No custom domains."))
			return nil
		}
		for _, d := range domains {
			fmt.Fprintln(out, d)
		}
		return nil
	},
}

var domainsAddCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Add a custom domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newSession(cmd, sessionOptions{})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.dispatcher.AddDomain(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Domain %s added.", args[0])
		return nil
	},
}

func init() {
	domainsCmd.AddCommand(domainsListCmd)
	domainsCmd.AddCommand(domainsAddCmd)
}
