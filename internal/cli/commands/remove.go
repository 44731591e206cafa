package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/dispatcher"
)

var removeCmd = &cobra.Command{
	Use:     "remove [deployment-id]",
	Aliases: []string{"rm"},
	Short:   "Remove a deployment (defaults to the latest deployment)",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runRemove,
}

func init() {
	removeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func runRemove(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	var id string
	if len(args) == 1 {
		id = args[0]
	}
	yes, _ := cmd.Flags().GetBool("yes")

	target, err := rt.dispatcher.Remove(cmd.Context(), id, yes)
	if errors.Is(err, dispatcher.ErrNotConfirmed) {
		ok, perr := confirm(cmd, fmt.Sprintf("Remove deployment %s?", target))
		if perr != nil {
			return perr
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		_, err = rt.dispatcher.Remove(cmd.Context(), target, true)
	}
	if err != nil {
		return err
	}

	printSuccess(cmd.OutOrStdout(), "Deployment %s removed.", target)
	return nil
}
