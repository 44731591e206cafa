package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/dispatcher"
)

var statusCmd = &cobra.Command{
	Use:   "status [deployment-id]",
	Short: "Show one deployment or list deployments",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().String("app", "", "only list deployments of this application")
	statusCmd.Flags().Int("limit", 0, "maximum number of deployments to list")
	statusCmd.Flags().String("from-file", "", "import a table printed by an older CLI ('-' for stdin)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	rt, err := newSession(cmd, sessionOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if from, _ := cmd.Flags().GetString("from-file"); from != "" {
		return importListing(cmd, rt, from)
	}

	q := dispatcher.StatusQuery{}
	if len(args) == 1 {
		q.ID = args[0]
	}
	q.AppName, _ = cmd.Flags().GetString("app")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	res, err := rt.dispatcher.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	if res.Detail != nil {
		printDetail(out, *res.Detail)
		return nil
	}
	printDeployments(out, res.Deployments)
	return nil
}

func importListing(cmd *cobra.Command, rt *session, from string) error {
	var (
		data []byte
		err  error
	)
	if from == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(from)
	}
	if err != nil {
		return fmt.Errorf("failed to read listing: %w", err)
	}

	changed, err := rt.dispatcher.ImportLegacy(string(data))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d deployment(s).\n", changed)
	printDeployments(cmd.OutOrStdout(), rt.tracker.Snapshot())
	return nil
}
