package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/dispatcher"
	"github.com/alvesdmateus/easydeploy/internal/gateway"
	"github.com/alvesdmateus/easydeploy/internal/status"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the application described by easydeploy.yaml",
	Args:  cobra.NoArgs,
	RunE:  runDeploy,
}

func init() {
	deployCmd.Flags().StringP("file", "f", "", "descriptor path (default from project.file)")
	deployCmd.Flags().Bool("build", false, "build the Docker image locally before deploying")
	deployCmd.Flags().Bool("wait", false, "wait for the deployment to finish")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.Project.File
	}
	build, _ := cmd.Flags().GetBool("build")
	wait, _ := cmd.Flags().GetBool("wait")

	rt, err := newSession(cmd, sessionOptions{
		requireKey: true,
		build:      build,
		progress: func(d gateway.DeploymentDetail) {
			fmt.Fprintf(out, "  status: %s\n", orDash(d.RawStatus))
		},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	fmt.Fprintf(out, "Deploying from %s...\n", path)
	outcome, err := rt.dispatcher.Deploy(cmd.Context(), path, dispatcher.DeployOptions{Build: build})
	if err != nil {
		return err
	}
	if outcome.Image != "" {
		fmt.Fprintf(out, "Built image %s\n", outcome.Image)
	}
	printSuccess(out, "Deployment submitted: %s", outcome.DeploymentID)

	if !wait {
		fmt.Fprintf(out, "Check progress with 'easydeploy status %s'\n", outcome.DeploymentID)
		return nil
	}

	fmt.Fprintln(out, "Waiting for deployment to finish...")
	detail, err := rt.dispatcher.WaitForCompletion(cmd.Context(), outcome.DeploymentID, cfg.Deploy.WaitInterval, cfg.Deploy.WaitPolls)
	if err != nil {
		return err
	}
	return reportOutcome(cmd, detail)
}

// reportOutcome prints the final state of a waited-for deployment. A failed
// deployment is an error so the exit code reflects it.
func reportOutcome(cmd *cobra.Command, detail gateway.DeploymentDetail) error {
	out := cmd.OutOrStdout()
	switch detail.State {
	case status.Completed:
		printSuccess(out, "Deployment %s completed.", detail.ID)
		if detail.URL != "" {
			fmt.Fprintf(out, "Your application is available at %s\n", detail.URL)
		}
		return nil
	case status.Failed:
		msg := detail.Error
		if msg == "" {
			msg = orDash(detail.Message)
		}
		return fmt.Errorf("deployment %s failed: %s", detail.ID, msg)
	default:
		printWarning(out, "Deployment %s is still in progress.", detail.ID)
		fmt.Fprintf(out, "Check progress with 'easydeploy status %s'\n", detail.ID)
		return nil
	}
}
