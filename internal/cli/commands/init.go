package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/analyzer"
	"github.com/alvesdmateus/easydeploy/internal/credentials"
	"github.com/alvesdmateus/easydeploy/internal/descriptor"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an easydeploy.yaml for the current directory",
	Long: `Writes a deployment descriptor with sensible defaults (aws, us-west-2, docker)
named after the current directory, then offers to store your API key.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringP("file", "f", "", "descriptor path (default from project.file)")
	initCmd.Flags().String("name", "", "application name (default is the directory name)")
	initCmd.Flags().String("provider", "aws", "cloud provider")
	initCmd.Flags().String("region", descriptor.DefaultRegion, "cloud region")
	initCmd.Flags().String("runtime", "docker", "application runtime")
	initCmd.Flags().Bool("force", false, "overwrite an existing descriptor without asking")
	initCmd.Flags().Bool("skip-login", false, "do not ask for an API key")
	initCmd.Flags().Bool("no-detect", false, "do not inspect the project for runtime and port")
	initCmd.Flags().Bool("dockerfile", false, "generate a Dockerfile when the project has none")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.Project.File
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		ok, err := confirm(cmd, fmt.Sprintf("%s already exists. Overwrite?", path))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		abs, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return err
		}
		name = filepath.Base(abs)
	}

	d := descriptor.Default(name)
	d.Platform, _ = cmd.Flags().GetString("provider")
	d.Region, _ = cmd.Flags().GetString("region")
	d.Runtime, _ = cmd.Flags().GetString("runtime")
	if noDetect, _ := cmd.Flags().GetBool("no-detect"); !noDetect {
		applyDetection(cmd, d, filepath.Dir(path))
	}
	if d.Runtime != "docker" {
		d.Build = nil
	}
	if gen, _ := cmd.Flags().GetBool("dockerfile"); gen && d.Runtime == "docker" {
		if err := generateDockerfile(cmd, filepath.Dir(path), d.Networking.Port); err != nil {
			return err
		}
	}

	if err := descriptor.Save(path, d); err != nil {
		return err
	}
	printSuccess(out, "Created %s for %s", path, d.Name)

	if skip, _ := cmd.Flags().GetBool("skip-login"); skip {
		return nil
	}
	store := credentials.NewStore(cfg.API.URL)
	if _, _, err := store.Lookup(); err == nil || !errors.Is(err, credentials.ErrNoCredential) {
		return nil
	}

	key, err := prompt(cmd, "API key (leave blank to skip): ")
	if err != nil || key == "" {
		fmt.Fprintln(out, "Run 'easydeploy login' later to store your API key.")
		return nil
	}
	src, err := store.Save(key)
	if err != nil {
		return err
	}
	printSuccess(out, "API key saved to %s", src)
	return nil
}

// applyDetection fills runtime and port from the project contents. An
// explicit --runtime flag is kept.
func applyDetection(cmd *cobra.Command, d *descriptor.Descriptor, dir string) {
	res, err := analyzer.New().Analyze(dir)
	if err != nil || !res.Detected() {
		return
	}

	if !cmd.Flags().Changed("runtime") {
		d.Runtime = res.Runtime()
	}
	if res.Port > 0 {
		d.Networking.Port = res.Port
	}

	detected := string(res.Language)
	if res.Framework != analyzer.FrameworkUnknown {
		detected += " (" + string(res.Framework) + ")"
	}
	if res.Language == analyzer.LanguageUnknown {
		detected = d.Runtime + " project"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Detected %s, port %d\n", detected, d.Networking.Port)
}

func generateDockerfile(cmd *cobra.Command, dir string, port int) error {
	res, err := analyzer.New().Analyze(dir)
	if err != nil {
		return err
	}
	res.Port = port

	path, err := analyzer.WriteDockerfile(dir, res)
	switch {
	case errors.Is(err, analyzer.ErrDockerfileExists):
		fmt.Fprintf(cmd.OutOrStdout(), "Keeping existing %s\n", path)
		return nil
	case err != nil:
		return err
	}
	printSuccess(cmd.OutOrStdout(), "Created %s", path)
	return nil
}
