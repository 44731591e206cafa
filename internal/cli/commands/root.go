package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alvesdmateus/easydeploy/internal/gateway"
	"github.com/alvesdmateus/easydeploy/pkg/config"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "easydeploy",
	Short: "easydeploy - deploy applications to the EasyDeploy platform",
	Long: `easydeploy submits applications described by an easydeploy.yaml file to the
EasyDeploy control plane and tracks their deployments.

Typical flow:
  easydeploy init → easydeploy deploy --wait → easydeploy status → easydeploy logs`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// cfg is loaded before every command runs.
var cfg *config.Config

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(rootCmd.ErrOrStderr(), err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version

	rootCmd.PersistentFlags().String("config", "", "config file (default is $XDG_CONFIG_HOME/easydeploy/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console or json")
	rootCmd.PersistentFlags().String("api-url", "", "control plane API base URL")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(redeployCmd)
	rootCmd.AddCommand(domainsCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(eventsCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	v := viper.New()
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("api.url", flags.Lookup("api-url"))
	if verbose, _ := flags.GetBool("verbose"); verbose {
		v.Set("log.level", "debug")
	}

	cfgFile, _ := flags.GetString("config")
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	initLogger(cmd, cfg.Log)
	return nil
}

func initLogger(cmd *cobra.Command, lc config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cmd.ErrOrStderr()
	if lc.Format == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

func printError(w io.Writer, err error) {
	st := newStyles(w)
	fmt.Fprintln(w, st.failure.Render("Error: "+err.Error()))
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, st.muted.Render("Hint: "+hint))
	}
}

// errorHint tells a refusal by the server apart from a server that never
// answered.
func errorHint(err error) string {
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) {
		return ""
	}
	if !apiErr.ResponseReceived() {
		return "the server did not respond; check the API URL and your network"
	}
	switch apiErr.Kind {
	case gateway.KindUnauthorized:
		return "the server rejected the API key; run 'easydeploy login'"
	case gateway.KindServerError:
		return "the server responded with an internal error; try again later"
	case gateway.KindUnexpectedShape:
		return "the server responded with something easydeploy does not understand; check the API URL"
	default:
		return "the server responded and refused the request"
	}
}
