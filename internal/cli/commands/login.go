package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/easydeploy/internal/credentials"
	"github.com/alvesdmateus/easydeploy/internal/gateway"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store your API key",
	Args:  cobra.NoArgs,
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored API key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credentials.NewStore(cfg.API.URL).Delete(); err != nil {
			return err
		}
		printSuccess(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("api-key", "", "API key (prompted when omitted)")
	loginCmd.Flags().Bool("no-verify", false, "store the key without checking it")
}

func runLogin(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	key, _ := cmd.Flags().GetString("api-key")
	if key == "" {
		var err error
		key, err = prompt(cmd, "API key: ")
		if err != nil {
			return err
		}
	}
	if key == "" {
		return errors.New("an API key is required")
	}

	if noVerify, _ := cmd.Flags().GetBool("no-verify"); !noVerify {
		client, err := gateway.New(cfg.API.URL, key, gateway.WithTimeout(cfg.API.Timeout))
		if err != nil {
			return err
		}
		info, err := client.GetUserInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		fmt.Fprintf(out, "Authenticated as %s\n", info.Username)
	}

	src, err := credentials.NewStore(cfg.API.URL).Save(key)
	if err != nil {
		return err
	}
	printSuccess(out, "API key saved to %s (%s).", src, credentials.Mask(key))
	return nil
}
