// Package app provides the entry point for the gafaelfawr command-line
// application, in the shape of the teacher's cmd/regup/app.NewRootCmd: a
// package-level *cobra.Command wired up with its subcommands and a
// constructor the main package calls.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:               "gafaelfawr",
	DisableAutoGenTag: true,
	Short:             "Gafaelfawr authentication and token service",
	Long: `gafaelfawr runs and administers the token subsystem behind an
authentication gateway: an HTTP API for issuing, listing, modifying, and
revoking tokens, a minimal OIDC provider for federating sessions to the
services it fronts, and the maintenance jobs (token sweep, history
truncation, service-token materialization) that keep it healthy.`,
}

func init() {
	rootCmd.PersistentFlags().String("settings", "", "path to the settings YAML file (overrides GAFAELFAWR_SETTINGS_PATH)")
	_ = viper.BindPFlag("settings_path", rootCmd.PersistentFlags().Lookup("settings"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(generateKeyCmd)
	rootCmd.AddCommand(generateTokenCmd)
	rootCmd.AddCommand(updateServiceTokensCmd)
	rootCmd.AddCommand(kubernetesControllerCmd)
	rootCmd.AddCommand(runCmd)
}

// NewRootCmd returns the gafaelfawr root command.
func NewRootCmd() *cobra.Command {
	return rootCmd
}

func settingsPath() string {
	return viper.GetString("settings_path")
}
