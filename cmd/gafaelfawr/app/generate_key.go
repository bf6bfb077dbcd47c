package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new RSA signing key and print its PEM encoding",
	RunE:  runGenerateKey,
}

func runGenerateKey(cmd *cobra.Command, _ []string) error {
	pemStr, err := gfconfig.GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("generating signing key: %w", err)
	}
	cmd.Print(pemStr)
	return nil
}
