package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gafaelfawr/gafaelfawr/pkg/token"
)

var generateTokenCmd = &cobra.Command{
	Use:   "generate-token",
	Short: "Generate a new bootstrap token secret and print it",
	RunE:  runGenerateToken,
}

func runGenerateToken(cmd *cobra.Command, _ []string) error {
	buf := make([]byte, token.SecretLength)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating bootstrap token: %w", err)
	}
	cmd.Println(base64.RawURLEncoding.EncodeToString(buf))
	return nil
}
