package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
	"github.com/gafaelfawr/gafaelfawr/pkg/k8ssecrets"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

var updateServiceTokensCmd = &cobra.Command{
	Use:   "update-service-tokens",
	Short: "Mint fresh service tokens and materialize them into Kubernetes secrets",
	RunE:  runUpdateServiceTokens,
}

func runUpdateServiceTokens(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(settingsPath())
	if err != nil {
		return err
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	writer, err := k8ssecrets.NewClientsetWriter()
	if err != nil {
		return fmt.Errorf("building kubernetes client: %w", err)
	}

	auth := tokenservice.AuthInfo{Username: "<service-token-controller>", Scopes: []string{tokenservice.AdminScope}}

	for _, spec := range cfg.ServiceTokens {
		tok, err := d.svc.CreateFromAdminRequest(ctx, tokenservice.AdminCreateRequest{
			Owner:  spec.Owner,
			Type:   token.TypeService,
			Scopes: spec.Scopes,
		}, auth, "update-service-tokens")
		if err != nil {
			return fmt.Errorf("minting service token for %s: %w", spec.Owner, err)
		}

		if err := writer.Write(ctx, k8ssecrets.ServiceTokenSpec{
			Namespace: spec.Namespace,
			Name:      spec.SecretName,
			DataKey:   spec.DataKey,
			WireToken: tok.String(),
		}); err != nil {
			return fmt.Errorf("writing secret %s/%s: %w", spec.Namespace, spec.SecretName, err)
		}
		gflog.Infow("materialized service token", "owner", spec.Owner, "namespace", spec.Namespace, "secret", spec.SecretName)
	}

	return nil
}
