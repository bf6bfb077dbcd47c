package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
	"github.com/gafaelfawr/gafaelfawr/pkg/k8ssecrets"
	"github.com/gafaelfawr/gafaelfawr/pkg/token"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

var kubernetesControllerCmd = &cobra.Command{
	Use:   "kubernetes-controller",
	Short: "Run the service-token materialization loop until interrupted",
	RunE:  runKubernetesController,
}

// controllerInterval is how often the watch loop re-materializes every
// configured service token.
const controllerInterval = 30 * time.Minute

func init() {
	kubernetesControllerCmd.Flags().Duration("interval", controllerInterval, "interval between materialization passes")
}

func runKubernetesController(cmd *cobra.Command, _ []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	gflog.Infow("kubernetes controller started", "interval", interval.String())
	if err := materializeAll(ctx, d, writer, auth, cfg); err != nil {
		gflog.Errorf("materialization pass failed: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := materializeAll(ctx, d, writer, auth, cfg); err != nil {
				gflog.Errorf("materialization pass failed: %v", err)
			}
		case <-quit:
			gflog.Infow("kubernetes controller shutting down")
			return nil
		}
	}
}

func materializeAll(ctx context.Context, d *deps, writer *k8ssecrets.ClientsetWriter, auth tokenservice.AuthInfo, cfg *gfconfig.Config) error {
	for _, spec := range cfg.ServiceTokens {
		tok, err := d.svc.CreateFromAdminRequest(ctx, tokenservice.AdminCreateRequest{
			Owner:  spec.Owner,
			Type:   token.TypeService,
			Scopes: spec.Scopes,
		}, auth, "kubernetes-controller")
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
	}
	return nil
}
