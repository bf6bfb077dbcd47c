package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
	"github.com/gafaelfawr/gafaelfawr/pkg/store/db"
	"github.com/gafaelfawr/gafaelfawr/pkg/tokenservice"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema and seed initial admins",
	RunE:  runInit,
}

func runInit(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(settingsPath())
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	d, err := buildDeps(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	for _, username := range cfg.InitialAdmins {
		if err := d.svc.AddAdmin(ctx, bootstrapAuth(), username); err != nil {
			return fmt.Errorf("seeding admin %q: %w", username, err)
		}
		gflog.Infow("seeded initial admin", "username", username)
	}

	gflog.Infow("schema initialized")
	return nil
}

// bootstrapAuth is the synthetic AuthInfo init uses to call through the
// service's normal authorization checks while seeding admins.
func bootstrapAuth() tokenservice.AuthInfo {
	return tokenservice.AuthInfo{Username: "<init>", Scopes: []string{tokenservice.AdminScope}}
}
