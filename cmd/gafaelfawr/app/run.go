package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gafaelfawr/gafaelfawr/pkg/authgate"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfapi"
	"github.com/gafaelfawr/gafaelfawr/pkg/gfconfig"
	"github.com/gafaelfawr/gafaelfawr/pkg/gflog"
	"github.com/gafaelfawr/gafaelfawr/pkg/oidcprovider"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the token service HTTP server",
	RunE:  runServe,
}

// defaultGracefulTimeout bounds how long "run" waits for in-flight
// requests to finish on shutdown, matching a Kubernetes pod's termination
// grace period.
const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	runCmd.Flags().String("address", ":8080", "address to listen on")
	_ = viper.BindPFlag("address", runCmd.Flags().Lookup("address"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	address, _ := cmd.Flags().GetString("address")

	cfg, err := loadConfig(settingsPath())
	if err != nil {
		return err
	}
	if cfg.SigningKey == nil {
		return fmt.Errorf("settings file has no signing_key_pem configured")
	}

	ctx := context.Background()
	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	clients := make([]oidcprovider.Client, 0, len(cfg.OIDCClients))
	for _, c := range cfg.OIDCClients {
		clients = append(clients, oidcprovider.Client{
			ID:                c.ClientID,
			Secret:            c.ClientSecret,
			RedirectURIPrefix: c.RedirectURIPrefix,
		})
	}
	oidc := oidcprovider.New(d.kv, clients, cfg.SigningKey, cfg.Issuer, cfg.IDTokenLifetime)
	gate := authgate.New(d.kv)
	server := gfapi.NewServer(d.svc, oidc, gate, cfg)
	router := gfapi.NewRouter(server)

	reloadCtx, cancelReload := context.WithCancel(context.Background())
	defer cancelReload()
	go gfconfig.WatchReload(reloadCtx, settingsPath(),
		func(*gfconfig.Config) {
			gflog.Warnw("settings file changed; restart to pick up the new settings")
		},
		func(err error) {
			gflog.Errorf("settings reload failed: %v", err)
		},
	)

	gflog.Infow("starting gafaelfawr", "address", address)

	httpServer := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			gflog.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	gflog.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	gflog.Infow("shutdown complete")
	return nil
}
