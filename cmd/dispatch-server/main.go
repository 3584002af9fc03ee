// cmd/dispatch-server serves the HTTP Surface (spec.md §6): job
// lifecycle, time-tracking, batch dispatch, and customer ETA tracking
// routes backed by dispatch/web.
package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"time"

	"go.fieldcore.build/dispatch/auth"
	"go.fieldcore.build/dispatch/config"
	"go.fieldcore.build/dispatch/db"
	"go.fieldcore.build/dispatch/routing"
	"go.fieldcore.build/dispatch/web"
	"go.fieldcore.build/go/common"
	"go.fieldcore.build/go/sklog"
)

const (
	bearerTokenTTL = 24 * time.Hour
	etaTokenTTL    = 2 * time.Hour
)

var flags config.ServerFlags

func main() {
	fs := flags.Flagset("dispatch-server")
	fs.Parse(os.Args[1:])

	common.InitWithMust(
		"dispatch-server",
		common.PrometheusOpt(&flags.PromPort),
		common.FlagSetOpt(fs),
	)

	if flags.Hang {
		sklog.Info("Hanging")
		select {}
	}

	var cfg config.Common
	if err := config.LoadFromJSON5(flags.ConfigPath, &cfg); err != nil {
		sklog.Fatalf("Reading config: %s", err)
	}
	cfg.Local = cfg.Local || flags.Local
	sklog.Infof("Loaded config %#v", cfg)

	ctx := context.Background()
	pool := db.MustInitSQLDatabase(ctx, cfg, flags.Local)

	issuer := mustTokenIssuer(cfg)
	etaSigner := mustETASigner(cfg)
	routingClient := mustRoutingClient(cfg)

	srv := web.New(web.Config{
		Pool:                 pool,
		Issuer:               issuer,
		ETA:                  etaSigner,
		Routing:              routingClient,
		IsLocal:              cfg.Local,
		MaxAssignmentsPerRun: cfg.MaxAssignmentsPerDispatchRun,
	})

	sklog.Infof("Serving on %s", flags.HealthzPort)
	sklog.Fatal(http.ListenAndServe(flags.HealthzPort, srv.Router()))
}

func mustTokenIssuer(cfg config.Common) *auth.TokenIssuer {
	key, err := os.ReadFile(cfg.JWTSigningKeyPath)
	if err != nil {
		sklog.Fatalf("reading jwt_signing_key_path %s: %s", cfg.JWTSigningKeyPath, err)
	}
	return auth.NewTokenIssuer(bytes.TrimSpace(key), bearerTokenTTL)
}

func mustETASigner(cfg config.Common) *auth.ETASigner {
	if cfg.ETASigningKeyPath == "" {
		sklog.Fatalf("eta_signing_key_path is required")
	}
	raw, err := os.ReadFile(cfg.ETASigningKeyPath)
	if err != nil {
		sklog.Fatalf("reading eta_signing_key_path %s: %s", cfg.ETASigningKeyPath, err)
	}
	parts := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(parts) != 2 {
		sklog.Fatalf("eta_signing_key_path must contain exactly two lines: hash key, then block key")
	}
	return auth.NewETASigner(parts[0], parts[1], etaTokenTTL)
}

func mustRoutingClient(cfg config.Common) routing.Client {
	var apiKey string
	if cfg.RoutingProviderAPIKeyPath != "" {
		raw, err := os.ReadFile(cfg.RoutingProviderAPIKeyPath)
		if err != nil {
			sklog.Fatalf("reading routing_provider_api_key_path %s: %s", cfg.RoutingProviderAPIKeyPath, err)
		}
		apiKey = string(bytes.TrimSpace(raw))
	}
	return routing.NewClient(cfg.RoutingProviderBaseURL, apiKey, http.DefaultClient)
}
