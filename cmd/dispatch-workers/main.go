// cmd/dispatch-workers runs the Background Workers (spec.md §4.8):
// geocoding, recurring-schedule materialization, membership renewal,
// review-request dispatch, and escalation advancement, each on its own
// configured period.
package main

import (
	"context"
	"os"

	"go.fieldcore.build/dispatch/config"
	"go.fieldcore.build/dispatch/db"
	"go.fieldcore.build/dispatch/workers"
	"go.fieldcore.build/go/common"
	"go.fieldcore.build/go/sklog"
)

var flags config.ServerFlags

func main() {
	fs := flags.Flagset("dispatch-workers")
	var runOnce bool
	fs.BoolVar(&runOnce, "once", false, "Run every task's tick exactly once, then exit. Used for cron-triggered deployments and tests.")
	fs.Parse(os.Args[1:])

	common.InitWithMust(
		"dispatch-workers",
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

	geocoder := workers.NewCachedGeocoder(workers.NewHTTPGeocoder(cfg.GeocodingProviderBaseURL, "", nil))
	w := workers.New(pool, cfg.PeriodicTasks, geocoder, workers.LoggingSMSSender{}, workers.LoggingEmailSender{})

	if runOnce {
		if err := w.RunOnce(ctx); err != nil {
			sklog.Fatalf("run-once pass failed: %s", err)
		}
		return
	}
	w.Run(ctx)
}
