package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/admin"
	"github.com/phumblot-gs/gs-stream-digest-sub000/application"
	"github.com/phumblot-gs/gs-stream-digest-sub000/config"

	log "github.com/sirupsen/logrus"
)

// Run starts the scheduler and the admin API and blocks until ctx is cancelled
func Run(ctx context.Context, cfg *config.Config) error {
	log.Info("Starting digest service...")

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Control = application.NewDigestControl(app.Digests, app.Publisher, app.Scheduler)

	if err := app.Scheduler.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	if app.Subscriber != nil {
		if err := application.RegisterApplicationSubscriptions(app.Subscriber, app.Scheduler); err != nil {
			app.Scheduler.Stop()
			return fmt.Errorf("failed to register subscriptions: %w", err)
		}
	}

	var adminServer *admin.Server
	if cfg.AdminAddr != "" {
		adminServer = admin.NewServer(cfg.AdminAddr, cfg.AdminToken, app.Scheduler, app.Control, app.Runs)
		if cfg.NATSEnabled() {
			adminServer.AddHealthCheck("nats", app.NATSHealthy)
		}
		adminServer.Start()
	}

	log.Infof("Digest service is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	log.Info("Shutting down digest service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if adminServer != nil {
		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Error shutting down admin API")
		}
	}

	// Waits for running digests
	app.Scheduler.Stop()

	log.Info("Shutdown completed")
	return nil
}
