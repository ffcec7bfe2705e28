package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/application"
	"github.com/phumblot-gs/gs-stream-digest-sub000/config"
	"github.com/phumblot-gs/gs-stream-digest-sub000/database"
	"github.com/phumblot-gs/gs-stream-digest-sub000/domain/interfaces"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure"
	"github.com/phumblot-gs/gs-stream-digest-sub000/infrastructure/observability"
	"github.com/phumblot-gs/gs-stream-digest-sub000/repository"

	log "github.com/sirupsen/logrus"
)

// App holds the wired dependencies of the digest service
type App struct {
	Config     *config.Config
	DB         *database.DB
	Digests    *repository.DigestRepository
	Runs       *repository.RunRepository
	Publisher  interfaces.EventPublisher
	Processor  *application.DigestProcessor
	Scheduler  *application.Scheduler
	Control    *application.DigestControl
	Subscriber interfaces.EventSubscriber // nil without NATS

	natsClient *infrastructure.NATSClient
}

// NewApp connects to every backing service and wires the pipeline
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		log.WithError(err).Warn("Failed to initialize metrics, continuing without them")
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	app := &App{Config: cfg, DB: db}

	app.Digests = repository.NewDigestRepository(db.Pool)
	app.Runs = repository.NewRunRepository(db.Pool)
	templates := repository.NewTemplateRepository(db.Pool)
	deliveryLogs := repository.NewDeliveryLogRepository(db.Pool)

	app.Publisher, err = app.connectNATS(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	var archive interfaces.SnapshotArchive
	if cfg.SnapshotArchiveEnabled() {
		minioArchive, err := infrastructure.NewMinIOSnapshotArchive(infrastructure.SnapshotArchiveConfig{
			Endpoint:  cfg.SnapshotEndpoint,
			AccessKey: cfg.SnapshotAccessKey,
			SecretKey: cfg.SnapshotSecretKey,
			Bucket:    cfg.SnapshotBucket,
			Region:    cfg.SnapshotRegion,
			UseSSL:    cfg.SnapshotUseSSL,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to configure snapshot archive: %w", err)
		}
		if err := minioArchive.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("Snapshot bucket is not ready, archiving may fail")
		}
		archive = minioArchive
		log.WithField("bucket", cfg.SnapshotBucket).Info("Snapshot archive enabled")
	}

	timeout := cfg.GetHTTPTimeout()
	eventBus := infrastructure.NewEventBusClient(cfg.EventBusURL, cfg.EventBusToken, timeout)
	provider := infrastructure.NewResendProvider(cfg.ResendAPIKey, cfg.ResendBaseURL, timeout)
	renderer := infrastructure.NewGoTemplateRenderer(time.UTC)
	sender := application.NewMessageSender(renderer, provider, deliveryLogs, cfg.EmailFrom)

	app.Processor = application.NewDigestProcessor(
		app.Digests,
		app.Runs,
		templates,
		eventBus,
		sender,
		app.Publisher,
		archive,
		application.ProcessorConfig{
			Lookback:    cfg.GetLookback(),
			Environment: cfg.Environment,
		},
	)
	app.Scheduler = application.NewScheduler(app.Digests, app.Processor)
	// Commands outside serve have no live timers; serving schedulers resync from the event
	app.Control = application.NewDigestControl(app.Digests, app.Publisher, nil)

	return app, nil
}

// connectNATS returns the NATS publisher, or a no-op one when NATS is not configured
func (a *App) connectNATS(ctx context.Context) (interfaces.EventPublisher, error) {
	if !a.Config.NATSEnabled() {
		log.Info("NATS_SERVERS not set, domain events will not be published")
		return infrastructure.NewNoopEventPublisher(), nil
	}

	client := infrastructure.NewNATSClient(a.Config.NATSServers)
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.natsClient = client

	mapper := infrastructure.NewEventSubjectMapper()
	if err := infrastructure.EnsureDomainEventStream(client, mapper); err != nil {
		return nil, err
	}

	a.Subscriber = infrastructure.NewNATSEventSubscriber(client, mapper)
	return infrastructure.NewNATSEventPublisher(client, mapper), nil
}

// NATSHealthy reports whether the NATS connection is up. Always true without NATS.
func (a *App) NATSHealthy() bool {
	return a.natsClient == nil || a.natsClient.IsConnected()
}

// Close releases every connection. Safe on a partially built App.
func (a *App) Close() {
	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			log.WithError(err).Warn("Failed to close NATS client")
		}
	}

	if a.DB != nil {
		log.Info("Closing database connection...")
		a.DB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.ShutdownGlobalMetrics(ctx); err != nil {
		log.WithError(err).Warn("Failed to flush metrics")
	}
}
