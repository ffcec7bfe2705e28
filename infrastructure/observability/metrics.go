package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phumblot-gs/gs-stream-digest-sub000/config"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider records digest pipeline metrics. A nil or disabled provider
// accepts every call and records nothing.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	runs          metric.Int64Counter
	runDuration   metric.Float64Histogram
	runsSkipped   metric.Int64Counter
	events        metric.Int64Counter
	emails        metric.Int64Counter
	scheduledJobs metric.Int64UpDownCounter
	natsMessages  metric.Int64Counter
	queryDuration metric.Float64Histogram
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the exporter selected by OTEL_EXPORTER_TYPE
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	exporter, err := mp.newExporter(ctx)
	if err != nil {
		return err
	}
	if exporter == nil {
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	interval := time.Duration(mp.config.OTelExportIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = time.Minute
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp.meterProvider)
	mp.meter = mp.meterProvider.Meter("gs-stream-digest")

	if err := mp.createInstruments(); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.WithField("exporter", mp.config.OTelExporterType).Info("Metrics provider initialized")
	return nil
}

// newExporter returns nil when export is disabled
func (mp *MetricsProvider) newExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		return exporter, nil
	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
}

func (mp *MetricsProvider) createInstruments() error {
	b := instrumentBuilder{meter: mp.meter}

	mp.runs = b.counter(RunsTotal, "Finished digest runs by type and status")
	mp.runDuration = b.histogram(RunDuration, "Duration of digest runs", 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300)
	mp.runsSkipped = b.counter(RunsSkipped, "Runs skipped because the digest was inactive or paused")
	mp.events = b.counter(EventsTotal, "Events fetched from the bus and events kept after filtering")
	mp.emails = b.counter(EmailsTotal, "Digest emails by outcome")
	mp.scheduledJobs = b.upDownCounter(SchedulerJobs, "Digests holding a live timer")
	mp.natsMessages = b.counter(NATSMessagesTotal, "Domain events published to or received from NATS")
	mp.queryDuration = b.histogram(DatabaseQueryDuration, "Duration of database queries",
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0)

	return b.err
}

// instrumentBuilder keeps the first instrument creation error
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, description string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit("1"))
	b.keep(name, err)
	return c
}

func (b *instrumentBuilder) upDownCounter(name, description string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit("1"))
	b.keep(name, err)
	return c
}

func (b *instrumentBuilder) histogram(name, description string, bounds ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(bounds...),
	)
	b.keep(name, err)
	return h
}

func (b *instrumentBuilder) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("%s: %w", name, err)
	}
}

// Shutdown flushes pending metrics
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordRun records a finished run with its terminal status
func (mp *MetricsProvider) RecordRun(runType, status string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelType, runType),
		attribute.String(LabelStatus, status),
	)
	mp.runs.Add(context.Background(), 1, attrs)
	mp.runDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordRunSkipped records a trigger on an inactive or paused digest
func (mp *MetricsProvider) RecordRunSkipped(runType string) {
	if !mp.isEnabled() {
		return
	}
	mp.runsSkipped.Add(context.Background(), 1, metric.WithAttributes(attribute.String(LabelType, runType)))
}

// RecordEvents records how many events were fetched and how many survived filtering
func (mp *MetricsProvider) RecordEvents(fetched, kept int) {
	if !mp.isEnabled() {
		return
	}
	mp.events.Add(context.Background(), int64(fetched), metric.WithAttributes(attribute.String(LabelStage, EventStageFetched)))
	mp.events.Add(context.Background(), int64(kept), metric.WithAttributes(attribute.String(LabelStage, EventStageKept)))
}

// RecordEmail records one delivery outcome
func (mp *MetricsProvider) RecordEmail(status string) {
	if !mp.isEnabled() {
		return
	}
	mp.emails.Add(context.Background(), 1, metric.WithAttributes(attribute.String(LabelStatus, status)))
}

// UpdateScheduledJobs moves the live timer count by delta
func (mp *MetricsProvider) UpdateScheduledJobs(delta int64) {
	if !mp.isEnabled() {
		return
	}
	mp.scheduledJobs.Add(context.Background(), delta)
}

// RecordNATSMessage records a domain event crossing NATS in the given direction
func (mp *MetricsProvider) RecordNATSMessage(direction, eventType string) {
	if !mp.isEnabled() {
		return
	}
	mp.natsMessages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(LabelDirection, direction),
		attribute.String(LabelEventType, eventType),
	))
}

// MeasureDatabaseQuery starts timing a query and returns the function that records it:
//
//	defer observability.GetMetrics().MeasureDatabaseQuery("digest", "GetByID")()
func (mp *MetricsProvider) MeasureDatabaseQuery(repository, method string) func() {
	start := time.Now()
	return func() {
		if !mp.isEnabled() {
			return
		}
		mp.queryDuration.Record(context.Background(), time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String(LabelRepository, repository),
			attribute.String(LabelMethod, method),
		))
	}
}

func (mp *MetricsProvider) isEnabled() bool {
	if mp == nil {
		return false
	}
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the process-wide provider once
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider, nil until initialized
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics flushes the global provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
