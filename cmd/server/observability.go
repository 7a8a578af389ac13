package main

import (
	"context"

	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/marketrelay/backend/internal/infrastructure/logger"
	"github.com/marketrelay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// observability bundles the OpenTelemetry providers and the Pyroscope
// profiler. Every member is a no-op when its feature is disabled.
type observability struct {
	logs     *telemetry.LoggerProvider
	traces   *telemetry.TracerProvider
	metrics  *telemetry.MeterProvider
	profiler *telemetry.Profiler
}

// startObservability brings the providers up and returns base bridged to
// the OTLP log exporter.
func startObservability(ctx context.Context, cfg *config.Config, base *zap.Logger) (*observability, *zap.Logger, error) {
	tc := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    appVersion,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ExportInterval:    cfg.Telemetry.MetricsExportInterval,
	}

	o := &observability{}
	var err error
	if o.logs, err = telemetry.NewLoggerProvider(ctx, tc, base); err != nil {
		return nil, nil, err
	}
	log := o.logs.Bridge(base, logger.ParseLevel(cfg.Log.Level))

	if o.traces, err = telemetry.NewTracerProvider(ctx, tc, log); err != nil {
		return nil, nil, err
	}
	if o.metrics, err = telemetry.NewMeterProvider(ctx, tc, log); err != nil {
		return nil, nil, err
	}
	o.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.PyroscopeAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	if o.profiler.IsEnabled() {
		if err := o.traces.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to link spans to profiles", zap.Error(err))
		}
	}
	return o, log, nil
}

// shutdown flushes in reverse start order
func (o *observability) shutdown(ctx context.Context, log *zap.Logger) {
	if err := o.profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := o.metrics.Shutdown(ctx); err != nil {
		log.Error("Error flushing metrics", zap.Error(err))
	}
	if err := o.traces.Shutdown(ctx); err != nil {
		log.Error("Error flushing traces", zap.Error(err))
	}
	_ = o.logs.Shutdown(ctx)
}
