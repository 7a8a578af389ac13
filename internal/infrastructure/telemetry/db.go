package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultSlowQueryThreshold = 200 * time.Millisecond

// DBConfig configures GORM instrumentation
type DBConfig struct {
	// Tracing creates a client span per statement via otelgorm
	Tracing bool
	// LogFullSQL keeps bound variables in span statements. Development only.
	LogFullSQL bool
	// SlowQueryThreshold marks spans and counts slow statements; zero means 200ms
	SlowQueryThreshold time.Duration
	DBName             string
}

// DBInstrumentation is a GORM plugin that annotates statement spans and
// records query metrics. Pool statistics are observed at collection time.
type DBInstrumentation struct {
	cfg    DBConfig
	logger *zap.Logger

	queries  *Counter
	duration *Histogram
	slow     *Counter
	pool     metric.Registration
}

// InstrumentDB installs tracing and metrics on db. Metrics are skipped when
// mp is nil or disabled; Stop releases the pool observer.
func InstrumentDB(db *gorm.DB, cfg DBConfig, mp *MeterProvider, logger *zap.Logger) (*DBInstrumentation, error) {
	if cfg.SlowQueryThreshold <= 0 {
		cfg.SlowQueryThreshold = defaultSlowQueryThreshold
	}
	inst := &DBInstrumentation{cfg: cfg, logger: logger}

	if cfg.Tracing {
		opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
		if !cfg.LogFullSQL {
			opts = append(opts, otelgorm.WithoutQueryVariables())
		}
		if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
			return nil, err
		}
	}

	if mp != nil && mp.IsEnabled() {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := inst.initMetrics(mp.Meter("db.client"), sqlDB); err != nil {
			return nil, err
		}
	}

	if err := db.Use(inst); err != nil {
		return nil, err
	}
	logger.Info("Database instrumentation installed",
		zap.Bool("tracing", cfg.Tracing),
		zap.Bool("metrics", inst.queries != nil),
		zap.Duration("slow_query_threshold", cfg.SlowQueryThreshold),
	)
	return inst, nil
}

func (d *DBInstrumentation) initMetrics(meter metric.Meter, sqlDB *sql.DB) error {
	var err error
	if d.queries, err = NewCounter(meter, "db_query_total", "Database statements by operation", "{query}"); err != nil {
		return err
	}
	if d.slow, err = NewCounter(meter, "db_slow_query_total", "Statements slower than the slow query threshold", "{query}"); err != nil {
		return err
	}
	if d.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Database statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return err
	}

	conns, err := meter.Int64ObservableGauge("db_pool_connections",
		metric.WithDescription("Pool connections by state"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	maxConns, err := meter.Int64ObservableGauge("db_pool_connections_max",
		metric.WithDescription("Maximum open connections"), metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	d.pool, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := sqlDB.Stats()
		o.ObserveInt64(maxConns, int64(st.MaxOpenConnections))
		o.ObserveInt64(conns, int64(st.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(conns, int64(st.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(conns, int64(st.OpenConnections), metric.WithAttributes(AttrDBState.String("open")))
		return nil
	}, conns, maxConns)
	return err
}

// Stop unregisters the pool observer. Safe on a nil receiver.
func (d *DBInstrumentation) Stop() {
	if d == nil || d.pool == nil {
		return
	}
	if err := d.pool.Unregister(); err != nil {
		d.logger.Warn("Failed to unregister pool metrics", zap.Error(err))
	}
	d.pool = nil
}

// Name implements gorm.Plugin
func (d *DBInstrumentation) Name() string { return "marketrelay:db_instrumentation" }

type startKey struct{}

// Initialize implements gorm.Plugin
func (d *DBInstrumentation) Initialize(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		ctx := tx.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		tx.Statement.Context = context.WithValue(ctx, startKey{}, time.Now())
	}
	after := func(op string) func(*gorm.DB) {
		return func(tx *gorm.DB) { d.observe(tx, op) }
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("marketrelay:before_create", before),
		cb.Create().After("gorm:create").Register("marketrelay:after_create", after("INSERT")),
		cb.Query().Before("gorm:query").Register("marketrelay:before_query", before),
		cb.Query().After("gorm:query").Register("marketrelay:after_query", after("SELECT")),
		cb.Update().Before("gorm:update").Register("marketrelay:before_update", before),
		cb.Update().After("gorm:update").Register("marketrelay:after_update", after("UPDATE")),
		cb.Delete().Before("gorm:delete").Register("marketrelay:before_delete", before),
		cb.Delete().After("gorm:delete").Register("marketrelay:after_delete", after("DELETE")),
		cb.Row().Before("gorm:row").Register("marketrelay:before_row", before),
		cb.Row().After("gorm:row").Register("marketrelay:after_row", after("")),
		cb.Raw().Before("gorm:raw").Register("marketrelay:before_raw", before),
		cb.Raw().After("gorm:raw").Register("marketrelay:after_raw", after("")),
	)
}

func (d *DBInstrumentation) observe(tx *gorm.DB, op string) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	if op == "" {
		op = operationOf(tx.Statement.SQL.String())
	}

	var elapsed time.Duration
	if start, ok := ctx.Value(startKey{}).(time.Time); ok {
		elapsed = time.Since(start)
	}
	slow := elapsed > d.cfg.SlowQueryThreshold
	table := tx.Statement.Table
	if table == "" {
		table = "unknown"
	}

	if d.queries != nil {
		opAttr := AttrDBOperation.String(op)
		d.queries.Inc(ctx, opAttr)
		d.duration.RecordDuration(ctx, elapsed, opAttr)
		if slow {
			d.slow.Inc(ctx, opAttr, AttrDBTable.String(table))
		}
	}

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.SetAttributes(
		attribute.String("db.sql.table", table),
		attribute.Int64("db.rows_affected", tx.Statement.RowsAffected),
	)
	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.RecordError(tx.Error)
		span.SetStatus(codes.Error, tx.Error.Error())
	}
	if slow {
		span.SetAttributes(attribute.Bool("db.slow_query", true))
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.Int64("duration_ms", elapsed.Milliseconds()),
			attribute.Int64("threshold_ms", d.cfg.SlowQueryThreshold.Milliseconds()),
		))
	}
}

// operationOf classifies raw SQL by its leading keyword
func operationOf(stmt string) string {
	stmt = strings.ToUpper(strings.TrimSpace(stmt))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.HasPrefix(stmt, op) {
			return op
		}
	}
	if strings.HasPrefix(stmt, "WITH") {
		return "SELECT"
	}
	return "OTHER"
}
