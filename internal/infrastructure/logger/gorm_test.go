package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func sqlFunc(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestGormLogger_Trace(t *testing.T) {
	base, logs := observed()
	gl := NewGormLogger(base, gormlogger.Info, WithSlowThreshold(50*time.Millisecond))

	ctx := WithContext(context.Background(), base)
	ctx, _ = WithRequestID(ctx, base, "req-1")
	ctx, _ = WithTenantID(ctx, base, "tenant-1")

	t.Run("fast statement logs at debug with request context", func(t *testing.T) {
		logs.TakeAll()
		gl.Trace(ctx, time.Now(), sqlFunc("SELECT * FROM order_relays", 3), nil)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
		assert.Equal(t, "gorm", entries[0].LoggerName)
		fields := entries[0].ContextMap()
		assert.Equal(t, "SELECT * FROM order_relays", fields["sql"])
		assert.EqualValues(t, 3, fields["rows"])
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, "tenant-1", fields["tenant_id"])
	})

	t.Run("slow statement warns", func(t *testing.T) {
		logs.TakeAll()
		gl.Trace(ctx, time.Now().Add(-time.Second), sqlFunc("UPDATE commissions SET status = 'CONFIRMED'", 40), nil)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "Slow SQL", entries[0].Message)
	})

	t.Run("errors log at error", func(t *testing.T) {
		logs.TakeAll()
		gl.Trace(ctx, time.Now(), sqlFunc("INSERT INTO settlement_batches", 0), errors.New("duplicate key"))

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "duplicate key", entries[0].ContextMap()["error"])
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		logs.TakeAll()
		gl.Trace(ctx, time.Now(), sqlFunc("SELECT * FROM channel_accounts", 0), gormlogger.ErrRecordNotFound)

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	})
}

func TestGormLogger_Levels(t *testing.T) {
	base, logs := observed()

	silent := NewGormLogger(base, gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), sqlFunc("SELECT 1", 1), errors.New("boom"))
	silent.Error(context.Background(), "migration %s failed", "0003")
	assert.Zero(t, logs.Len())

	warn := silent.LogMode(gormlogger.Warn)
	warn.Trace(context.Background(), time.Now(), sqlFunc("SELECT 1", 1), nil)
	assert.Zero(t, logs.Len(), "fast statements are not logged at warn")

	warn.Warn(context.Background(), "pool at %d%%", 90)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pool at 90%", logs.All()[0].Message)

	// LogMode returns a copy
	silent.Warn(context.Background(), "ignored")
	assert.Equal(t, 1, logs.Len())
}

func TestGormLogger_SlowThresholdDisabled(t *testing.T) {
	base, logs := observed()
	gl := NewGormLogger(base, gormlogger.Warn, WithSlowThreshold(0))

	gl.Trace(context.Background(), time.Now().Add(-time.Hour), sqlFunc("SELECT pg_sleep(3600)", 1), nil)
	assert.Zero(t, logs.Len())
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("chatty"))
}
