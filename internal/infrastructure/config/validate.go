package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

func (c *Config) validate() error {
	db := c.Database
	switch {
	case db.MaxOpenConns <= 0:
		return errors.New("database.max_open_conns must be positive")
	case db.MaxIdleConns < 0:
		return errors.New("database.max_idle_conns cannot be negative")
	case db.MaxIdleConns > db.MaxOpenConns:
		return fmt.Errorf("database.max_idle_conns (%d) exceeds database.max_open_conns (%d)",
			db.MaxIdleConns, db.MaxOpenConns)
	}

	if c.Relay.MaxRetries < 1 {
		return errors.New("relay.max_retries must be at least 1")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0, 1], got %g", c.Telemetry.SamplingRatio)
	}

	if !slices.Contains([]string{"DAILY", "WEEKLY", "MONTHLY"}, strings.ToUpper(c.Settlement.PeriodLength)) {
		return fmt.Errorf("settlement.period_length must be DAILY, WEEKLY or MONTHLY, got %q", c.Settlement.PeriodLength)
	}
	if _, err := time.LoadLocation(c.Settlement.Timezone); err != nil {
		return fmt.Errorf("settlement.timezone: %w", err)
	}
	if c.Settlement.StatementExport && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required when settlement.statement_export is on")
	}

	if err := c.Notification.validate(); err != nil {
		return err
	}
	if c.App.IsProduction() {
		return c.validateProduction()
	}
	return nil
}

func (n NotificationConfig) validate() error {
	switch n.Driver {
	case "log":
		return nil
	case "sqs":
		if n.QueueURL == "" {
			return errors.New("notification.queue_url is required by the sqs driver")
		}
		return nil
	case "amqp":
		if n.AMQP.URL == "" {
			return errors.New("notification.amqp.url is required by the amqp driver")
		}
		return nil
	}
	return fmt.Errorf("notification.driver must be log, sqs or amqp, got %q", n.Driver)
}

// validateProduction rejects settings that are only acceptable on a laptop
func (c *Config) validateProduction() error {
	switch {
	case len(c.JWT.Secret) < 32:
		return errors.New("jwt.secret must be at least 32 characters in production")
	case c.Database.Password == "":
		return errors.New("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return errors.New("database.sslmode cannot be disable in production")
	case c.Relay.SigningSecret == "":
		return errors.New("relay.signing_secret is required in production")
	case slices.Contains(c.HTTP.CORSAllowOrigins, "*"):
		return errors.New("http.cors_allow_origins cannot contain * in production")
	case c.Telemetry.DBLogFullSQL:
		return errors.New("telemetry.db_log_full_sql must be off in production")
	}
	return nil
}
