package config

import (
	"time"

	"github.com/spf13/viper"
)

// defaults lists every key. Keys without a meaningful default are present
// with their zero value so AutomaticEnv can still override them on Unmarshal.
var defaults = map[string]any{
	"app.name": "marketrelay",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":                 "localhost",
	"database.port":                 5432,
	"database.user":                 "postgres",
	"database.password":             "",
	"database.dbname":               "marketrelay",
	"database.sslmode":              "disable",
	"database.max_open_conns":       25,
	"database.max_idle_conns":       5,
	"database.conn_max_lifetime":    time.Hour,
	"database.conn_max_idle_time":   30 * time.Minute,
	"database.slow_query_threshold": 200 * time.Millisecond,
	"database.auto_migrate":         false,

	"redis.enabled":  false,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"jwt.secret": "",
	"jwt.issuer": "marketrelay",

	"log.level":  "info",
	"log.format": "console",
	"log.output": "stdout",

	"event.idempotency_ttl":      72 * time.Hour,
	"event.outbox_batch_size":    100,
	"event.outbox_poll_interval": 5 * time.Second,
	"event.outbox_retry_backoff": 10 * time.Second,
	"event.outbox_claim_lease":   5 * time.Minute,
	"event.outbox_retention":     7 * 24 * time.Hour,

	"http.read_timeout":        15 * time.Second,
	"http.write_timeout":       15 * time.Second,
	"http.idle_timeout":        time.Minute,
	"http.max_header_bytes":    1 << 20,
	"http.max_body_size":       int64(10 << 20),
	"http.request_timeout":     30 * time.Second,
	"http.rate_limit_enabled":  false,
	"http.rate_limit_requests": 100,
	"http.rate_limit_window":   time.Minute,
	// no origins: cross-origin requests are refused
	"http.cors_allow_origins": []string{},
	"http.cors_allow_methods": []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
	"http.cors_allow_headers": []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"},
	"http.trusted_proxies":    []string{},

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "marketrelay",
	"telemetry.insecure":                false,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.metrics_export_interval": time.Minute,
	"telemetry.profiling_enabled":       false,
	"telemetry.pyroscope_address":       "",

	"channel.poll_enabled":        false,
	"channel.poll_interval":       5 * time.Minute,
	"channel.poll_workers":        4,
	"channel.poll_timeout":        2 * time.Minute,
	"channel.poll_retries":        3,
	"channel.poll_retry_delay":    10 * time.Second,
	"channel.page_size":           50,
	"channel.taobao.enabled":      false,
	"channel.taobao.gateway_url":  "https://eco.taobao.com/router/rest",
	"channel.taobao.timeout":      30 * time.Second,
	"channel.shopify.enabled":     false,
	"channel.shopify.api_version": "2024-10",
	"channel.shopify.timeout":     30 * time.Second,

	"relay.dispatch_enabled":    false,
	"relay.dispatch_interval":   30 * time.Second,
	"relay.dispatch_batch_size": 50,
	"relay.max_retries":         5,
	"relay.retry_backoff":       30 * time.Second,
	"relay.supplier_base_url":   "",
	"relay.supplier_timeout":    10 * time.Second,
	"relay.signing_secret":      "",
	"relay.dispatch_lease":      2 * time.Minute,

	"commission.default_policy_id":   "default",
	"commission.default_hold_window": 14 * 24 * time.Hour,
	"commission.sweep_enabled":       false,
	"commission.sweep_interval":      10 * time.Minute,
	"commission.sweep_batch_size":    200,

	"settlement.close_enabled":    false,
	"settlement.close_cron":       "0 3 * * 1", // Mondays 03:00
	"settlement.period_length":    "WEEKLY",
	"settlement.timezone":         "UTC",
	"settlement.default_currency": "CNY",
	"settlement.statement_export": false,

	"notification.driver":        "log",
	"notification.queue_url":     "",
	"notification.region":        "",
	"notification.amqp.url":      "",
	"notification.amqp.exchange": "marketrelay.notifications",

	"storage.bucket":            "",
	"storage.region":            "",
	"storage.endpoint":          "",
	"storage.access_key_id":     "",
	"storage.secret_access_key": "",
	"storage.use_path_style":    false,
	"storage.prefix":            "statements",
	"storage.url_expiry":        15 * time.Minute,
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}
