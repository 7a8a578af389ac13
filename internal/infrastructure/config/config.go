// Package config loads marketrelay settings from config.toml and MR_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// MR_DATABASE_PASSWORD for database.password
const EnvPrefix = "MR"

type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Event        EventConfig        `mapstructure:"event"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Channel      ChannelConfig      `mapstructure:"channel"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Commission   CommissionConfig   `mapstructure:"commission"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Notification NotificationConfig `mapstructure:"notification"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port string `mapstructure:"port"`
}

// IsProduction reports whether the stricter production checks apply
func (a AppConfig) IsProduction() bool { return a.Env == "production" }

type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	DBName             string        `mapstructure:"dbname"`
	SSLMode            string        `mapstructure:"sslmode"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `mapstructure:"conn_max_idle_time"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	// AutoMigrate applies the embedded schema at server start
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN renders a postgres URL; credentials are escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + strconv.Itoa(d.Port),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) Addr() string {
	return r.Host + ":" + strconv.Itoa(r.Port)
}

// JWTConfig verifies operator tokens. Issuing them is another service's job.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type EventConfig struct {
	// IdempotencyTTL is how long a handled event id is remembered
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// Outbox redelivers relay events whose handlers failed
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxRetryBackoff time.Duration `mapstructure:"outbox_retry_backoff"`
	OutboxClaimLease   time.Duration `mapstructure:"outbox_claim_lease"`
	OutboxRetention    time.Duration `mapstructure:"outbox_retention"`
}

type HTTPConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxBodySize    int64         `mapstructure:"max_body_size"`
	// RequestTimeout bounds each request including upstream channel calls
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	CORSAllowOrigins  []string      `mapstructure:"cors_allow_origins"`
	CORSAllowMethods  []string      `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders  []string      `mapstructure:"cors_allow_headers"`
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`
}

type TelemetryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"` // OTLP gRPC, host:port
	SamplingRatio     float64 `mapstructure:"sampling_ratio"`
	ServiceName       string  `mapstructure:"service_name"`
	Insecure          bool    `mapstructure:"insecure"`

	DBTraceEnabled bool `mapstructure:"db_trace_enabled"`
	DBLogFullSQL   bool `mapstructure:"db_log_full_sql"`

	MetricsExportInterval time.Duration `mapstructure:"metrics_export_interval"`

	ProfilingEnabled bool   `mapstructure:"profiling_enabled"`
	PyroscopeAddress string `mapstructure:"pyroscope_address"`
}

type ChannelConfig struct {
	PollEnabled  bool          `mapstructure:"poll_enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollWorkers  int           `mapstructure:"poll_workers"`
	// PollTimeout bounds a single account poll
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	PollRetries    int           `mapstructure:"poll_retries"`
	PollRetryDelay time.Duration `mapstructure:"poll_retry_delay"`
	PageSize       int           `mapstructure:"page_size"`
	Taobao         TaobaoConfig  `mapstructure:"taobao"`
	Shopify        ShopifyConfig `mapstructure:"shopify"`
}

type TaobaoConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	GatewayURL string        `mapstructure:"gateway_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type ShopifyConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RelayConfig struct {
	DispatchEnabled   bool          `mapstructure:"dispatch_enabled"`
	DispatchInterval  time.Duration `mapstructure:"dispatch_interval"`
	DispatchBatchSize int           `mapstructure:"dispatch_batch_size"`
	MaxRetries        int           `mapstructure:"max_retries"`
	// RetryBackoff doubles after each failed attempt
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	SupplierBaseURL string        `mapstructure:"supplier_base_url"`
	SupplierTimeout time.Duration `mapstructure:"supplier_timeout"`
	SigningSecret   string        `mapstructure:"signing_secret"`
	// DispatchLease holds a relay for one supplier call; keep it above SupplierTimeout
	DispatchLease time.Duration `mapstructure:"dispatch_lease"`
}

type CommissionConfig struct {
	DefaultPolicyID   string         `mapstructure:"default_policy_id"`
	DefaultHoldWindow time.Duration  `mapstructure:"default_hold_window"`
	SweepEnabled      bool           `mapstructure:"sweep_enabled"`
	SweepInterval     time.Duration  `mapstructure:"sweep_interval"`
	SweepBatchSize    int            `mapstructure:"sweep_batch_size"`
	Policies          []PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig is one commission policy. Amounts and rates are decimal
// strings so no precision is lost on the way in.
type PolicyConfig struct {
	ID            string        `mapstructure:"id"`
	Type          string        `mapstructure:"type"`
	Rate          string        `mapstructure:"rate"`
	FixedAmount   string        `mapstructure:"fixed_amount"`
	Tiers         []TierConfig  `mapstructure:"tiers"`
	HoldWindow    time.Duration `mapstructure:"hold_window"`
	EffectiveFrom string        `mapstructure:"effective_from"` // RFC3339, empty means unbounded
	EffectiveTo   string        `mapstructure:"effective_to"`
}

type TierConfig struct {
	MinAmount string `mapstructure:"min_amount"`
	Rate      string `mapstructure:"rate"`
}

type SettlementConfig struct {
	CloseEnabled    bool   `mapstructure:"close_enabled"`
	CloseCron       string `mapstructure:"close_cron"`
	PeriodLength    string `mapstructure:"period_length"` // DAILY, WEEKLY or MONTHLY
	Timezone        string `mapstructure:"timezone"`
	DefaultCurrency string `mapstructure:"default_currency"`
	// DeductionRates maps a settlement type to its deduction rate
	DeductionRates  map[string]string `mapstructure:"deduction_rates"`
	StatementExport bool              `mapstructure:"statement_export"`
}

type NotificationConfig struct {
	Driver   string     `mapstructure:"driver"` // log, sqs or amqp
	QueueURL string     `mapstructure:"queue_url"`
	Region   string     `mapstructure:"region"`
	AMQP     AMQPConfig `mapstructure:"amqp"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// StorageConfig points at the S3 bucket holding settlement statements
type StorageConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"` // S3-compatible servers only
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	Prefix          string        `mapstructure:"prefix"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// Load reads ./config.toml or /app/config.toml when present, then applies
// MR_* environment overrides on top of the built-in defaults. MR_CONFIG_FILE
// names a different file, which must then exist.
func Load() (*Config, error) {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return LoadFile(path)
	}
	return load(viper.New())
}

// LoadFile is Load with an explicit config file
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/app")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillPolicies()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillPolicies seeds a flat-rate policy when none is configured and gives
// every policy without a hold window the default one
func (c *Config) fillPolicies() {
	cc := &c.Commission
	if len(cc.Policies) == 0 {
		cc.Policies = []PolicyConfig{{ID: cc.DefaultPolicyID, Type: "FLAT_RATE", Rate: "0.05"}}
	}
	for i := range cc.Policies {
		if cc.Policies[i].HoldWindow <= 0 {
			cc.Policies[i].HoldWindow = cc.DefaultHoldWindow
		}
	}
	if c.Settlement.DeductionRates == nil {
		c.Settlement.DeductionRates = map[string]string{}
	}
}
