package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Settle modes for the capture step.
const (
	SettleModeFixed = "fixed"
	SettleModeIdle  = "idle"
)

// Config holds all configuration for the web3event application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	HTTPAddr    string `json:"http_addr"`
	OutputDir   string `json:"output_dir"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	CatalogPath string `json:"catalog_path,omitempty"`
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"`

	SettleDelay     time.Duration `json:"-"`
	SettleDelayStr  string        `json:"settle_delay"`
	SettleMode      string        `json:"settle_mode"`
	IdleQuiet       time.Duration `json:"-"`
	IdleQuietStr    string        `json:"idle_quiet"`
	PageDelay       time.Duration `json:"-"`
	PageDelayStr    string        `json:"page_delay"`
	FetchTimeout    time.Duration `json:"-"`
	FetchTimeoutStr string        `json:"fetch_timeout"`

	BrowserHeadless bool   `json:"browser_headless"`
	ChromePath      string `json:"chrome_path,omitempty"`

	DispatcherWorkers  int `json:"dispatcher_workers"`
	EventBusBufferSize int `json:"eventbus_buffer_size"`

	HTTPShutdownTimeout       time.Duration `json:"-"`
	HTTPShutdownTimeoutStr    string        `json:"http_shutdown_timeout"`
	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	// SweepCron empty disables scheduled sweeps.
	SweepCron       string        `json:"sweep_cron,omitempty"`
	SweepTimezone   string        `json:"sweep_timezone"`
	SweepProviders  []string      `json:"sweep_providers"`
	TickInterval    time.Duration `json:"-"`
	TickIntervalStr string        `json:"tick_interval"`

	ReconcileEnabled      bool          `json:"reconcile_enabled"`
	ReconcileInterval     time.Duration `json:"-"`
	ReconcileIntervalStr  string        `json:"reconcile_interval"`
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`
	ReconcileBatchSize    int           `json:"reconcile_batch_size"`
	ReconcileRetention    time.Duration `json:"-"`
	ReconcileRetentionStr string        `json:"reconcile_retention"`

	WebhookSecret     string        `json:"webhook_secret,omitempty"`
	WebhookTimeout    time.Duration `json:"-"`
	WebhookTimeoutStr string        `json:"webhook_timeout"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		OutputDir:                 os.Getenv("OUTPUT_DIR"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		CatalogPath:               os.Getenv("CATALOG_PATH"),
		LogLevel:                  os.Getenv("LOG_LEVEL"),
		LogFormat:                 os.Getenv("LOG_FORMAT"),
		SettleDelayStr:            os.Getenv("SETTLE_DELAY"),
		SettleMode:                os.Getenv("SETTLE_MODE"),
		IdleQuietStr:              os.Getenv("IDLE_QUIET"),
		PageDelayStr:              os.Getenv("PAGE_DELAY"),
		FetchTimeoutStr:           os.Getenv("FETCH_TIMEOUT"),
		BrowserHeadless:           os.Getenv("BROWSER_HEADLESS") != "false",
		ChromePath:                os.Getenv("CHROME_PATH"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DispatcherDrainTimeoutStr: os.Getenv("DISPATCHER_DRAIN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		SweepCron:                 os.Getenv("SWEEP_CRON"),
		SweepTimezone:             os.Getenv("SWEEP_TIMEZONE"),
		TickIntervalStr:           os.Getenv("TICK_INTERVAL"),
		ReconcileEnabled:          os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:      os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:     os.Getenv("RECONCILE_THRESHOLD"),
		ReconcileRetentionStr:     os.Getenv("RECONCILE_RETENTION"),
		WebhookSecret:             os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeoutStr:         os.Getenv("WEBHOOK_TIMEOUT"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
	}

	cfg.DispatcherWorkers = positiveInt("DISPATCHER_WORKERS", 1)
	cfg.EventBusBufferSize = positiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.ReconcileBatchSize = positiveInt("RECONCILE_BATCH_SIZE", 100)

	cfg.CircuitBreakerThreshold = 5
	if s := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Warn().Str("value", s).Msg("config: invalid CIRCUIT_BREAKER_THRESHOLD, using default 5")
		}
	}

	if s := os.Getenv("SWEEP_PROVIDERS"); s != "" {
		cfg.SweepProviders = splitList(s)
	} else {
		cfg.SweepProviders = []string{"eventbrite"}
	}

	// Support PORT as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8000"
		}
	}
	setDefault(&cfg.OutputDir, "event_data")
	setDefault(&cfg.LogLevel, "info")
	setDefault(&cfg.LogFormat, "json")
	setDefault(&cfg.SettleDelayStr, "10s")
	setDefault(&cfg.SettleMode, SettleModeFixed)
	setDefault(&cfg.IdleQuietStr, "2s")
	setDefault(&cfg.PageDelayStr, "2s")
	setDefault(&cfg.FetchTimeoutStr, "30s")
	setDefault(&cfg.HTTPShutdownTimeoutStr, "10s")
	setDefault(&cfg.DispatcherDrainTimeoutStr, "30s")
	setDefault(&cfg.MetricsPath, "/metrics")
	setDefault(&cfg.MetricsPort, "9090")
	setDefault(&cfg.SweepTimezone, "UTC")
	setDefault(&cfg.TickIntervalStr, "30s")
	setDefault(&cfg.ReconcileIntervalStr, "5m")
	setDefault(&cfg.ReconcileThresholdStr, "2h")
	setDefault(&cfg.ReconcileRetentionStr, "24h")
	setDefault(&cfg.WebhookTimeoutStr, "10s")
	setDefault(&cfg.CircuitBreakerCooldownStr, "2m")

	// Parse durations; validation is handled separately by Validate().
	for _, d := range cfg.durations() {
		if v, err := time.ParseDuration(*d.raw); err == nil {
			*d.dst = v
		}
	}

	return cfg
}

type durationField struct {
	env string
	raw *string
	dst *time.Duration
}

// durations lists every duration setting with its environment variable.
func (c *Config) durations() []durationField {
	return []durationField{
		{"SETTLE_DELAY", &c.SettleDelayStr, &c.SettleDelay},
		{"IDLE_QUIET", &c.IdleQuietStr, &c.IdleQuiet},
		{"PAGE_DELAY", &c.PageDelayStr, &c.PageDelay},
		{"FETCH_TIMEOUT", &c.FetchTimeoutStr, &c.FetchTimeout},
		{"HTTP_SHUTDOWN_TIMEOUT", &c.HTTPShutdownTimeoutStr, &c.HTTPShutdownTimeout},
		{"DISPATCHER_DRAIN_TIMEOUT", &c.DispatcherDrainTimeoutStr, &c.DispatcherDrainTimeout},
		{"TICK_INTERVAL", &c.TickIntervalStr, &c.TickInterval},
		{"RECONCILE_INTERVAL", &c.ReconcileIntervalStr, &c.ReconcileInterval},
		{"RECONCILE_THRESHOLD", &c.ReconcileThresholdStr, &c.ReconcileThreshold},
		{"RECONCILE_RETENTION", &c.ReconcileRetentionStr, &c.ReconcileRetention},
		{"WEBHOOK_TIMEOUT", &c.WebhookTimeoutStr, &c.WebhookTimeout},
		{"CIRCUIT_BREAKER_COOLDOWN", &c.CircuitBreakerCooldownStr, &c.CircuitBreakerCooldown},
	}
}

func setDefault(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

func positiveInt(env string, def int) int {
	s := os.Getenv(env)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Warn().Str("value", s).Int("default", def).Msgf("config: invalid %s (must be a positive integer), using default", env)
		return def
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := c
	masked.WebhookSecret = maskSecret(c.WebhookSecret)
	masked.RedisAddr = maskRedis(c.RedisAddr)
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value entirely.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// maskRedis hides credentials embedded in a redis URL, keeping the host.
func maskRedis(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return addr
	}
	scheme := ""
	if i := strings.Index(addr, "://"); i >= 0 && i < at {
		scheme = addr[:i+3]
	}
	return scheme + "***@" + addr[at+1:]
}
