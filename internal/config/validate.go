package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/smyja/web3event/internal/cron"
	"github.com/smyja/web3event/internal/domain"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Every duration must parse and be positive. RECONCILE_RETENTION may be
	// zero to disable pruning.
	for _, d := range cfg.durations() {
		if *d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		switch {
		case err != nil:
			add(d.env, "invalid duration: %v", err)
		case v < 0, v == 0 && d.env != "RECONCILE_RETENTION":
			add(d.env, "must be positive")
		}
	}

	if cfg.SettleMode != SettleModeFixed && cfg.SettleMode != SettleModeIdle {
		add("SETTLE_MODE", "must be '%s' or '%s', got %q", SettleModeFixed, SettleModeIdle, cfg.SettleMode)
	}
	if cfg.SettleMode == SettleModeIdle && cfg.IdleQuiet > 0 && cfg.SettleDelay > 0 && cfg.IdleQuiet >= cfg.SettleDelay {
		add("IDLE_QUIET", "must be shorter than SETTLE_DELAY (%s)", cfg.SettleDelayStr)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		add("LOG_LEVEL", "unknown level %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		add("LOG_FORMAT", "must be 'json' or 'console', got %q", cfg.LogFormat)
	}

	if cfg.MetricsEnabled {
		if port, err := strconv.Atoi(cfg.MetricsPort); err != nil || port <= 0 || port > 65535 {
			add("METRICS_PORT", "invalid port %q", cfg.MetricsPort)
		}
		if !strings.HasPrefix(cfg.MetricsPath, "/") {
			add("METRICS_PATH", "must start with '/'")
		}
	}

	if cfg.SweepCron != "" {
		if _, err := cron.NewParser().Parse(cfg.SweepCron, cfg.SweepTimezone); err != nil {
			add("SWEEP_CRON", "%v", err)
		}
		if len(cfg.SweepProviders) == 0 {
			add("SWEEP_PROVIDERS", "at least one provider required")
		}
	}
	for _, p := range cfg.SweepProviders {
		if !domain.Provider(p).Valid() {
			add("SWEEP_PROVIDERS", "unknown provider %q", p)
		}
	}

	if cfg.CatalogPath != "" {
		if _, err := LoadCatalog(cfg.CatalogPath); err != nil {
			add("CATALOG_PATH", "%v", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
