package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateStorage(cfg, ve)
	validateRunner(cfg, ve)
	validateScheduler(cfg, ve)
	validateGateway(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateStorage(cfg *Config, ve *ValidationError) {
	if cfg.DataDir == "" {
		ve.Add("data_dir must not be empty")
	}
}

func validateRunner(cfg *Config, ve *ValidationError) {
	r := cfg.Runner
	if strings.TrimSpace(r.Shell) == "" {
		ve.Add("runner.shell must not be empty")
	}
	if r.Timeout <= 0 {
		ve.Add("runner.timeout must be > 0")
	}
	if r.OutputLimit <= 0 {
		ve.Add("runner.output_limit must be > 0")
	}
	if r.MaxDetached <= 0 {
		ve.Add("runner.max_detached must be > 0")
	}
}

var validOrphanPolicies = map[string]bool{"": true, "cascade": true, "keep": true}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if _, err := cfg.Location(); err != nil {
		ve.Add("scheduler.timezone %q is invalid: %v", cfg.Scheduler.Timezone, err)
	}
	if cfg.Scheduler.TaskTimeout <= 0 {
		ve.Add("scheduler.task_timeout must be > 0")
	}
	if !validOrphanPolicies[cfg.Schedules.OrphanPolicy] {
		ve.Add("schedules.orphan_policy %q is invalid (want: cascade, keep)", cfg.Schedules.OrphanPolicy)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	g := cfg.Gateway
	if g.Addr != "" {
		if _, _, err := net.SplitHostPort(g.Addr); err != nil {
			ve.Add("gateway.addr %q is invalid: %v", g.Addr, err)
		}
	}
	if g.URL != "" {
		u, err := url.Parse(g.URL)
		switch {
		case err != nil:
			ve.Add("gateway.url %q is invalid: %v", g.URL, err)
		case u.Scheme != "ws" && u.Scheme != "wss":
			ve.Add("gateway.url %q must use ws or wss", g.URL)
		case u.Host == "":
			ve.Add("gateway.url %q has no host", g.URL)
		}
	}

	seen := make(map[string]bool)
	for i, t := range g.Auth.Tokens {
		if t.Name == "" {
			ve.Add("gateway.auth.tokens[%d].name must not be empty", i)
		}
		if t.Token == "" {
			ve.Add("gateway.auth.tokens[%d] (%s): token is empty (set via ORDITO_GATEWAY_TOKENS)", i, t.Name)
		}
		if t.Name != "" && seen[t.Name] {
			ve.Add("gateway.auth.tokens[%d]: duplicate token name %q", i, t.Name)
		}
		seen[t.Name] = true
	}

	if g.RateLimit.PerSecond < 0 {
		ve.Add("gateway.rate_limit.per_second must be >= 0")
	}
	if g.RateLimit.PerSecond > 0 && g.RateLimit.Burst <= 0 {
		ve.Add("gateway.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	if g.ConnectLimit.PerMinute < 0 {
		ve.Add("gateway.connect_limit.per_minute must be >= 0")
	}
	if g.ConnectLimit.PerMinute > 0 && g.ConnectLimit.Burst <= 0 {
		ve.Add("gateway.connect_limit.burst must be > 0 when the limit is enabled")
	}
	if g.Breaker.MaxFailures == 0 {
		ve.Add("gateway.breaker.max_failures must be > 0")
	}
	if g.Breaker.Timeout <= 0 {
		ve.Add("gateway.breaker.timeout must be > 0")
	}
	if g.RequestTimeout <= 0 {
		ve.Add("gateway.request_timeout must be > 0")
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"": true, "noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
