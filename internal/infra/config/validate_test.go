package config

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
		{"empty shell", func(c *Config) { c.Runner.Shell = " " }, "runner.shell"},
		{"zero timeout", func(c *Config) { c.Runner.Timeout = 0 }, "runner.timeout"},
		{"zero output limit", func(c *Config) { c.Runner.OutputLimit = 0 }, "runner.output_limit"},
		{"zero max detached", func(c *Config) { c.Runner.MaxDetached = 0 }, "runner.max_detached"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "scheduler.timezone"},
		{"zero task timeout", func(c *Config) { c.Scheduler.TaskTimeout = 0 }, "scheduler.task_timeout"},
		{"bad orphan policy", func(c *Config) { c.Schedules.OrphanPolicy = "shred" }, "orphan_policy"},
		{"bad addr", func(c *Config) { c.Gateway.Addr = "8090" }, "gateway.addr"},
		{"http url", func(c *Config) { c.Gateway.URL = "http://localhost:8090/ws" }, "ws or wss"},
		{"url without host", func(c *Config) { c.Gateway.URL = "ws:///ws" }, "no host"},
		{"token without name", func(c *Config) {
			c.Gateway.Auth.Tokens = []TokenConfig{{Token: "x"}}
		}, "name must not be empty"},
		{"empty token", func(c *Config) {
			c.Gateway.Auth.Tokens = []TokenConfig{{Name: "cli"}}
		}, "token is empty"},
		{"duplicate token name", func(c *Config) {
			c.Gateway.Auth.Tokens = []TokenConfig{{Name: "cli", Token: "a"}, {Name: "cli", Token: "b"}}
		}, "duplicate token name"},
		{"negative rate", func(c *Config) { c.Gateway.RateLimit.PerSecond = -1 }, "per_second"},
		{"rate without burst", func(c *Config) { c.Gateway.RateLimit.Burst = 0 }, "burst"},
		{"negative connect limit", func(c *Config) { c.Gateway.ConnectLimit.PerMinute = -1 }, "connect_limit.per_minute"},
		{"connect limit without burst", func(c *Config) { c.Gateway.ConnectLimit.Burst = 0 }, "connect_limit.burst"},
		{"zero breaker failures", func(c *Config) { c.Gateway.Breaker.MaxFailures = 0 }, "max_failures"},
		{"zero breaker timeout", func(c *Config) { c.Gateway.Breaker.Timeout = 0 }, "breaker.timeout"},
		{"zero request timeout", func(c *Config) { c.Gateway.RequestTimeout = 0 }, "request_timeout"},
		{"bad log level", func(c *Config) { c.Logger.Level = "verbose" }, "logger.level"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"bad exporter", func(c *Config) {
			c.Tracer.Enabled = true
			c.Tracer.Exporter = "jaeger"
		}, "tracer.exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Runner.Timeout = 0
	cfg.Logger.Level = "loud"
	cfg.Gateway.RequestTimeout = 0

	var ve *ValidationError
	if !errors.As(Validate(cfg), &ve) {
		t.Fatal("expected *ValidationError")
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}

func TestValidateDisabledRateLimitNeedsNoBurst(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.RateLimit = RateLimitConfig{}
	if err := Validate(cfg); err != nil {
		t.Errorf("disabled rate limit should validate: %v", err)
	}
}

func TestValidationErrorFormat(t *testing.T) {
	ve := &ValidationError{}
	if ve.HasErrors() {
		t.Fatal("new ValidationError should be empty")
	}
	ve.Add("a %d", 1)
	ve.Add("b")
	if got := ve.Error(); got != "config validation failed:\n  - a 1\n  - b" {
		t.Errorf("Error() = %q", got)
	}
}
