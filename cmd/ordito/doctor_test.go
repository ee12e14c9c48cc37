package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ordito/internal/infra/config"
)

func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0o600)
}

func TestCheckConfigFile_NotFound(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/config.yaml", nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "runner: {{yaml"); err != nil {
		t.Fatal(err)
	}

	fn := checkConfigFile(cfgPath, &config.ValidationError{Errors: []string{"bad yaml"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for load error")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := writeTestFile(t, cfgPath, "runner:\n  shell: sh\n"); err != nil {
		t.Fatal(err)
	}

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckWritableDir_Creates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	result := checkWritableDir(dir)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory was not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".doctor-check")); !os.IsNotExist(err) {
		t.Error("probe file was left behind")
	}
}

func TestCheckWritableDir_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := writeTestFile(t, path, "x"); err != nil {
		t.Fatal(err)
	}
	result := checkWritableDir(path)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for a regular file, got %s", result.Status)
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for name, fn := range map[string]func(*config.Config) CheckResult{
		"data":     checkDataDir,
		"export":   checkExportDir,
		"shell":    checkShell,
		"timezone": checkTimezone,
		"tokens":   checkTokens,
		"server":   checkServer,
	} {
		if result := fn(nil); result.Status != StatusFail {
			t.Errorf("%s: expected FAIL for nil config, got %s", name, result.Status)
		}
	}
}

func TestCheckShell_Missing(t *testing.T) {
	cfg := config.Defaults()
	cfg.Runner.Shell = "no-such-shell-ordito"
	result := checkShell(cfg)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for missing shell, got %s", result.Status)
	}
}

func TestCheckTimezone(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler.Timezone = "UTC"
	if result := checkTimezone(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS for UTC, got %s: %s", result.Status, result.Message)
	}

	cfg.Scheduler.Timezone = "Mars/Olympus"
	if result := checkTimezone(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL for unknown zone, got %s", result.Status)
	}
}

func TestCheckTokens(t *testing.T) {
	cfg := config.Defaults()
	if result := checkTokens(cfg); result.Status != StatusWarn {
		t.Errorf("expected WARN without tokens, got %s", result.Status)
	}

	cfg.Gateway.Auth.Tokens = []config.TokenConfig{{Name: "laptop", Token: "a"}, {Name: "ci", Token: "b"}}
	result := checkTokens(cfg)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s", result.Status)
	}
	if !strings.Contains(result.Message, "laptop, ci") {
		t.Errorf("message should name the tokens, got %q", result.Message)
	}
}

func TestCheckServer_Unreachable(t *testing.T) {
	cfg := config.Defaults()
	cfg.Gateway.URL = "ws://127.0.0.1:1/ws"
	result := checkServer(cfg)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for a server that is down, got %s: %s", result.Status, result.Message)
	}
}

func TestRunDoctor_Report(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ORDITO_DATA_DIR", dir)
	t.Setenv("ORDITO_GATEWAY_URL", "ws://127.0.0.1:1/ws")
	t.Setenv("ORDITO_GATEWAY_TOKEN", "secret")

	var out bytes.Buffer
	err := runDoctor(&out, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("runDoctor: %v\n%s", err, out.String())
	}
	report := out.String()
	for _, want := range []string{"Config file", "Data directory", "Gateway tokens", "Results:"} {
		if !strings.Contains(report, want) {
			t.Errorf("report is missing %q:\n%s", want, report)
		}
	}
}
