package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ordito/internal/adapter/cli/theme"
	"ordito/internal/adapter/gateway"
	"ordito/internal/domain"
	"ordito/internal/infra/config"
	"ordito/internal/infra/logger"
)

// CheckStatus is the outcome class of one health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), resolveConfigPath(opts.configPath))
		},
	}
}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer, cfgPath string) error {
	// Some checks work without a config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Export directory", Fn: checkExportDir},
		{Name: "Shell", Fn: checkShell},
		{Name: "Timezone", Fn: checkTimezone},
		{Name: "Gateway tokens", Fn: checkTokens},
		{Name: "Server", Fn: checkServer},
	}

	fmt.Fprintln(w, theme.Bold.Render("ordito doctor"))
	fmt.Fprintln(w, strings.Repeat("=", 50))

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return theme.TextSuccess.Render("[PASS]")
	case StatusWarn:
		return theme.TextWarning.Render("[WARN]")
	case StatusFail:
		return theme.TextError.Render("[FAIL]")
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and parses. A
// missing file is fine: the defaults apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s or point --config at another file", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkWritableDir verifies dir exists (creating it if needed) and is writable.
func checkWritableDir(dir string) CheckResult {
	absDir, _ := filepath.Abs(dir)

	info, err := os.Stat(absDir)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(absDir, 0o700); mkErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("%s does not exist and cannot be created: %v", absDir, mkErr),
				Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("created %s", absDir)}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot stat %s: %v", absDir, err)}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("%s exists but is not a directory", absDir)}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(testFile)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s writable", absDir)}
}

func checkDataDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	return checkWritableDir(filepath.Dir(cfg.Storage.Path))
}

func checkExportDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	return checkWritableDir(cfg.Export.Dir)
}

// checkShell verifies the runner shell is on PATH.
func checkShell(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	path, err := exec.LookPath(cfg.Runner.Shell)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("shell %q not found", cfg.Runner.Shell),
			Fix:     "Set runner.shell to an installed shell",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

func checkTimezone(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	loc, err := cfg.Location()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Use an IANA zone name such as Europe/Berlin"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("schedules fire in %s", loc)}
}

func checkTokens(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	tokens := serverTokens(cfg)
	if len(tokens) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no tokens, 'ordito serve' will refuse to start",
			Fix:     "Set gateway.token or ORDITO_GATEWAY_TOKEN",
		}
	}
	names := make([]string, len(tokens))
	for i, t := range tokens {
		names[i] = t.Name
		if t.ReadOnly {
			names[i] += " (read-only)"
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d token(s): %s", len(tokens), strings.Join(names, ", "))}
}

// checkServer dials the configured gateway. A server that is not running
// is only a warning since --local works without one.
func checkServer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	client, err := gateway.Dial(ctx, gateway.ClientConfig{URL: cfg.Gateway.URL, Token: cfg.Gateway.Token}, logger.Discard())
	if errors.Is(err, domain.ErrAuthInvalid) {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the token", cfg.Gateway.URL),
			Fix:     "Make gateway.token match a token the server accepts",
		}
	}
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s: %v", cfg.Gateway.URL, err),
			Fix:     "Start the server with 'ordito serve', or use --local",
		}
	}
	defer client.Close()

	groups, err := client.GetGroups(ctx)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("connected but the request failed: %v", err)}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s answered in %dms with %d group(s)", cfg.Gateway.URL, time.Since(start).Milliseconds(), len(groups)),
	}
}
