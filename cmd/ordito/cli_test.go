package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
	"ordito/internal/infra/config"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// localArgs points the CLI at a fresh data directory and returns the
// global flags for working on it without a server.
func localArgs(t *testing.T) []string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ORDITO_DATA_DIR", dir)
	t.Setenv("ORDITO_LOGGER_LEVEL", "error")
	t.Setenv("ORDITO_SCHEDULER_TIMEZONE", "UTC")
	return []string{"--local", "--config", filepath.Join(dir, "ordito.yaml")}
}

func local(t *testing.T, global []string, args ...string) string {
	t.Helper()
	out, err := execute(t, join(global, args...)...)
	require.NoError(t, err, out)
	return out
}

func join(global []string, args ...string) []string {
	return append(append([]string(nil), global...), args...)
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return -1
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, sub := range []string{"serve", "groups", "run", "schedule", "cron", "export", "import", "doctor"} {
		assert.Contains(t, out, sub)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ORDITO_CONFIG", "")

	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, ".ordito", "config.yaml"), resolveConfigPath(""))

	require.NoError(t, os.WriteFile("ordito.toml", nil, 0o600))
	assert.Equal(t, "ordito.toml", resolveConfigPath(""))

	require.NoError(t, os.WriteFile("ordito.yaml", nil, 0o600))
	assert.Equal(t, "ordito.yaml", resolveConfigPath(""))

	t.Setenv("ORDITO_CONFIG", "/etc/ordito.yaml")
	assert.Equal(t, "/etc/ordito.yaml", resolveConfigPath(""))
	assert.Equal(t, "flag.yaml", resolveConfigPath("flag.yaml"))
}

func TestLocalGroupsAndRuns(t *testing.T) {
	g := localArgs(t)

	groupID := strings.TrimSpace(local(t, g, "group", "add", "Deploy"))
	require.NotEmpty(t, groupID)
	local(t, g, "command", "add", "Deploy", "hello", "echo", "hello")
	local(t, g, "command", "add", "deploy", "broken", "exit 3")

	out := local(t, g, "groups")
	assert.Contains(t, out, "Deploy")
	assert.Contains(t, out, "echo hello")
	assert.Contains(t, out, "1 groups, 2 commands")

	out = local(t, g, "run", "Deploy", "hello")
	assert.Contains(t, out, "all-success")
	assert.Contains(t, out, "    hello")
	assert.Contains(t, out, "1 succeeded, 0 failed")

	out, err := execute(t, join(g, "run", groupID)...)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "mixed")
	assert.Contains(t, out, "1 succeeded, 1 failed")
	assert.Contains(t, out, "broken: Error: Command failed")

	out = local(t, g, "run", "--line", "echo ad hoc")
	assert.Contains(t, out, "ad-hoc")
	assert.Contains(t, out, "ad hoc")

	out = local(t, g, "search", "hel")
	assert.Contains(t, out, "hello")
	assert.NotContains(t, out, "broken")
	assert.Contains(t, out, `"hel" matched 1 of 1 groups and 1 of 2 commands`)

	local(t, g, "command", "edit", "Deploy", "broken", "--label", "fixed", "--cmd", "true")
	out = local(t, g, "run", "Deploy", "fixed")
	assert.Contains(t, out, "all-success")

	local(t, g, "group", "rename", "Deploy", "Release")
	out = local(t, g, "groups")
	assert.Contains(t, out, "Release")
	assert.NotContains(t, out, "Deploy")

	_, err = execute(t, join(g, "run", "Nope")...)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalSchedules(t *testing.T) {
	g := localArgs(t)

	local(t, g, "group", "add", "Backup")
	local(t, g, "command", "add", "Backup", "dump", "true")

	id := strings.TrimSpace(local(t, g, "schedule", "add", "Backup", "--preset", "4", "--max", "2"))
	require.NotEmpty(t, id)
	cmdID := strings.TrimSpace(local(t, g, "schedule", "add", "Backup", "dump", "--cron", "0 30 * * * *"))
	require.NotEmpty(t, cmdID)

	out := local(t, g, "schedule", "list")
	assert.Contains(t, out, "Group: Backup (0 0 9 * * *)")
	assert.Contains(t, out, "Backup → dump (0 30 * * * *)")
	assert.Contains(t, out, "runs 0 / 2")
	assert.Contains(t, out, "last never")

	out = local(t, g, "schedule", "toggle", id[:len(id)-2])
	assert.Contains(t, out, string(domain.SchedulePaused))
	out = local(t, g, "schedule", "toggle", id)
	assert.Contains(t, out, string(domain.ScheduleActive))

	local(t, g, "schedule", "edit", id, "--cron", "0 0 10 * * *", "--clear-max")
	out = local(t, g, "schedule", "list")
	assert.Contains(t, out, "Group: Backup (0 0 10 * * *)")
	assert.NotContains(t, out, "/ 2")

	_, err := execute(t, join(g, "schedule", "add", "Backup")...)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	out = local(t, g, "schedule", "validate", "0", "0", "9", "*", "*", "*")
	assert.Equal(t, 6, strings.Count(out, "\n"), out)

	out, err = execute(t, join(g, "schedule", "validate", "0 0 25 * * *")...)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "0 0 25 * * *")

	local(t, g, "schedule", "rm", cmdID)
	out = local(t, g, "schedule", "list")
	assert.NotContains(t, out, cmdID)

	// Deleting the group cascades to its schedules.
	local(t, g, "group", "rm", "Backup")
	out = local(t, g, "schedule", "list")
	assert.Contains(t, out, "no schedules")
}

func TestLocalOrphansKept(t *testing.T) {
	g := localArgs(t)
	t.Setenv("ORDITO_ORPHAN_POLICY", "keep")

	local(t, g, "group", "add", "Nightly")
	local(t, g, "command", "add", "Nightly", "sync", "true")
	local(t, g, "schedule", "add", "Nightly", "sync", "--preset", "every hour")
	local(t, g, "command", "rm", "Nightly", "sync")

	out := local(t, g, "schedule", "list", "--orphans")
	assert.Contains(t, out, "Nightly → [Unknown Command] (0 0 * * * *)")
}

func TestLocalExportImport(t *testing.T) {
	g := localArgs(t)
	local(t, g, "group", "add", "Ops")
	local(t, g, "command", "add", "Ops", "uptime", "uptime")
	local(t, g, "schedule", "add", "Ops", "--cron", "0 0 * * * *")

	out := local(t, g, "export")
	require.Contains(t, out, "Data exported to: ")
	path := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "Data exported to: "))
	require.FileExists(t, path)

	out = local(t, g, "import", path)
	assert.Contains(t, out, "(0 added, 2 skipped)")

	local(t, g, "group", "rm", "Ops")
	out = local(t, g, "import", path)
	assert.Contains(t, out, "(2 added, 0 skipped)")

	out = local(t, g, "groups")
	assert.Contains(t, out, "Ops")
	out = local(t, g, "schedule", "list")
	assert.Contains(t, out, "Group: Ops (0 0 * * * *)")

	_, err := execute(t, join(g, "import", filepath.Join(t.TempDir(), "none.json"))...)
	assert.Error(t, err)
}

func TestConfigShowRedacts(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ORDITO_DATA_DIR", dir)
	t.Setenv("ORDITO_GATEWAY_TOKEN", "super-secret")

	out, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, redacted)
}

func TestConfigEncrypt(t *testing.T) {
	t.Setenv("ORDITO_CONFIG_KEY", "")
	_, err := execute(t, "config", "encrypt", "tok")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	t.Setenv("ORDITO_CONFIG_KEY", "passphrase")
	out, err := execute(t, "config", "encrypt", "tok")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "enc:"), out)
}

func TestServerTokens(t *testing.T) {
	cfg := config.Defaults()
	assert.Empty(t, serverTokens(cfg))

	cfg.Gateway.Token = "solo"
	tokens := serverTokens(cfg)
	require.Len(t, tokens, 1)
	assert.Equal(t, "default", tokens[0].Name)

	cfg.Gateway.Auth.Tokens = []config.TokenConfig{{Name: "ci", Token: "t1"}}
	tokens = serverTokens(cfg)
	require.Len(t, tokens, 1)
	assert.Equal(t, "ci", tokens[0].Name)
}

func TestServeWithoutTokens(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ORDITO_DATA_DIR", dir)
	t.Setenv("ORDITO_GATEWAY_TOKEN", "")
	t.Setenv("ORDITO_GATEWAY_TOKENS", "")

	_, err := execute(t, "--config", filepath.Join(dir, "none.yaml"), "serve")
	assert.ErrorIs(t, err, errNoTokens)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
