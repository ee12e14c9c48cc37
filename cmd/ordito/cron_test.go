package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordito/internal/domain"
)

func TestCronBuild(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"defaults", nil, "0 0 0 * * *"},
		{"weekday mornings", []string{"--hour", "9", "--weekdays", "1,2,3,4,5"}, "0 0 9 * * 1,2,3,4,5"},
		{"from existing", []string{"--from", "0 0 9 * * 1", "--minute", "30"}, "0 30 9 * * 1"},
		{"clear a field", []string{"--from", "0 15 9 * * *", "--minute", "*"}, "0 * 9 * * *"},
		{"wildcard list", []string{"--from", "0 0 0 1,15 * *", "--days", "*"}, "0 0 0 * * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"cron", "build"}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.SplitN(out, "\n", 2)[0])
		})
	}
}

func TestCronBuildRejectsBadValues(t *testing.T) {
	for _, args := range [][]string{
		{"--hour", "24"},
		{"--minute", "soon"},
		{"--weekdays", "1,x"},
		{"--from", "every day"},
	} {
		_, err := execute(t, append([]string{"cron", "build"}, args...)...)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "args %v", args)
	}
}

func TestCronDescribe(t *testing.T) {
	out, err := execute(t, "cron", "describe", "0", "0", "9", "*", "*", "*")
	require.NoError(t, err)
	assert.Contains(t, out, "0 0 9 * * *")
	assert.Contains(t, out, "9:00 (9AM)")

	_, err = execute(t, "cron", "describe", "0 0 25 * * *")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCronPresets(t *testing.T) {
	out, err := execute(t, "cron", "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "Weekdays at 9:00 AM")
	assert.Contains(t, out, " 1  0 * * * * *")
}

func TestLookupPreset(t *testing.T) {
	p, err := lookupPreset("5")
	require.NoError(t, err)
	assert.Equal(t, "0 0 9 * * 1,2,3,4,5", p.Expression)

	p, err = lookupPreset("every hour")
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * * *", p.Expression)

	_, err = lookupPreset("0")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCronBuildInteractive(t *testing.T) {
	run := func(input string, args ...string) (string, error) {
		root := newRootCmd()
		var out, errOut bytes.Buffer
		root.SetIn(strings.NewReader(input))
		root.SetOut(&out)
		root.SetErr(&errOut)
		root.SetArgs(append([]string{"cron", "build", "-i"}, args...))
		err := root.ExecuteContext(context.Background())
		return out.String(), err
	}

	out, err := run("\r", "--hour", "9")
	require.NoError(t, err)
	assert.Equal(t, "0 0 9 * * *", strings.SplitN(out, "\n", 2)[0])

	out, err = run("q", "--hour", "9")
	require.NoError(t, err)
	assert.Empty(t, out)
}
