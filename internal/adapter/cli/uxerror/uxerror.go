// Package uxerror translates raw errors into CLI messages with recovery hints.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"ordito/internal/adapter/cli/theme"
	"ordito/internal/domain"
	"ordito/internal/infra/config"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Server Unreachable"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Code    domain.ErrorCode
	Raw     string // original error text
}

// Render formats the error for the terminal.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(theme.ErrorTitle.Render(theme.SymbolError + " " + fe.Title))
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Remote rejections carry a message meant for the user; show it as is.
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrGateway) },
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Request Rejected", Message: err.Error(), Raw: err.Error()}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrAuthInvalid) },
		produce: constantError("Authentication Failed", "The server rejected the gateway token.", []string{
			"Set gateway.token in the config or ORDITO_GATEWAY_TOKEN",
			"Check that the token is listed under gateway.auth.tokens on the server",
		}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrForbidden) },
		produce: constantError("Read-only Token", "The gateway token may list and validate but not change or run anything.", []string{
			"Use a token without read_only set for this command",
		}),
	},
	{
		match: func(err error) bool { return domain.ErrorCodeOf(err) == domain.CodeGatewayOpen },
		produce: constantError("Server Unreachable", "The ordito server did not answer.", []string{
			"Start it with 'ordito serve'",
			"Or work on the local database with --local",
			"Check gateway.url in the config",
		}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrExhausted) },
		produce: constantError("Schedule Exhausted", "The schedule reached its execution limit and cannot be resumed.", []string{
			"Raise or clear the limit with 'ordito schedule edit --max'",
		}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrUnsupportedPattern) },
		produce: constantError("Unsupported Pattern", "Schedules are created from six-field cron expressions only.", []string{
			"Use 'ordito cron build' to compose an expression",
		}),
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrNotFound) },
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Not Found", Message: err.Error(), Hints: []string{
				"List groups with 'ordito groups' and schedules with 'ordito schedule list'",
			}, Raw: err.Error()}
		},
	},
	{
		match: func(err error) bool {
			var ve *config.ValidationError
			return errors.As(err, &ve)
		},
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Invalid Configuration", Message: err.Error(), Hints: []string{
				"Fix the listed settings or run 'ordito doctor'",
			}, Raw: err.Error()}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrInvalidInput) },
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Invalid Input", Message: err.Error(), Raw: err.Error()}
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, domain.ErrTimeout) },
		produce: constantError("Request Timed Out", "The server took too long to answer.", []string{
			"Increase gateway.request_timeout for long running groups",
		}),
	},
	// Transport failures that escaped the gateway client.
	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Server Unreachable", "Could not connect to the ordito server.", []string{
			"Start it with 'ordito serve'",
			"Or work on the local database with --local",
		}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			fe := p.produce(err)
			fe.Code = domain.ErrorCodeOf(err)
			return fe
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Run with ORDITO_LOGGER_LEVEL=debug for more details"},
		Code:    domain.ErrorCodeOf(err),
		Raw:     err.Error(),
	}
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
