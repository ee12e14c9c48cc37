package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError so ErrorCodeOf can resolve
// a subsystem-specific code.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrLimitReached = fmt.Errorf("limit reached")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrRateLimit    = fmt.Errorf("rate limit exceeded")
	ErrUnavailable  = fmt.Errorf("unavailable")
)

// Sentinel errors for the domain layer.
var (
	// ErrExhausted is returned when toggling a schedule that already reached
	// its execution limit.
	ErrExhausted = fmt.Errorf("schedule exhausted")

	// ErrGateway marks errors reported by the remote authority.
	ErrGateway = fmt.Errorf("gateway rejected the request")

	// ErrUnsupportedPattern is returned for schedule patterns other than cron.
	ErrUnsupportedPattern = fmt.Errorf("unsupported schedule pattern")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrForbidden         = fmt.Errorf("forbidden")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "EntityStore.CreateGroup")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "entity", "schedule"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GatewayError carries a rejection reported by the remote authority. The message
// is kept verbatim so callers can display it unmodified.
type GatewayError struct {
	Method  string
	Message string
}

func (e *GatewayError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrGateway) hold for every GatewayError.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// IsValidationError reports whether err was raised before contacting the gateway.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnsupportedPattern)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and RPC responses.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeExhausted         ErrorCode = "SCHEDULE_EXHAUSTED"
	CodeGateway           ErrorCode = "GATEWAY_REJECTED"
	CodeUnsupportedPatern ErrorCode = "UNSUPPORTED_PATTERN"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeForbidden         ErrorCode = "FORBIDDEN"

	// Subsystem-specific codes used by subSystemCodeMap.
	CodeGroupNotFound    ErrorCode = "GROUP_NOT_FOUND"
	CodeCommandNotFound  ErrorCode = "COMMAND_NOT_FOUND"
	CodeScheduleNotFound ErrorCode = "SCHEDULE_NOT_FOUND"
	CodeRecordNotFound   ErrorCode = "RECORD_NOT_FOUND"
	CodeGroupInvalid     ErrorCode = "GROUP_INVALID"
	CodeCommandInvalid   ErrorCode = "COMMAND_INVALID"
	CodeScheduleInvalid  ErrorCode = "SCHEDULE_INVALID"
	CodeImportInvalid    ErrorCode = "IMPORT_INVALID"
	CodeRunnerTimeout    ErrorCode = "RUNNER_TIMEOUT"
	CodeRunnerMaxDetach  ErrorCode = "RUNNER_MAX_DETACHED"
	CodeGatewayOpen      ErrorCode = "GATEWAY_CIRCUIT_OPEN"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeDuplicate    ErrorCode = "DUPLICATE"
	CodeTimeout      ErrorCode = "TIMEOUT"
	CodeLimitReached ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeRateLimit    ErrorCode = "RATE_LIMIT"
	CodeUnavailable  ErrorCode = "UNAVAILABLE"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrTimeout:      CodeTimeout,
	ErrLimitReached: CodeLimitReached,
	ErrInvalidInput: CodeInvalidInput,
	ErrRateLimit:    CodeRateLimit,
	ErrUnavailable:  CodeUnavailable,

	ErrExhausted:          CodeExhausted,
	ErrGateway:            CodeGateway,
	ErrUnsupportedPattern: CodeUnsupportedPatern,
	ErrGatewayAuthFailed:  CodeGatewayAuth,
	ErrRPCMethodNotFound:  CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:  CodeRPCInvalidPayload,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrForbidden:          CodeForbidden,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"group":    CodeGroupNotFound,
		"command":  CodeCommandNotFound,
		"schedule": CodeScheduleNotFound,
		"ledger":   CodeRecordNotFound,
	},
	ErrInvalidInput: {
		"entity":   CodeGroupInvalid,
		"command":  CodeCommandInvalid,
		"schedule": CodeScheduleInvalid,
		"import":   CodeImportInvalid,
	},
	ErrTimeout: {
		"runner": CodeRunnerTimeout,
	},
	ErrLimitReached: {
		"runner": CodeRunnerMaxDetach,
	},
	ErrUnavailable: {
		"gateway": CodeGatewayOpen,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Code()
	}

	// ErrGatewayAuthFailed wraps ErrAuthInvalid; check the more specific one first.
	if errors.Is(err, ErrGatewayAuthFailed) {
		return CodeGatewayAuth
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
