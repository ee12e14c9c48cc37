package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ErrorPrefix is the textual marker of a failed execution output.
const ErrorPrefix = "Error:"

// ExecutionEntry is the outcome of running one command: either an output or
// an error message.
type ExecutionEntry struct {
	Label   string `json:"label"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message,omitempty"`
	Failed  bool   `json:"failed"`
}

// SuccessEntry returns a successful entry.
func SuccessEntry(label, output string) ExecutionEntry {
	return ExecutionEntry{Label: label, Output: output}
}

// FailureEntry returns a failed entry carrying msg.
func FailureEntry(label, msg string) ExecutionEntry {
	return ExecutionEntry{Label: label, Message: msg, Failed: true}
}

// Text renders the entry in the legacy textual form where failures are
// prefixed with "Error: ".
func (e ExecutionEntry) Text() string {
	if e.Failed {
		return ErrorPrefix + " " + e.Message
	}
	return e.Output
}

// EntryFromText classifies a legacy textual output. An output starting with
// "Error:" is a failure.
func EntryFromText(label, text string) ExecutionEntry {
	if rest, ok := strings.CutPrefix(text, ErrorPrefix); ok {
		return FailureEntry(label, strings.TrimPrefix(rest, " "))
	}
	return SuccessEntry(label, text)
}

// UnmarshalJSON accepts both the tagged form and the legacy {label, output}
// form, where a failure is an output starting with "Error:".
func (e *ExecutionEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Label   string `json:"label"`
		Output  string `json:"output"`
		Message string `json:"message"`
		Failed  *bool  `json:"failed"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Failed == nil {
		*e = EntryFromText(raw.Label, raw.Output)
		return nil
	}
	*e = ExecutionEntry{Label: raw.Label, Output: raw.Output, Message: raw.Message, Failed: *raw.Failed}
	return nil
}

// ExecutionSummary classifies a record as a whole.
type ExecutionSummary string

const (
	SummaryAllSuccess ExecutionSummary = "all-success"
	SummaryAllFailure ExecutionSummary = "all-failure"
	SummaryMixed      ExecutionSummary = "mixed"
)

// Summarize classifies a set of entries. No entries counts as all-success.
func Summarize(entries []ExecutionEntry) ExecutionSummary {
	failed := CountFailed(entries)
	switch {
	case failed == 0:
		return SummaryAllSuccess
	case failed == len(entries):
		return SummaryAllFailure
	default:
		return SummaryMixed
	}
}

// CountFailed returns how many entries failed.
func CountFailed(entries []ExecutionEntry) int {
	n := 0
	for _, e := range entries {
		if e.Failed {
			n++
		}
	}
	return n
}

// ExecutionRecord groups the entries of one execution attempt.
type ExecutionRecord struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	CreatedAt time.Time        `json:"created_at"`
	Entries   []ExecutionEntry `json:"entries"`
}

// SuccessCount returns the number of successful entries.
func (r ExecutionRecord) SuccessCount() int { return len(r.Entries) - CountFailed(r.Entries) }

// ErrorCount returns the number of failed entries.
func (r ExecutionRecord) ErrorCount() int { return CountFailed(r.Entries) }

// Summary classifies the record.
func (r ExecutionRecord) Summary() ExecutionSummary { return Summarize(r.Entries) }
