package theme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"ordito/internal/domain"
)

func TestDetectUnicodeSupport(t *testing.T) {
	tests := []struct {
		name  string
		ascii string
		lang  string
		want  bool
	}{
		{"utf8 locale", "", "en_US.UTF-8", true},
		{"no locale", "", "", true},
		{"posix locale", "", "C", false},
		{"forced ascii", "1", "en_US.UTF-8", false},
		{"forced ascii word", "TRUE", "en_US.UTF-8", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ORDITO_ASCII_SYMBOLS", tt.ascii)
			t.Setenv("LC_ALL", "")
			t.Setenv("LC_CTYPE", "")
			t.Setenv("LANG", tt.lang)
			assert.Equal(t, tt.want, DetectUnicodeSupport())
		})
	}
}

func TestInitSymbolsASCII(t *testing.T) {
	// Registered first so it runs after Setenv restores the environment.
	t.Cleanup(InitSymbols)
	t.Setenv("ORDITO_ASCII_SYMBOLS", "1")
	InitSymbols()

	assert.Equal(t, "[OK]", SymbolSuccess)
	assert.Equal(t, "->", SymbolArrowR)
}

func TestSummaryMentionsClassification(t *testing.T) {
	for _, s := range []domain.ExecutionSummary{domain.SummaryAllSuccess, domain.SummaryAllFailure, domain.SummaryMixed} {
		assert.True(t, strings.Contains(Summary(s), string(s)), "summary %q", s)
	}
	assert.Contains(t, State(domain.ScheduleExhausted), "exhausted")
	assert.Contains(t, Entry(true), SymbolError)
}
