package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the CLI symbols so they can be switched between Unicode
// and an ASCII fallback at runtime.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	ArrowR  string
	Bullet  string
}

var unicodeSymbols = SymbolSet{
	Success: "✓",
	Error:   "✗",
	Warning: "⚠",
	ArrowR:  "→",
	Bullet:  "•",
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	ArrowR:  "->",
	Bullet:  "*",
}

// Symbol variables, set by InitSymbols.
var (
	SymbolSuccess string
	SymbolError   string
	SymbolWarning string
	SymbolArrowR  string
	SymbolBullet  string
)

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// ORDITO_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("ORDITO_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	// An explicit non-UTF-8 locale means ASCII. No locale at all is common in
	// containers whose terminals handle UTF-8 fine.
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

// InitSymbols sets the Symbol* variables from the terminal capabilities.
// Tests call it again after changing the environment.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}

	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolArrowR = set.ArrowR
	SymbolBullet = set.Bullet
}

func init() {
	InitSymbols()
}
