package utils

import (
	"strings"
)

// Common ETF aliases accepted on the command line.
var codeAliases = map[string]string{
	"topix":  "1306",
	"225":    "1321",
	"core30": "1311",
	"div50":  "1489",
	"div70":  "1577",
	"pbr":    "2080",
	"sox":    "2243",
	"jpsox1": "200A",
	"jpsox2": "2644",
}

// ResolveCode maps a user-input alias to an exchange code.
// Unknown inputs are returned trimmed and otherwise unchanged.
func ResolveCode(input string) string {
	input = strings.TrimSpace(input)
	if code, ok := codeAliases[strings.ToLower(input)]; ok {
		return code
	}
	return input
}

// Aliases returns a copy of the alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(codeAliases))
	for k, v := range codeAliases {
		out[k] = v
	}
	return out
}

// NormalizeCode strips surrounding whitespace and leading zeros from a code.
// An all-zero code is returned as-is rather than emptied.
// e.g., "01306" → "1306", "0200A" → "200A", "0000" → "0000"
func NormalizeCode(raw string) string {
	raw = strings.TrimSpace(raw)
	if stripped := strings.TrimLeft(raw, "0"); stripped != "" {
		return stripped
	}
	return raw
}

// IsDigits reports whether s is non-empty and consists only of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidCode reports whether s looks like a TSE security code: four or five
// ASCII letters or digits, e.g. "1306", "200A", "25935".
func ValidCode(s string) bool {
	if len(s) < 4 || len(s) > 5 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		default:
			return false
		}
	}
	return true
}
