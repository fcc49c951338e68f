package utils

import "testing"

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"01306", "1306"},
		{"02644", "2644"},
		{"0200A", "200A"},
		{"1306", "1306"},
		{" 01306 ", "1306"},
		{"0000", "0000"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeCode(tt.input); got != tt.expected {
				t.Errorf("NormalizeCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"topix", "1306"},
		{"TOPIX", "1306"},
		{" core30 ", "1311"},
		{"225", "1321"},
		{"div50", "1489"},
		{"div70", "1577"},
		{"pbr", "2080"},
		{"sox", "2243"},
		{"jpsox1", "200A"},
		{"JPSOX2", "2644"},
		{"nikkei", "nikkei"},
		{"unknown", "unknown"},
		{"1306", "1306"},
		{"200A", "200A"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ResolveCode(tt.input); got != tt.expected {
				t.Errorf("ResolveCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAliasesIsCopy(t *testing.T) {
	a := Aliases()
	a["topix"] = "9999"
	if ResolveCode("topix") != "1306" {
		t.Error("Aliases() must not expose the internal table")
	}
}

func TestIsDigits(t *testing.T) {
	tests := map[string]bool{
		"1306": true,
		"200A": false,
		"":     false,
		"13.0": false,
		"１３": false,
	}
	for in, want := range tests {
		if got := IsDigits(in); got != want {
			t.Errorf("IsDigits(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidCode(t *testing.T) {
	tests := map[string]bool{
		"1306":     true,
		"200A":     true,
		"25935":    true,
		"130":      false,
		"130600":   false,
		"13 6":     false,
		"1306.T":   false,
		"":         false,
		"１３０６": false,
	}
	for in, want := range tests {
		if got := ValidCode(in); got != want {
			t.Errorf("ValidCode(%q) = %v, want %v", in, got, want)
		}
	}
}
