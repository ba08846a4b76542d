package associator

import "testing"

func TestNormalizeHardwareID(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already canonical", "ABC-12345", "ABC-12345"},
		{"lowercase", "abc-12345", "ABC-12345"},
		{"whitespace", "  ABC-12345  ", "ABC-12345"},
		{"underscore separator", "ABC_12345", "ABC-12345"},
		{"dot separator", "ABC.12345", "ABC-12345"},
		{"space separator", "ABC 12345", "ABC-12345"},
		{"missing dash inserted", "ABC12345", "ABC-12345"},
		{"double dash collapsed", "ABC--12345", "ABC-12345"},
		{"trailing dash trimmed", "ABC-12345-", "ABC-12345"},
		{"empty", "", UnknownID},
		{"blank", "   ", UnknownID},
		{"placeholder n/a", "n/a", UnknownID},
		{"placeholder null", "NULL", UnknownID},
		{"placeholder none", "none", UnknownID},
		{"placeholder unknown", "unknown", UnknownID},
		{"bare dash", "-", UnknownID},
		{"short digits kept as-is", "AB-1234", "AB-1234"},
		{"free text kept as-is", "FRONT-PANEL", "FRONT-PANEL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeHardwareID(tc.in)
			if got != tc.want {
				t.Fatalf("NormalizeHardwareID(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"abc-12345", "ABC12345", " ab_c 99 ", "n/a", "", "XYZ-0000012345",
		"A.B.C", "dl 123456",
	}
	for _, in := range inputs {
		once := NormalizeHardwareID(in)
		twice := NormalizeHardwareID(once)
		if once != twice {
			t.Fatalf("normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestIsExpectedIDFormat(t *testing.T) {
	cases := map[string]bool{
		"ABC-12345":        true,
		"AB-99999":         true,
		"WXYZ-12345678901": true,
		"A-12345":          false,
		"ABCDE-12345":      false,
		"ABC-1234":         false,
		"ABC12345":         false,
		"":                 false,
		UnknownID:          false,
	}
	for in, want := range cases {
		if got := IsExpectedIDFormat(in); got != want {
			t.Fatalf("IsExpectedIDFormat(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestStripDashes(t *testing.T) {
	if got := StripDashes("A-B-C-123"); got != "ABC123" {
		t.Fatalf("StripDashes = %q", got)
	}
}
