package associator

import "testing"

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "ABC", 3},
		{"ABC", "", 3},
		{"ABC-12345", "ABC-12345", 0},
		{"ABC-12345", "ABC-12346", 1},
		{"ABC-12345", "ABD-12346", 2},
		{"ABC-12345", "ABC-1234", 1},
		{"ABC-12345", "ABC-123456", 1},
		{"KITTEN", "SITTING", 3},
		{"FLAW", "LAWN", 2},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"ABC-12345", "ABD-12354"},
		{"DL-123456", "DL-654321"},
		{"", "XYZ-99999"},
		{"SHORT", "MUCHLONGERSTRING"},
	}
	for _, pair := range pairs {
		ab := Distance(pair[0], pair[1])
		ba := Distance(pair[1], pair[0])
		if ab != ba {
			t.Fatalf("distance not symmetric for %q/%q: %d != %d", pair[0], pair[1], ab, ba)
		}
	}
	for _, s := range []string{"", "A", "ABC-12345"} {
		if Distance(s, s) != 0 {
			t.Fatalf("Distance(%q, %q) != 0", s, s)
		}
	}
}
