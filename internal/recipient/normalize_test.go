package recipient

import "testing"

func TestNormalizerNormalize(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(DefaultCountryCode, DefaultMinLength)

	tests := []struct {
		name      string
		raw       string
		want      string
		wantValid bool
	}{
		{name: "local with trunk zero", raw: "01712345678", want: "8801712345678", wantValid: true},
		{name: "spreadsheet dropped leading zero", raw: "1712345678", want: "8801712345678", wantValid: true},
		{name: "already prefixed", raw: "8801712345678", want: "8801712345678", wantValid: true},
		{name: "explicit plus", raw: "+880 1712-345678", want: "8801712345678", wantValid: true},
		{name: "punctuation stripped", raw: "(017) 1234-5678", want: "8801712345678", wantValid: true},
		{name: "foreign number with plus", raw: "+44 7911 123456", want: "447911123456", wantValid: true},
		{name: "too short", raw: "12345", want: "88012345", wantValid: false},
		{name: "no digits", raw: "n/a", want: "", wantValid: false},
		{name: "only zeros", raw: "000", want: "000", wantValid: false},
		{name: "too long", raw: "+1234567890123456", want: "1234567890123456", wantValid: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, valid := n.Normalize(tt.raw)
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
			if valid != tt.wantValid {
				t.Fatalf("Normalize(%q) valid = %v, want %v", tt.raw, valid, tt.wantValid)
			}
		})
	}
}

func TestNormalizerWithoutCountryCode(t *testing.T) {
	t.Parallel()

	n := NewNormalizer("", 8)
	got, valid := n.Normalize("0171-234-5678")
	if got != "01712345678" {
		t.Fatalf("Normalize() = %q, want %q", got, "01712345678")
	}
	if !valid {
		t.Fatal("Normalize() valid = false, want true")
	}
}

func TestSplitNumbers(t *testing.T) {
	t.Parallel()

	got := SplitNumbers("01711111111, 01722222222\n01733333333;;\r\n  ")
	want := []string{"01711111111", "01722222222", "01733333333"}
	if len(got) != len(want) {
		t.Fatalf("SplitNumbers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitNumbers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
