package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"+31612345678", "+31612345678"},
		{"(415) 555-0100", "+14155550100"},
		{"415-555-0100", "+14155550100"},
		{" +14155550100 ", "+14155550100"},
	}
	for _, tc := range cases {
		if got := NormalizeE164(tc.input); got != tc.want {
			t.Fatalf("NormalizeE164(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeE164_Idempotent(t *testing.T) {
	once := NormalizeE164("(415) 555-0100")
	twice := NormalizeE164(once)
	if once != twice {
		t.Fatalf("normalization not idempotent: %q vs %q", once, twice)
	}
}

func TestNormalizeE164_UnparseableReturnsInput(t *testing.T) {
	if got := NormalizeE164("not a number"); got != "not a number" {
		t.Fatalf("expected input back, got %q", got)
	}
}

func TestValidateE164(t *testing.T) {
	if _, err := ValidateE164("+14155550100"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ValidateE164("12"); err == nil {
		t.Fatal("expected error for too-short number")
	}
	if _, err := ValidateE164(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}
