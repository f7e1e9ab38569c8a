package assistant

import (
	"math"
	"strings"
	"testing"
)

func TestValidateAnswer(t *testing.T) {
	out, flags := ValidateAnswer("Rest and drink water.")
	if len(flags) != 0 || out != "Rest and drink water." {
		t.Errorf("expected clean answer untouched, got %q %v", out, flags)
	}

	out, flags = ValidateAnswer("Try a HOME REMEDY INSTEAD, it is 100% safe.")
	want := []string{"potentially_dangerous_advice: home remedy instead", "overconfident_claim: 100% safe"}
	if len(flags) != len(want) {
		t.Fatalf("expected %v, got %v", want, flags)
	}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag %d: expected %q, got %q", i, want[i], flags[i])
		}
	}
	if !strings.Contains(out, "⚠️ IMPORTANT") {
		t.Errorf("expected safety notice, got %q", out)
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		flags  int
		want   float64
	}{
		{"plain", "Drink fluids.", 0, 0.8},
		{"consult bonus", "Please consult your healthcare team.", 0, 0.9},
		{"hedging", "It might help and could possibly ease pain.", 0, 0.65},
		{"flags", "Drink fluids.", 2, 0.6},
		{"floor", "might could possibly unsure unclear", 8, 0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Confidence(tc.answer, make([]string, tc.flags))
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
