package assistant

import "strings"

const (
	StandardDisclaimer = "This information is for educational purposes only and should not replace " +
		"professional medical advice. Always consult your healthcare provider for " +
		"personalized medical guidance and follow their specific instructions."

	safetyNotice = "\n\n⚠️ IMPORTANT: This information is for educational purposes only. " +
		"Always consult your healthcare provider for personalized medical advice."
)

var dangerousPhrases = []string{
	"stop taking medication",
	"don't need to see doctor",
	"ignore symptoms",
	"self-medicate",
	"home remedy instead",
}

var overconfidentClaims = []string{
	"will cure",
	"guaranteed to work",
	"never causes side effects",
	"100% safe",
	"no need for follow-up",
}

var uncertainPhrases = []string{"might", "could", "possibly", "unsure", "unclear"}

// ValidateAnswer flags risky advice and overconfident claims in answer. When
// anything is flagged the safety notice is appended to the returned text.
func ValidateAnswer(answer string) (string, []string) {
	lower := strings.ToLower(answer)
	flags := []string{}
	for _, p := range dangerousPhrases {
		if strings.Contains(lower, p) {
			flags = append(flags, "potentially_dangerous_advice: "+p)
		}
	}
	for _, c := range overconfidentClaims {
		if strings.Contains(lower, c) {
			flags = append(flags, "overconfident_claim: "+c)
		}
	}
	if len(flags) > 0 {
		answer += safetyNotice
	}
	return answer, flags
}

// Confidence scores an answer starting from 0.8: minus 0.1 per safety flag,
// minus 0.05 per hedging word present, plus 0.1 when it points the reader at
// their healthcare provider. The result is clamped to [0.1, 1.0].
func Confidence(answer string, flags []string) float64 {
	lower := strings.ToLower(answer)
	score := 0.8 - 0.1*float64(len(flags))
	for _, p := range uncertainPhrases {
		if strings.Contains(lower, p) {
			score -= 0.05
		}
	}
	if strings.Contains(lower, "consult") && strings.Contains(lower, "healthcare") {
		score += 0.1
	}
	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
