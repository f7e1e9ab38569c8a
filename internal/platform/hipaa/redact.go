package hipaa

import "regexp"

type redaction struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: SSNs are masked before the looser phone pattern sees them.
var redactions = []redaction{
	{"ssn", regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`), "XXX-XX-XXXX"},
	{"phone", regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "XXX-XXX-XXXX"},
	{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL_REDACTED]"},
	{"credit_card", regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`), "XXXX-XXXX-XXXX-XXXX"},
	// Street names are one to three capitalized words on a single line, so
	// dosing text such as "2 doses of ceftriaxone per Dr Patel" is kept.
	{"address", regexp.MustCompile(`\b\d{1,5}[ \t]+(?:[A-Z0-9][A-Za-z0-9]*[ \t]+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Place|Pl)\b`), "[ADDRESS_REDACTED]"},
}

// Redact masks SSNs, phone numbers, email addresses, card numbers and street
// addresses in text. Every prompt leaving the process goes through it.
func Redact(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}

// ContainsPII reports whether Redact would change text.
func ContainsPII(text string) bool {
	for _, r := range redactions {
		if r.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
