package hipaa

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// LogSensitiveFields are the map keys masked by SanitizeForLogging. Matching is
// case-insensitive.
var LogSensitiveFields = []string{
	"ssn",
	"social_security_number",
	"phone",
	"email",
	"address",
	"emergency_contact",
	"medical_history",
}

// PHIFieldSet returns LogSensitiveFields as a lookup set.
func PHIFieldSet() map[string]bool {
	set := make(map[string]bool, len(LogSensitiveFields))
	for _, f := range LogSensitiveFields {
		set[f] = true
	}
	return set
}

// HashPatientID returns the first 16 hex characters of sha256(id). Logs and
// the audit trail carry this instead of the raw identifier.
func HashPatientID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}

// SanitizeForLogging returns a copy of data with sensitive fields masked.
// Strings keep their last four characters ("***1234"); strings of four
// characters or fewer become "***"; anything else becomes "***REDACTED***".
func SanitizeForLogging(data map[string]interface{}) map[string]interface{} {
	sensitive := PHIFieldSet()
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if !sensitive[strings.ToLower(k)] {
			out[k] = v
			continue
		}
		s, ok := v.(string)
		switch {
		case !ok:
			out[k] = "***REDACTED***"
		case len([]rune(s)) > 4:
			r := []rune(s)
			out[k] = "***" + string(r[len(r)-4:])
		default:
			out[k] = "***"
		}
	}
	return out
}
