package subject

import (
	"strings"
	"unicode"
)

const maxSubjectIDDigits = 7

// SubjectID derives the external subject identifier from an internal user id:
// the decimal digits of the id in original order, truncated to the first
// seven. The transform is lossy and collision-prone, but external callers
// already hold identifiers computed this way, so it must not change.
func SubjectID(internalID string) string {
	var digits strings.Builder
	count := 0
	for _, r := range internalID {
		if !unicode.IsDigit(r) {
			continue
		}
		digits.WriteRune(r)
		count++
		if count == maxSubjectIDDigits {
			break
		}
	}
	return digits.String()
}
