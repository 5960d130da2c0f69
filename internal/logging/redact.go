package logging

import (
	"regexp"
	"strings"
)

var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|api[_-]?secret|access[_-]?token|enctoken|authorization|password)(["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`)

// MaskCredential keeps at most the first and last four characters of a
// secret so it can still be told apart from others.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// MaskSecrets masks credential values embedded in free text, such as an
// error body echoed back by the backend.
func MaskSecrets(input string) string {
	return secretPattern.ReplaceAllStringFunc(input, func(match string) string {
		m := secretPattern.FindStringSubmatch(match)
		return m[1] + m[2] + MaskCredential(m[3])
	})
}
