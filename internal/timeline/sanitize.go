package timeline

import (
	"strings"
	"unicode"
)

// nameSafePunct is the punctuation kept as-is by SanitizeName.
const nameSafePunct = " -_.,()"

// SanitizeName makes s safe for EDL comment lines and file names. Control
// characters are dropped and anything that is not a letter, digit or
// nameSafePunct becomes '_'. maxLen counts runes; 0 means unlimited.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(nameSafePunct, r):
			return r
		default:
			return '_'
		}
	}, s))

	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
