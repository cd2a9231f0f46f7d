package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Fold case-folds text for case-insensitive scanning. Unicode case folding
// is used instead of ASCII lowering so folded keywords match folded scan
// text for non-ASCII alphabets as well.
func Fold(text string) string {
	return cases.Fold().String(text)
}

// SanitizeUTF8 drops invalid UTF-8 sequences so compiled scan patterns
// never see broken runes
func SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}

// ScanText joins record fields into one sanitized, case-folded blob for
// keyword scanning
func ScanText(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		cleaned = append(cleaned, SanitizeUTF8(p))
	}
	return Fold(strings.Join(cleaned, "\n"))
}

// DomainOf extracts the lowercased domain from an email address, or returns
// an empty string when the address has no domain part
func DomainOf(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
