package dialogue

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	emailLike    = regexp.MustCompile(`(?i)@| at | at the rate | dot | gmail | hotmail | yahoo `)
	longDigits   = regexp.MustCompile(`^\d{8,}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// validators are referenced by name from the script's field definitions.
var validators = map[string]func(string) bool{
	"":       func(v string) bool { return strings.TrimSpace(v) != "" },
	"name":   ValidName,
	"email":  ValidEmail,
	"mobile": ValidMobile,
}

var normalizers = map[string]func(string) string{
	"":      trimSpoken,
	"email": NormalizeSpokenEmail,
}

// trimSpoken drops surrounding space and the sentence punctuation that
// transcription services add to short answers.
func trimSpoken(v string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(v), ".,!?"))
}

// ValidName rejects answers that look like an email address, a phone
// number or a single letter.
func ValidName(v string) bool {
	v = strings.TrimSpace(v)
	if emailLike.MatchString(v) {
		return false
	}
	if longDigits.MatchString(whitespace.ReplaceAllString(v, "")) {
		return false
	}
	return utf8.RuneCountInString(v) >= 2
}

func ValidEmail(v string) bool {
	return emailPattern.MatchString(v)
}

// ValidMobile needs at least ten digits anywhere in the answer.
func ValidMobile(v string) bool {
	n := 0
	for _, r := range v {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n >= 10
}

func (f Field) normalize(v string) string {
	return normalizers[f.Normalize](v)
}

func (f Field) accepts(v string) bool {
	return validators[f.Validate](v)
}
