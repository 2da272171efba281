package dialogue

import (
	"regexp"
	"strings"
)

type IntentKind string

const (
	IntentChat     IntentKind = "chat"
	IntentCancel   IntentKind = "cancel"
	IntentRegister IntentKind = "register"
	IntentLogin    IntentKind = "login"
	IntentLogout   IntentKind = "logout"
	IntentCity     IntentKind = "city_search"
)

type Intent struct {
	Kind IntentKind
	City string
}

var (
	registerWords = regexp.MustCompile(`(?i)register|sign\s?up`)
	logoutWords   = regexp.MustCompile(`(?i)\blog\s?out\b|\bsign\s?out\b`)
	loginWords    = regexp.MustCompile(`(?i)log\s?in|\bsign\s?in\b`)
)

// DetectIntent classifies a free-form message. Registration wins over login
// when both appear, and a city is only looked for when neither does.
func DetectIntent(message string, cities []string) Intent {
	m := strings.TrimSpace(message)
	switch {
	case m == "":
		return Intent{Kind: IntentChat}
	case IsCancel(m):
		return Intent{Kind: IntentCancel}
	case registerWords.MatchString(m):
		return Intent{Kind: IntentRegister}
	case logoutWords.MatchString(m):
		return Intent{Kind: IntentLogout}
	case loginWords.MatchString(m):
		return Intent{Kind: IntentLogin}
	}
	if city, ok := ExtractCity(m, cities); ok {
		return Intent{Kind: IntentCity, City: city}
	}
	return Intent{Kind: IntentChat}
}

// IsCancel matches a bare "cancel" or "stop".
func IsCancel(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, ".!")
	return m == "cancel" || m == "stop"
}

// ExtractCity returns the first city in the list that appears anywhere in
// the message, ignoring case.
func ExtractCity(message string, cities []string) (string, bool) {
	m := strings.ToLower(message)
	for _, c := range cities {
		if c != "" && strings.Contains(m, strings.ToLower(c)) {
			return c, true
		}
	}
	return "", false
}
