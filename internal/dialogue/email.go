package dialogue

import (
	"regexp"
	"strings"
)

var (
	emailLeadIn   = regexp.MustCompile(`^.*\b(my|i am|it is|the email is|email is|this is)\b[\s:,-]*`)
	spokenAtRate  = regexp.MustCompile(` at the (?:rate|read|right|red|raid) `)
	spokenSymbols = []struct{ word, symbol string }{
		{" at ", "@"},
		{" dot ", "."},
		{" underscore ", "_"},
		{" dash ", "-"},
		{" plus ", "+"},
	}
)

// NormalizeSpokenEmail turns a dictated address such as
// "my email is ana dot lopez at gmail dot com" into "ana.lopez@gmail.com".
// Speech recognisers often hear "at the rate" as "at the read" or similar,
// so those variants are accepted too.
func NormalizeSpokenEmail(s string) string {
	s = strings.ToLower(trimSpoken(s))
	s = emailLeadIn.ReplaceAllString(s, "")
	s = spokenAtRate.ReplaceAllString(s, "@")
	for _, r := range spokenSymbols {
		s = strings.ReplaceAll(s, r.word, r.symbol)
	}
	return whitespace.ReplaceAllString(s, "")
}
