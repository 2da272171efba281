package dialogue

import (
	"regexp"
	"strings"
)

var (
	bulletStars  = regexp.MustCompile(`(?m)^\s*\*`)
	markdownMark = regexp.MustCompile("[*`_#-]")
	selfIntro    = regexp.MustCompile(`(?i)I ?('m|am) Clara[.:,-]*`)
	apologies    = regexp.MustCompile(`(?i)apologize[^\n]*\n?`)
	leadingIntro = regexp.MustCompile("(?i)^I(?:['’`]?m| am) Clara[.,:;!? ]*")
)

// CleanAdvice strips markdown, self-introductions and apology lines from
// a generated property recommendation so it reads well aloud.
func CleanAdvice(s string) string {
	s = bulletStars.ReplaceAllString(s, "")
	s = markdownMark.ReplaceAllString(s, "")
	s = selfIntro.ReplaceAllString(s, "")
	s = apologies.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// StripSelfIntro removes a leading "I'm Clara." from a generated reply.
func StripSelfIntro(s string) string {
	return strings.TrimSpace(leadingIntro.ReplaceAllString(strings.TrimSpace(s), ""))
}
