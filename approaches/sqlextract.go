package approaches

import (
	"regexp"
	"strings"
)

var (
	fenceRe  = regexp.MustCompile("(?s)```(?:sql|SQL|tsql)?\\s*\\n?(.*?)```")
	selectRe = regexp.MustCompile(`(?im)^\s*(SELECT|WITH)\b`)
	inlineRe = regexp.MustCompile(`(?i)\bSELECT\b`)
)

// ExtractSQL pulls the T-SQL statement out of a model reply. Despite the
// prompt asking for bare SQL, models answer with fenced SQL or SQL wrapped
// in prose often enough that all three forms are handled. A reply carrying
// the NO_QUERY marker yields an empty string: the question needs no
// retrieval.
func ExtractSQL(reply string) string {
	text := strings.TrimSpace(reply)
	if text == "" {
		return ""
	}
	if strings.Contains(strings.ToUpper(text), "NO_QUERY") {
		return ""
	}

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		if fenced := strings.TrimSpace(m[1]); fenced != "" {
			text = fenced
		}
	}

	// Statements usually start on their own line when prose precedes
	// them; fall back to the first inline SELECT. The read-only guard
	// catches whatever slips through here.
	if loc := selectRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[0]:])
	}
	if loc := inlineRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[0]:])
	}
	return text
}
