package location

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/poiesic/succession/core"
)

var delimiterPattern = regexp.MustCompile(`[,>/\n;|]+`)

const regionMarker = "region"

// Parser splits raw location strings into states, cities and regions.
// The zero value is ready to use.
type Parser struct{}

// Parse classifies every token of raw. Tokens are separated by ',', '>', '/',
// ';', '|' or newlines; a token without delimiters that names several states
// ("Bayern Hessen") is split on the embedded state names. Tokens starting with
// "region" become regions, known states become states, anything else a city.
// Empty and non-alphabetic tokens are dropped.
func (Parser) Parse(raw string) core.ParsedLocation {
	loc := core.NewParsedLocation()
	if strings.TrimSpace(raw) == "" {
		return loc
	}

	for _, part := range delimiterPattern.Split(strings.ToLower(raw), -1) {
		part = cleanToken(part)
		if part == "" {
			continue
		}
		if _, ok := anywhereMarkers[part]; ok {
			loc.Anywhere = true
			continue
		}
		for _, token := range splitEmbeddedStates(part) {
			classify(&loc, token)
		}
	}
	return loc
}

func classify(loc *core.ParsedLocation, token string) {
	if rest, ok := strings.CutPrefix(token, regionMarker); ok && (rest == "" || rest[0] == ' ') {
		if rest = strings.TrimSpace(rest); rest != "" {
			loc.Regions.Add(rest)
		}
		return
	}
	if state, ok := CanonicalState(token); ok {
		loc.States.Add(state)
		return
	}
	loc.Cities.Add(token)
}

// splitEmbeddedStates breaks "münchen bayern" into ["münchen", "bayern"] and
// "bayern baden-württemberg" into two states. Two-word aliases are matched
// before single words.
func splitEmbeddedStates(token string) []string {
	if _, ok := CanonicalState(token); ok {
		return []string{token}
	}

	words := strings.Fields(token)
	var out, pending []string
	flush := func() {
		if len(pending) > 0 {
			out = append(out, strings.Join(pending, " "))
			pending = pending[:0]
		}
	}

	for i := 0; i < len(words); i++ {
		if i+1 < len(words) {
			if _, ok := CanonicalState(words[i] + " " + words[i+1]); ok {
				flush()
				out = append(out, words[i]+" "+words[i+1])
				i++
				continue
			}
		}
		if _, ok := CanonicalState(words[i]); ok && words[i] != regionMarker {
			flush()
			out = append(out, words[i])
			continue
		}
		pending = append(pending, words[i])
	}
	flush()
	return out
}

// cleanToken drops digits and punctuation other than '-' and '.', and
// collapses whitespace. Postal codes in "80331 München" are removed this way.
func cleanToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	hasLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
			b.WriteRune(r)
		case r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	if !hasLetter {
		return ""
	}
	return strings.Trim(strings.Join(strings.Fields(b.String()), " "), "-. ")
}
