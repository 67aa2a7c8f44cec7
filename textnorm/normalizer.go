package textnorm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/german"

	"github.com/poiesic/succession/core"
)

// DefaultLongDigitRun is the shortest digit run treated as noise (phone
// numbers, register ids) and removed before other characters are filtered.
const DefaultLongDigitRun = 10

var (
	urlPattern   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	emailPattern = regexp.MustCompile(`\S+@\S+`)
)

// Normalizer turns free text into a canonical, comparable form.
// A Normalizer is immutable after construction and safe for concurrent use.
type Normalizer struct {
	stopwords    map[string]struct{}
	stem         bool
	digitPattern *regexp.Regexp
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithStemming enables German Snowball stemming of every remaining word.
func WithStemming(enabled bool) Option {
	return func(n *Normalizer) {
		n.stem = enabled
	}
}

// WithStopwords adds words to the built-in German stopword list.
func WithStopwords(words ...string) Option {
	return func(n *Normalizer) {
		for _, w := range words {
			n.stopwords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
		}
	}
}

// WithLongDigitRun sets the minimum length of digit runs stripped as noise.
func WithLongDigitRun(n int) Option {
	return func(norm *Normalizer) {
		if n < 1 {
			n = 1
		}
		norm.digitPattern = digitRunPattern(n)
	}
}

// New creates a Normalizer with the German stopword list and no stemming.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		stopwords:    make(map[string]struct{}, len(germanStopwords)),
		digitPattern: digitRunPattern(DefaultLongDigitRun),
	}
	for _, w := range germanStopwords {
		n.stopwords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func digitRunPattern(n int) *regexp.Regexp {
	return regexp.MustCompile(`\d{` + strconv.Itoa(n) + `,}`)
}

// Normalize lowercases text, strips URLs, e-mail addresses and long digit
// runs, keeps only letters (including ä, ö, ü, ß), collapses whitespace and
// removes stopwords. Empty input yields an empty string.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = emailPattern.ReplaceAllString(text, " ")
	text = n.digitPattern.ReplaceAllString(text, " ")
	text = keepLetters(text)

	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if _, stop := n.stopwords[w]; stop {
			continue
		}
		if n.stem {
			w = stem(w)
		}
		if w != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Join normalizes each part and joins the non-empty results with a space.
func (n *Normalizer) Join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if norm := n.Normalize(p); norm != "" {
			out = append(out, norm)
		}
	}
	return strings.Join(out, " ")
}

// ListingText returns the normalized text of a listing: title, summary,
// long description and industry text in that order.
func (n *Normalizer) ListingText(l *core.Listing) string {
	return n.Join(l.Title, l.Summary, l.LongDescription, l.IndustryText)
}

// keepLetters replaces everything except a-z, German umlauts, ß and
// whitespace with a space. Input must already be lowercase.
func keepLetters(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r == 'ä' || r == 'ö' || r == 'ü' || r == 'ß':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func stem(word string) string {
	env := snowballstem.NewEnv(word)
	german.Stem(env)
	return env.Current()
}
