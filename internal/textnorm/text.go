// Package textnorm cleans raw recognized text.
//
// Cleaning is deterministic and idempotent: Clean(Clean(x)) == Clean(x).
// Rules run in a fixed order; changing the order changes the output.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultNoise lists glyphs that recognizers emit for table rules,
// box borders and other structural noise.
const DefaultNoise = "|¦‖[]{}【】〖〗"

// Options controls text cleaning.
type Options struct {
	NormalizeForm string        // "NFC" (default), "NFKC", "NFD", "NFKD", "none"
	Noise         string        // characters stripped by rule 1
	Spacing       SpacingPolicy // rule 4; nil means PreserveSpacing
}

// DefaultOptions returns the options used by Clean.
func DefaultOptions() Options {
	return Options{
		NormalizeForm: "NFC",
		Noise:         DefaultNoise,
		Spacing:       PreserveSpacing{},
	}
}

// Rule is one cleaning step.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Normalizer applies the cleaning rules in order.
type Normalizer struct {
	opts  Options
	rules []Rule
}

// New builds a normalizer for opts.
func New(opts Options) *Normalizer {
	if opts.Spacing == nil {
		opts.Spacing = PreserveSpacing{}
	}
	noise := noiseSet(opts.Noise)
	return &Normalizer{
		opts: opts,
		rules: []Rule{
			// Stripping can join a base letter with a combining mark, so the
			// result is normalized again before later rules classify runes.
			{Name: "strip-noise", Apply: func(s string) string {
				return applyNormalization(stripRunes(s, noise), opts.NormalizeForm)
			}},
			{Name: "unify-quotes", Apply: UnifyQuotes},
			{Name: "collapse-whitespace", Apply: CollapseWhitespace},
			{Name: "script-spacing:" + opts.Spacing.Name(), Apply: opts.Spacing.Apply},
			{Name: "punctuation-spacing", Apply: NormalizePunctuation},
			{Name: "collapse-blank-lines", Apply: CollapseBlankLines},
		},
	}
}

var defaultNormalizer = New(DefaultOptions())

// Clean cleans s with the default options.
func Clean(s string) string {
	return defaultNormalizer.Clean(s)
}

// Rules returns the ordered rule list.
func (n *Normalizer) Rules() []Rule {
	out := make([]Rule, len(n.rules))
	copy(out, n.rules)
	return out
}

// Clean prepares s and applies every rule in order.
func (n *Normalizer) Clean(s string) string {
	if s == "" {
		return s
	}
	s = Prepare(s, n.opts.NormalizeForm)
	for _, r := range n.rules {
		s = r.Apply(s)
	}
	return s
}

// Prepare drops zero-width and control characters, unifies line endings
// and applies Unicode normalization.
func Prepare(s, form string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return applyNormalization(removeInvisible(s), form)
}

func applyNormalization(s, form string) string {
	switch strings.ToUpper(form) {
	case "NFC", "":
		return norm.NFC.String(s)
	case "NFKC":
		return norm.NFKC.String(s)
	case "NFD":
		return norm.NFD.String(s)
	case "NFKD":
		return norm.NFKD.String(s)
	}
	return s
}

func removeInvisible(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\u200B', // ZERO WIDTH SPACE
			'\u200C', // ZERO WIDTH NON-JOINER
			'\u200D', // ZERO WIDTH JOINER
			'\u2060', // WORD JOINER
			'\uFEFF': // ZERO WIDTH NO-BREAK SPACE (BOM)
			continue
		}
		if r != '\n' && r != '\t' && unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func noiseSet(chars string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return set
}

// StripNoise removes DefaultNoise characters.
func StripNoise(s string) string {
	return stripRunes(s, defaultNoiseSet)
}

var defaultNoiseSet = noiseSet(DefaultNoise)

func stripRunes(s string, set map[rune]struct{}) string {
	if len(set) == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, drop := set[r]; drop {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var quoteReplacer = strings.NewReplacer(
	"\u201C", "\"", // “
	"\u201D", "\"", // ”
	"\u201E", "\"", // „
	"\u201F", "\"", // ‟
	"\u2033", "\"", // ″
	"\u301D", "\"", // 〝
	"\u301E", "\"", // 〞
	"\uFF02", "\"", // ＂
	"\u2018", "'", // ‘
	"\u2019", "'", // ’
	"\u201A", "'", // ‚
	"\u201B", "'", // ‛
	"\u2032", "'", // ′
	"\uFF07", "'", // ＇
)

// UnifyQuotes maps curly and typographic quotes to ASCII quotes.
func UnifyQuotes(s string) string {
	return quoteReplacer.Replace(s)
}

// CollapseWhitespace collapses horizontal whitespace runs to one space and
// trims every line. Line breaks are kept.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = collapseLine(line)
	}
	return strings.Join(lines, "\n")
}

func collapseLine(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	pending := false
	for _, r := range line {
		if unicode.IsSpace(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CollapseBlankLines reduces runs of blank lines to one and trims the text.
func CollapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
