package textnorm

import (
	"strings"
	"unicode"
)

// noSpaceBefore lists punctuation that attaches to the preceding word.
var noSpaceBefore = runeSet(",.;:!?…、。，；：！？．")

// sentenceEnd lists sentence punctuation followed by exactly one space.
var sentenceEnd = runeSet(".!?。！？．")

var cjkSentenceEnd = runeSet("。！？．")

func runeSet(chars string) map[rune]struct{} {
	m := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		m[r] = struct{}{}
	}
	return m
}

func inSet(set map[rune]struct{}, r rune) bool {
	_, ok := set[r]
	return ok
}

// NormalizePunctuation removes whitespace before punctuation and leaves
// exactly one space after sentence punctuation that is followed by more
// text on the same line. Decimal numbers, abbreviations and URLs keep
// their dots untouched.
func NormalizePunctuation(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = spaceAfterSentences(dropSpaceBeforePunct([]rune(line)))
	}
	return strings.Join(lines, "\n")
}

func dropSpaceBeforePunct(rs []rune) []rune {
	out := make([]rune, 0, len(rs))
	for i := 0; i < len(rs); i++ {
		if !isHorizontalSpace(rs[i]) {
			out = append(out, rs[i])
			continue
		}
		j := i
		for j < len(rs) && isHorizontalSpace(rs[j]) {
			j++
		}
		if len(out) > 0 && j < len(rs) && attachesLeft(rs, j) {
			i = j - 1
			continue
		}
		out = append(out, rs[i:j]...)
		i = j - 1
	}
	return out
}

// attachesLeft reports whether the punctuation at rs[j] should touch the
// word before it. ".5" and ",5" are numbers, not punctuation.
func attachesLeft(rs []rune, j int) bool {
	p := rs[j]
	if !inSet(noSpaceBefore, p) {
		return false
	}
	if (p == '.' || p == ',') && j+1 < len(rs) && unicode.IsDigit(rs[j+1]) {
		return false
	}
	return true
}

func spaceAfterSentences(rs []rune) string {
	var b strings.Builder
	b.Grow(len(rs) + 8)
	for i := 0; i < len(rs); i++ {
		b.WriteRune(rs[i])
		if !inSet(sentenceEnd, rs[i]) {
			continue
		}
		j := i + 1
		for j < len(rs) && isHorizontalSpace(rs[j]) {
			j++
		}
		switch {
		case j == len(rs):
			// Trailing whitespace is handled by line trimming.
		case j > i+1:
			b.WriteByte(' ')
			i = j - 1
		case wantsSpaceAfter(rs, i):
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func wantsSpaceAfter(rs []rune, i int) bool {
	next := rs[i+1]
	if !isWordRune(next) {
		return false
	}
	if inSet(cjkSentenceEnd, rs[i]) {
		return true
	}
	if !unicode.IsUpper(next) && !isCJK(next) {
		return false
	}
	if rs[i] == '.' {
		// "U.S.A" and "e.g.X" have single letters before the dot.
		return i >= 2 && unicode.IsLetter(rs[i-1]) && unicode.IsLetter(rs[i-2])
	}
	return true
}
