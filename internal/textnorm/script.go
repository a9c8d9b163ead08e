package textnorm

import "unicode"

// isCJK reports whether r is a Han, Hiragana or Katakana character.
// Hangul is excluded because Korean separates words with spaces.
func isCJK(r rune) bool {
	switch {
	case unicode.Is(unicode.Han, r),
		unicode.Is(unicode.Hiragana, r),
		unicode.Is(unicode.Katakana, r):
		return true
	case r == 'ー', r == '々':
		return true
	}
	return false
}

// isLatinOrDigit reports whether r is a Latin letter or a decimal digit.
func isLatinOrDigit(r rune) bool {
	return unicode.Is(unicode.Latin, r) || unicode.IsDigit(r)
}

// isHorizontalSpace reports whitespace other than line breaks.
func isHorizontalSpace(r rune) bool {
	return r != '\n' && unicode.IsSpace(r)
}

// isWordRune reports runes that can start or end a word of text.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
