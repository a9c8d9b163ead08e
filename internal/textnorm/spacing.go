package textnorm

import "strings"

// SpacingPolicy decides the spacing between adjacent scripts.
// Implementations must not touch line breaks and must be idempotent.
type SpacingPolicy interface {
	Name() string
	Apply(s string) string
}

// PreserveSpacing removes whitespace between two CJK characters and keeps
// exactly one space wherever whitespace separates anything else. It never
// inserts spaces that were not there.
type PreserveSpacing struct{}

func (PreserveSpacing) Name() string { return "preserve" }

func (PreserveSpacing) Apply(s string) string {
	return applySpacing(s, false)
}

// InsertSpacing behaves like PreserveSpacing and also inserts a single
// space where a CJK character directly touches a Latin letter or digit.
type InsertSpacing struct{}

func (InsertSpacing) Name() string { return "insert" }

func (InsertSpacing) Apply(s string) string {
	return applySpacing(s, true)
}

// SpacingPolicyByName returns the named policy; unknown names yield false.
func SpacingPolicyByName(name string) (SpacingPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "preserve":
		return PreserveSpacing{}, true
	case "insert":
		return InsertSpacing{}, true
	}
	return nil, false
}

func applySpacing(s string, insert bool) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if !isHorizontalSpace(r) {
			b.WriteRune(r)
			if insert && i+1 < len(rs) && needsBoundarySpace(r, rs[i+1]) {
				b.WriteByte(' ')
			}
			continue
		}

		j := i
		for j < len(rs) && isHorizontalSpace(rs[j]) {
			j++
		}
		// Runs touching a line edge are left to whitespace collapsing.
		if i == 0 || j == len(rs) || rs[i-1] == '\n' || rs[j] == '\n' {
			b.WriteString(string(rs[i:j]))
			i = j - 1
			continue
		}
		if !(isCJK(rs[i-1]) && isCJK(rs[j])) {
			b.WriteByte(' ')
		}
		i = j - 1
	}
	return b.String()
}

func needsBoundarySpace(a, b rune) bool {
	return (isCJK(a) && isLatinOrDigit(b)) || (isLatinOrDigit(a) && isCJK(b))
}
