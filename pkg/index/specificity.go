package index

import (
	"fmt"
	"regexp/syntax"
	"strings"
)

// Specificity scores how constrained a citation pattern is. Higher scores
// admit fewer strings: a fixed prefix outranks a bare digit count, and an
// exact length outranks a range, which outranks an open-ended repeat.
//
// Each position a match must fill contributes:
//   - 16 for a literal rune
//   - 8 for a class of at most 10 runes (digits)
//   - 4 for a class of at most 64 runes (letters, alphanumerics, \w)
//   - 0 for anything wider
//
// Repeats count their minimum, optional parts count nothing and an
// alternation counts its least specific branch. The total is then reduced by
// 1 when the pattern has a bounded optional part ({8,10}, X?) and by 2 when
// it has an unbounded one (+, *, {8,}). The reduction is smaller than any
// position's worth, so it only separates patterns that constrain the same
// positions.
func Specificity(pattern string) (int, error) {
	re, err := syntax.Parse(stripAnchors(pattern), syntax.Perl)
	if err != nil {
		return 0, fmt.Errorf("parsing pattern %q: %w", pattern, err)
	}
	re = re.Simplify()
	return score(re) - openness(re), nil
}

func score(re *syntax.Regexp) int {
	switch re.Op {
	case syntax.OpLiteral:
		return 16 * len(re.Rune)
	case syntax.OpCharClass:
		return classScore(re.Rune)
	case syntax.OpCapture:
		return score(re.Sub[0])
	case syntax.OpConcat:
		total := 0
		for _, sub := range re.Sub {
			total += score(sub)
		}
		return total
	case syntax.OpAlternate:
		least := -1
		for _, sub := range re.Sub {
			if s := score(sub); least < 0 || s < least {
				least = s
			}
		}
		if least < 0 {
			return 0
		}
		return least
	case syntax.OpPlus:
		return score(re.Sub[0])
	case syntax.OpRepeat:
		return re.Min * score(re.Sub[0])
	}
	// Star, Quest, anchors, boundaries, any-char and empty match constrain
	// nothing a match has to contain.
	return 0
}

// openness is 0 for a pattern whose matches all have one length, 1 when it
// has bounded optional parts and 2 when a repeat is unbounded.
func openness(re *syntax.Regexp) int {
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		return 2
	case syntax.OpRepeat:
		if re.Max < 0 {
			return 2
		}
		if re.Max != re.Min {
			return max(1, openness(re.Sub[0]))
		}
	case syntax.OpQuest:
		return max(1, openness(re.Sub[0]))
	}
	most := 0
	for _, sub := range re.Sub {
		most = max(most, openness(sub))
	}
	return most
}

func classScore(ranges []rune) int {
	size := 0
	for i := 0; i+1 < len(ranges); i += 2 {
		size += int(ranges[i+1]-ranges[i]) + 1
		if size > 64 {
			return 0
		}
	}
	switch {
	case size == 1:
		return 16
	case size <= 10:
		return 8
	default:
		return 4
	}
}

// stripAnchors removes one unescaped leading ^ and trailing $. Patterns are
// always matched anchored, so "^\d{8}$" and "\d{8}" are the same pattern.
func stripAnchors(pattern string) string {
	p := strings.TrimPrefix(pattern, "^")
	if strings.HasSuffix(p, "$") && !escaped(p, len(p)-1) {
		p = p[:len(p)-1]
	}
	return p
}

// escaped reports whether the byte at i is preceded by an odd number of
// backslashes.
func escaped(s string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// normalizedKey renders the pattern in a canonical form so that different
// spellings of the same language ("[0-9]{8}", "\d{8}", "^\d{8}$") compare
// equal when looking for ambiguous duplicates.
func normalizedKey(pattern string) (string, error) {
	re, err := syntax.Parse(stripAnchors(pattern), syntax.Perl|syntax.FoldCase)
	if err != nil {
		return "", err
	}
	return re.Simplify().String(), nil
}
