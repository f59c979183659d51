package matching

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Comparators map two normalized values to a similarity in [0,1]. An empty string or
// empty set is an absent value. All of them are pure and total.

// ExactMatch returns 1.0 when both values are present and equal
func ExactMatch(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// Dice returns the Sørensen-Dice coefficient of the bigram multisets of a and b.
// Strings shorter than two characters have no bigrams; when neither side has any the
// raw strings are compared exactly.
func Dice(a, b string) float64 {
	bigramsA := bigrams(a)
	bigramsB := bigrams(b)

	if len(bigramsA) == 0 && len(bigramsB) == 0 {
		return ExactMatch(a, b)
	}
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return 0.0
	}

	counts := make(map[string]int, len(bigramsA))
	for _, bg := range bigramsA {
		counts[bg]++
	}

	intersection := 0
	for _, bg := range bigramsB {
		if counts[bg] > 0 {
			counts[bg]--
			intersection++
		}
	}

	return float64(2*intersection) / float64(len(bigramsA)+len(bigramsB))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

// Levenshtein returns 1 - distance/max(len(a), len(b)). Two empty strings are identical.
func Levenshtein(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// TokenJaccard returns |A ∩ B| / |A ∪ B| over address token sets
func TokenJaccard(a, b []string) float64 {
	return jaccard(a, b)
}

// SetJaccard returns |A ∩ B| / |A ∪ B| over normalized value sets
func SetJaccard(a, b []string) float64 {
	return jaccard(a, b)
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(a))
	for _, v := range a {
		setA[v] = struct{}{}
	}

	union := len(setA)
	intersection := 0
	seenB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, dup := seenB[v]; dup {
			continue
		}
		seenB[v] = struct{}{}
		if _, ok := setA[v]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// DateEqual returns 1.0 when both calendar dates are present and equal
func DateEqual(a, b string) float64 {
	return ExactMatch(a, b)
}

// Soundex returns the four character American Soundex code of a name, or an empty
// string when the name has no letters
func Soundex(str string) string {
	str = strings.ToUpper(str)

	var first rune
	rest := ""
	for i, r := range str {
		if unicode.IsLetter(r) {
			first = r
			rest = str[i+len(string(r)):]
			break
		}
	}
	if first == 0 {
		return ""
	}

	result := []rune{first}
	prevCode := soundexCode(first)
	for _, char := range rest {
		if len(result) == 4 {
			break
		}
		if !unicode.IsLetter(char) {
			continue
		}
		code := soundexCode(char)
		// H and W do not separate consonants sharing a code
		if char == 'H' || char == 'W' {
			continue
		}
		if code != '0' && code != prevCode {
			result = append(result, code)
		}
		prevCode = code
	}

	for len(result) < 4 {
		result = append(result, '0')
	}
	return string(result)
}

func soundexCode(char rune) rune {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return '0'
	}
}
