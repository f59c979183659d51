package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDice(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "sarah", "sarah", 1.0},
		{"one character dropped", "Sarah", "Sara", 6.0 / 7.0},
		{"disjoint", "abc", "xyz", 0.0},
		{"repeated bigrams counted once each", "aaaa", "aa", 2.0 / 4.0},
		{"single characters equal", "a", "a", 1.0},
		{"single characters differ", "a", "b", 0.0},
		{"one side too short", "a", "ab", 0.0},
		{"both empty", "", "", 0.0},
		{"one empty", "", "sarah", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dice(tt.a, tt.b), 1e-9)
			assert.InDelta(t, Dice(tt.a, tt.b), Dice(tt.b, tt.a), 1e-12, "dice must be symmetric")
		})
	}
}

func TestDiceSelfSimilarity(t *testing.T) {
	for _, s := range []string{"x", "jo", "maría josé", "o'neil", "李小龍"} {
		assert.Equal(t, 1.0, Dice(s, s), s)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"both empty", "", "", 1.0},
		{"one empty", "", "ann", 0.0},
		{"identical", "ann", "ann", 1.0},
		{"one substitution", "ann", "anne", 0.75},
		{"kitten sitting", "kitten", "sitting", 1.0 - 3.0/7.0},
		{"multibyte runes", "josé", "jose", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Levenshtein(tt.a, tt.b), 1e-9)
		})
	}
}

func TestLevenshteinCountsRunes(t *testing.T) {
	assert.InDelta(t, 1.0-3.0/7.0, Levenshtein("kitten", "sitting"), 1e-9)
	assert.InDelta(t, 0.75, Levenshtein("josé", "jose"), 1e-9)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"equal sets", []string{"123", "main", "street"}, []string{"123", "main", "street"}, 1.0},
		{"partial overlap", []string{"a", "b"}, []string{"b", "c"}, 1.0 / 3.0},
		{"both empty", nil, nil, 0.0},
		{"one empty", []string{"a"}, nil, 0.0},
		{"duplicates ignored", []string{"a", "a"}, []string{"a"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SetJaccard(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, TokenJaccard(tt.b, tt.a), 1e-9)
		})
	}
}

func TestExactAndDate(t *testing.T) {
	assert.Equal(t, 1.0, ExactMatch("x", "x"))
	assert.Equal(t, 0.0, ExactMatch("x", "y"))
	assert.Equal(t, 0.0, ExactMatch("", ""))
	assert.Equal(t, 1.0, DateEqual("1990-04-12", "1990-04-12"))
	assert.Equal(t, 0.0, DateEqual("1990-04-12", "1990-04-13"))
	assert.Equal(t, 0.0, DateEqual("", "1990-04-12"))
	assert.Equal(t, 0.0, DateEqual("", ""))
}

func TestSoundex(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Ashcraft", "A261"},
		{"Tymczak", "T522"},
		{"Pfister", "P236"},
		{"Lee", "L000"},
		{"  o'hara", "O600"},
		{"", ""},
		{"123", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Soundex(tt.input))
		})
	}
}
