// Package normalizers provides the canonical forms participant fields are compared in
package normalizers

import (
	"sort"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Name trims, collapses internal whitespace and lowercases
func Name(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// addressSubstitutions are applied in order to whole address tokens
var addressSubstitutions = []struct {
	from string
	to   string
}{
	{"rd", "road"},
	{"st", "street"},
	{"ave", "avenue"},
	{"pl", "place"},
	{"dr", "drive"},
	{"blvd", "boulevard"},
	{"ct", "court"},
	{"sq", "square"},
	{"apt", "apartment"},
}

// Address lowercases a free-text address, expands street suffix abbreviations and
// returns the sorted set of its tokens
func Address(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, token := range fields {
		token = strings.TrimRight(token, ".,")
		if token == "" {
			continue
		}
		for _, sub := range addressSubstitutions {
			if token == sub.from {
				token = sub.to
			}
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
}

// Date returns the calendar date of s as YYYY-MM-DD, or an empty string when s is
// unset or cannot be read as a date
func Date(s string) string {
	t, ok := ParseDate(s)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}

// ParseDate reads s in any of the accepted date layouts, dropping the time component
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Code trims and lowercases a nationality or language code
func Code(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Contact trims and lowercases a contact value such as an email address or phone number
func Contact(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Identifier keeps identification numbers exact apart from surrounding whitespace
func Identifier(s string) string {
	return strings.TrimSpace(s)
}

// Normalizer maps a raw field value to its canonical form
type Normalizer func(string) string

// Set applies fn to every value and returns the sorted set of non-empty results
func Set(values []string, fn Normalizer) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = fn(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Participant holds every scoring field of a participant in normalized form
type Participant struct {
	ID                    string
	FirstName             string
	MiddleName            string
	LastName              string
	DateOfBirth           string
	Address               []string
	IdentificationNumbers []string
	Contacts              []string
	Nationalities         []string
	Languages             []string
}

// NormalizeParticipant normalizes every field of a snapshot once
func NormalizeParticipant(p models.ParticipantSnapshot) Participant {
	return Participant{
		ID:                    p.ID,
		FirstName:             Name(p.FirstName),
		MiddleName:            Name(p.MiddleName),
		LastName:              Name(p.LastName),
		DateOfBirth:           Date(p.DateOfBirth),
		Address:               Address(p.Address),
		IdentificationNumbers: Set(p.IdentificationNumbers, Identifier),
		Contacts:              Set(p.Contacts, Contact),
		Nationalities:         Set(p.Nationalities, Code),
		Languages:             Set(p.Languages, Code),
	}
}
