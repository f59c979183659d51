package matching

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// ComparatorType names a field comparator
type ComparatorType string

const (
	ComparatorExact        ComparatorType = "exact"
	ComparatorDice         ComparatorType = "dice"
	ComparatorLevenshtein  ComparatorType = "levenshtein"
	ComparatorTokenJaccard ComparatorType = "token_jaccard"
	ComparatorSetJaccard   ComparatorType = "set_jaccard"
	ComparatorDate         ComparatorType = "date"
)

// FieldRule binds a participant field to its comparator and weight
type FieldRule struct {
	Field      models.FieldName `json:"field"`
	Comparator ComparatorType   `json:"comparator"`
	Weight     float64          `json:"weight"`
}

// WeightTable is a version-pinned, ordered list of field rules. Rules are evaluated in
// order so that score summation is reproducible.
type WeightTable struct {
	Version string      `json:"version"`
	Rules   []FieldRule `json:"rules"`
}

// WeightTableV1 is the default participant weight table
var WeightTableV1 = WeightTable{
	Version: "v1",
	Rules: []FieldRule{
		{Field: models.FieldFirstName, Comparator: ComparatorDice, Weight: 1.0},
		{Field: models.FieldMiddleName, Comparator: ComparatorLevenshtein, Weight: 0.5},
		{Field: models.FieldLastName, Comparator: ComparatorDice, Weight: 1.0},
		{Field: models.FieldDateOfBirth, Comparator: ComparatorDate, Weight: 1.0},
		{Field: models.FieldAddress, Comparator: ComparatorTokenJaccard, Weight: 0.75},
		{Field: models.FieldIdentificationNumbers, Comparator: ComparatorSetJaccard, Weight: 1.0},
		{Field: models.FieldContacts, Comparator: ComparatorSetJaccard, Weight: 0.75},
		{Field: models.FieldNationalities, Comparator: ComparatorSetJaccard, Weight: 0.25},
		{Field: models.FieldLanguages, Comparator: ComparatorSetJaccard, Weight: 0.25},
	},
}

var weightTables = map[string]WeightTable{
	WeightTableV1.Version: WeightTableV1,
}

// LookupWeightTable returns the weight table pinned to version
func LookupWeightTable(version string) (WeightTable, error) {
	table, ok := weightTables[version]
	if !ok {
		return WeightTable{}, fmt.Errorf("unknown weight table version %q", version)
	}
	return table, nil
}

// Validate checks that every rule names a known field, a comparator suited to that
// field and a non-negative weight
func (t WeightTable) Validate() error {
	if len(t.Rules) == 0 {
		return fmt.Errorf("weight table %q has no rules", t.Version)
	}
	seen := make(map[models.FieldName]struct{}, len(t.Rules))
	for _, rule := range t.Rules {
		if _, dup := seen[rule.Field]; dup {
			return fmt.Errorf("weight table %q lists field %s twice", t.Version, rule.Field)
		}
		seen[rule.Field] = struct{}{}

		if rule.Weight < 0 {
			return fmt.Errorf("weight table %q: field %s has negative weight %v", t.Version, rule.Field, rule.Weight)
		}
		kind, ok := fieldKinds[rule.Field]
		if !ok {
			return fmt.Errorf("weight table %q: unknown field %s", t.Version, rule.Field)
		}
		if comparatorKinds[rule.Comparator] != kind {
			return fmt.Errorf("weight table %q: comparator %s cannot score field %s", t.Version, rule.Comparator, rule.Field)
		}
	}
	return nil
}

type valueKind int

const (
	kindText valueKind = iota + 1
	kindSet
)

var fieldKinds = map[models.FieldName]valueKind{
	models.FieldFirstName:             kindText,
	models.FieldMiddleName:            kindText,
	models.FieldLastName:              kindText,
	models.FieldDateOfBirth:           kindText,
	models.FieldAddress:               kindSet,
	models.FieldIdentificationNumbers: kindSet,
	models.FieldContacts:              kindSet,
	models.FieldNationalities:         kindSet,
	models.FieldLanguages:             kindSet,
}

var comparatorKinds = map[ComparatorType]valueKind{
	ComparatorExact:        kindText,
	ComparatorDice:         kindText,
	ComparatorLevenshtein:  kindText,
	ComparatorDate:         kindText,
	ComparatorTokenJaccard: kindSet,
	ComparatorSetJaccard:   kindSet,
}

type fieldValue struct {
	text string
	set  []string
}

func (v fieldValue) present() bool {
	return v.text != "" || len(v.set) > 0
}

func valueOf(p normalizers.Participant, field models.FieldName) fieldValue {
	switch field {
	case models.FieldFirstName:
		return fieldValue{text: p.FirstName}
	case models.FieldMiddleName:
		return fieldValue{text: p.MiddleName}
	case models.FieldLastName:
		return fieldValue{text: p.LastName}
	case models.FieldDateOfBirth:
		return fieldValue{text: p.DateOfBirth}
	case models.FieldAddress:
		return fieldValue{set: p.Address}
	case models.FieldIdentificationNumbers:
		return fieldValue{set: p.IdentificationNumbers}
	case models.FieldContacts:
		return fieldValue{set: p.Contacts}
	case models.FieldNationalities:
		return fieldValue{set: p.Nationalities}
	case models.FieldLanguages:
		return fieldValue{set: p.Languages}
	}
	return fieldValue{}
}

func compare(comparator ComparatorType, a, b fieldValue) float64 {
	switch comparator {
	case ComparatorExact:
		return ExactMatch(a.text, b.text)
	case ComparatorDice:
		return Dice(a.text, b.text)
	case ComparatorLevenshtein:
		return Levenshtein(a.text, b.text)
	case ComparatorDate:
		return DateEqual(a.text, b.text)
	case ComparatorTokenJaccard:
		return TokenJaccard(a.set, b.set)
	case ComparatorSetJaccard:
		return SetJaccard(a.set, b.set)
	}
	return 0.0
}
