package models

import "time"

// FieldName identifies a participant field taking part in scoring
type FieldName string

const (
	FieldFirstName             FieldName = "first_name"
	FieldMiddleName            FieldName = "middle_name"
	FieldLastName              FieldName = "last_name"
	FieldDateOfBirth           FieldName = "date_of_birth"
	FieldAddress               FieldName = "address"
	FieldIdentificationNumbers FieldName = "identification_numbers"
	FieldContacts              FieldName = "contacts"
	FieldNationalities         FieldName = "nationalities"
	FieldLanguages             FieldName = "languages"
)

// PairKey is the canonical, order-independent key of two participant identifiers
type PairKey struct {
	IDLow  string `json:"id_low" db:"id_low"`
	IDHigh string `json:"id_high" db:"id_high"`
}

// NewPairKey orders the two identifiers lexicographically
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{IDLow: a, IDHigh: b}
}

// Valid reports whether the key names two distinct, non-empty identifiers
func (k PairKey) Valid() bool {
	return k.IDLow != "" && k.IDHigh != "" && k.IDLow != k.IDHigh
}

// References reports whether either half of the key equals id
func (k PairKey) References(id string) bool {
	return k.IDLow == id || k.IDHigh == id
}

func (k PairKey) String() string {
	return k.IDLow + ":" + k.IDHigh
}

// Less orders keys by id_low then id_high
func (k PairKey) Less(o PairKey) bool {
	if k.IDLow != o.IDLow {
		return k.IDLow < o.IDLow
	}
	return k.IDHigh < o.IDHigh
}

// FieldScore is the similarity of a single field together with the weight it was given
type FieldScore struct {
	Field      FieldName `json:"field"`
	Similarity float64   `json:"similarity"`
	Weight     float64   `json:"weight"`
}

// DuplicatePair is a scored candidate pair held in the duplicate index
type DuplicatePair struct {
	IDLow         string                `json:"id_low" db:"id_low"`
	IDHigh        string                `json:"id_high" db:"id_high"`
	WeightedScore float64               `json:"weighted_score" db:"weighted_score"`
	FieldScores   map[FieldName]float64 `json:"field_scores" db:"-"`
	CreatedAt     time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at" db:"updated_at"`
}

// Key returns the canonical pair key of the row
func (p DuplicatePair) Key() PairKey {
	return PairKey{IDLow: p.IDLow, IDHigh: p.IDHigh}
}

// SameScores reports whether two rows carry identical scores and breakdowns
func (p DuplicatePair) SameScores(o DuplicatePair) bool {
	if p.WeightedScore != o.WeightedScore || len(p.FieldScores) != len(o.FieldScores) {
		return false
	}
	for field, score := range p.FieldScores {
		other, ok := o.FieldScores[field]
		if !ok || other != score {
			return false
		}
	}
	return true
}

// DuplicatePairView is a duplicate pair joined with both participant snapshots
type DuplicatePairView struct {
	DuplicatePair
	Low  *ParticipantSnapshot `json:"low"`
	High *ParticipantSnapshot `json:"high"`
}

// Pagination bounds a list query
type Pagination struct {
	Offset int `json:"offset" query:"offset" validate:"min=0"`
	Limit  int `json:"limit" query:"limit" validate:"min=0,max=500"`
}

// DuplicatePairPage is a page of active duplicate pairs
type DuplicatePairPage struct {
	Items      []DuplicatePairView `json:"items"`
	TotalCount int                 `json:"total_count"`
	Offset     int                 `json:"offset"`
	Limit      int                 `json:"limit"`
}

// Candidate is a scored pair returned by a duplicate check
type Candidate struct {
	ParticipantID string                `json:"participant_id"`
	WeightedScore float64               `json:"weighted_score"`
	FieldScores   map[FieldName]float64 `json:"field_scores"`
	Breakdown     []FieldScore          `json:"breakdown"`
}
