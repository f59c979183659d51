package models

import "time"

// ResolutionKind is the operator decision recorded for a pair
type ResolutionKind string

const (
	ResolutionMerge  ResolutionKind = "merge"
	ResolutionIgnore ResolutionKind = "ignore"
)

// Resolution is an immutable record of an operator decision about a pair
type Resolution struct {
	IDLow     string         `json:"id_low" db:"id_low"`
	IDHigh    string         `json:"id_high" db:"id_high"`
	Kind      ResolutionKind `json:"kind" db:"kind"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// Key returns the canonical pair key of the resolution
func (r Resolution) Key() PairKey {
	return PairKey{IDLow: r.IDLow, IDHigh: r.IDHigh}
}

// MergeRequest asks for two participants to be merged into one
type MergeRequest struct {
	ParticipantAID string         `json:"participant_a_id" validate:"required"`
	ParticipantBID string         `json:"participant_b_id" validate:"required,nefield=ParticipantAID"`
	ResolvedFields ResolvedFields `json:"resolved_fields"`
}

// IgnoreRequest asks for a pair to be dismissed as not a duplicate
type IgnoreRequest struct {
	ParticipantAID string `json:"participant_a_id" validate:"required"`
	ParticipantBID string `json:"participant_b_id" validate:"required,nefield=ParticipantAID"`
}
