package models

import "time"

// ParticipantSnapshot is a point-in-time copy of a participant as held by the participant store
type ParticipantSnapshot struct {
	ID                    string    `json:"id"`
	FirstName             string    `json:"first_name"`
	MiddleName            string    `json:"middle_name"`
	LastName              string    `json:"last_name"`
	DateOfBirth           string    `json:"date_of_birth"` // YYYY-MM-DD
	Address               string    `json:"address"`
	IdentificationNumbers []string  `json:"identification_numbers"`
	Contacts              []string  `json:"contacts"`
	Nationalities         []string  `json:"nationalities"`
	Languages             []string  `json:"languages"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ResolvedFields is the operator-chosen field set written to the survivor of a merge
type ResolvedFields struct {
	FirstName             string   `json:"first_name" validate:"max=200"`
	MiddleName            string   `json:"middle_name" validate:"max=200"`
	LastName              string   `json:"last_name" validate:"required_without=FirstName,max=200"`
	DateOfBirth           string   `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Address               string   `json:"address" validate:"max=500"`
	IdentificationNumbers []string `json:"identification_numbers" validate:"omitempty,dive,required,max=100"`
	Contacts              []string `json:"contacts" validate:"omitempty,dive,required,max=200"`
	Nationalities         []string `json:"nationalities" validate:"omitempty,dive,required,max=10"`
	Languages             []string `json:"languages" validate:"omitempty,dive,required,max=10"`
}

// Apply returns a copy of the snapshot with every participant field replaced by the resolved values
func (f ResolvedFields) Apply(p ParticipantSnapshot) ParticipantSnapshot {
	p.FirstName = f.FirstName
	p.MiddleName = f.MiddleName
	p.LastName = f.LastName
	p.DateOfBirth = f.DateOfBirth
	p.Address = f.Address
	p.IdentificationNumbers = cloneStrings(f.IdentificationNumbers)
	p.Contacts = cloneStrings(f.Contacts)
	p.Nationalities = cloneStrings(f.Nationalities)
	p.Languages = cloneStrings(f.Languages)
	return p
}

// Clone returns a deep copy of the snapshot
func (p ParticipantSnapshot) Clone() ParticipantSnapshot {
	p.IdentificationNumbers = cloneStrings(p.IdentificationNumbers)
	p.Contacts = cloneStrings(p.Contacts)
	p.Nationalities = cloneStrings(p.Nationalities)
	p.Languages = cloneStrings(p.Languages)
	return p
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
