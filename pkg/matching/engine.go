// Package matching implements participant field comparison and weighted scoring
package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// ErrMalformedSnapshot is returned when a snapshot cannot take part in scoring
var ErrMalformedSnapshot = errors.New("malformed participant snapshot")

// AbsencePolicy decides how a field present on only one side of a pair is scored.
// Fields absent on both sides never count.
type AbsencePolicy string

const (
	// AbsenceMismatch scores a one-sided field as similarity 0 and keeps its weight in the
	// denominator, so incompleteness lowers confidence
	AbsenceMismatch AbsencePolicy = "mismatch"
	// AbsenceExcluded drops a one-sided field from numerator and denominator
	AbsenceExcluded AbsencePolicy = "excluded"
)

// ParseAbsencePolicy validates a configured absence policy
func ParseAbsencePolicy(s string) (AbsencePolicy, error) {
	switch AbsencePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case AbsenceMismatch, "":
		return AbsenceMismatch, nil
	case AbsenceExcluded:
		return AbsenceExcluded, nil
	}
	return "", fmt.Errorf("unknown absence policy %q", s)
}

// Config contains configuration for the scoring engine
type Config struct {
	WeightTable     WeightTable
	OneSidedAbsence AbsencePolicy
	MinScore        float64 // Score at or above which a pair is a duplicate candidate
}

// DefaultConfig returns default engine configuration
func DefaultConfig() Config {
	return Config{
		WeightTable:     WeightTableV1,
		OneSidedAbsence: AbsenceMismatch,
		MinScore:        0.7,
	}
}

// Fingerprint identifies the scoring behaviour of the configuration. Index rows produced
// under a different fingerprint may be stale.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("weights=%s;absence=%s;min=%g", c.WeightTable.Version, c.OneSidedAbsence, c.MinScore)
}

// Result is the outcome of scoring one pair of participants
type Result struct {
	Key           models.PairKey
	WeightedScore float64
	FieldScores   map[models.FieldName]float64
	Breakdown     []models.FieldScore
}

// Matches reports whether the score meets the configured minimum
func (r Result) Matches(minScore float64) bool {
	return r.WeightedScore >= minScore
}

// DuplicatePair converts the result into a duplicate index row
func (r Result) DuplicatePair() models.DuplicatePair {
	return models.DuplicatePair{
		IDLow:         r.Key.IDLow,
		IDHigh:        r.Key.IDHigh,
		WeightedScore: r.WeightedScore,
		FieldScores:   r.FieldScores,
	}
}

// Engine scores pairs of participants against a weight table
type Engine struct {
	config Config
}

// NewEngine validates the configuration and creates a scoring engine
func NewEngine(config Config) (*Engine, error) {
	if err := config.WeightTable.Validate(); err != nil {
		return nil, err
	}
	policy, err := ParseAbsencePolicy(string(config.OneSidedAbsence))
	if err != nil {
		return nil, err
	}
	config.OneSidedAbsence = policy
	if config.MinScore < 0 || config.MinScore > 1 {
		return nil, fmt.Errorf("minimum score %v is outside [0,1]", config.MinScore)
	}
	return &Engine{config: config}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Validate reports whether a snapshot can be scored
func Validate(p models.ParticipantSnapshot) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing identifier", ErrMalformedSnapshot)
	}
	if strings.TrimSpace(p.DateOfBirth) != "" {
		if _, ok := normalizers.ParseDate(p.DateOfBirth); !ok {
			return fmt.Errorf("%w: participant %s has unreadable date of birth %q", ErrMalformedSnapshot, p.ID, p.DateOfBirth)
		}
	}
	return nil
}

// Score normalizes and scores two snapshots
func (e *Engine) Score(a, b models.ParticipantSnapshot) (Result, error) {
	if err := Validate(a); err != nil {
		return Result{}, err
	}
	if err := Validate(b); err != nil {
		return Result{}, err
	}
	return e.ScoreNormalized(normalizers.NormalizeParticipant(a), normalizers.NormalizeParticipant(b))
}

// ScoreNormalized scores two participants that have already been normalized
func (e *Engine) ScoreNormalized(a, b normalizers.Participant) (Result, error) {
	key := models.NewPairKey(a.ID, b.ID)
	if !key.Valid() {
		return Result{}, fmt.Errorf("%w: cannot pair %q with %q", ErrMalformedSnapshot, a.ID, b.ID)
	}

	result := Result{
		Key:         key,
		FieldScores: make(map[models.FieldName]float64, len(e.config.WeightTable.Rules)),
		Breakdown:   make([]models.FieldScore, 0, len(e.config.WeightTable.Rules)),
	}

	var weighted, applied float64
	for _, rule := range e.config.WeightTable.Rules {
		va, vb := valueOf(a, rule.Field), valueOf(b, rule.Field)
		presentA, presentB := va.present(), vb.present()

		if !presentA && !presentB {
			continue
		}
		if presentA != presentB && e.config.OneSidedAbsence == AbsenceExcluded {
			continue
		}

		similarity := clamp(compare(rule.Comparator, va, vb))
		result.FieldScores[rule.Field] = similarity
		result.Breakdown = append(result.Breakdown, models.FieldScore{
			Field:      rule.Field,
			Similarity: similarity,
			Weight:     rule.Weight,
		})

		weighted += similarity * rule.Weight
		applied += rule.Weight
	}

	if applied > 0 {
		result.WeightedScore = clamp(weighted / applied)
	}
	return result, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
