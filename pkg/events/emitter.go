// Package events emits resolution events for downstream consumers
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

const (
	EventParticipantMerged = "participant.merged"
	EventDuplicateIgnored  = "duplicate.ignored"
)

// Publisher writes an event keyed by key
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, value any) error
}

// ParticipantMergedEvent is emitted after a merge commits
type ParticipantMergedEvent struct {
	EventType     string                      `json:"event_type"`
	SchemaVersion string                      `json:"schema_version"`
	SurvivorID    string                      `json:"survivor_id"`
	SupersededID  string                      `json:"superseded_id"`
	Participant   *models.ParticipantSnapshot `json:"participant"`
	Timestamp     time.Time                   `json:"timestamp"`
}

// DuplicateIgnoredEvent is emitted after a pair is dismissed
type DuplicateIgnoredEvent struct {
	EventType     string    `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	IDLow         string    `json:"id_low"`
	IDHigh        string    `json:"id_high"`
	Timestamp     time.Time `json:"timestamp"`
}

// Emitter handles event emission for Fern. A nil publisher disables emission.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitParticipantMerged emits a participant merged event keyed by the survivor
func (e *Emitter) EmitParticipantMerged(ctx context.Context, survivor *models.ParticipantSnapshot, supersededID string) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitParticipantMerged")
	defer span.End()

	if e.publisher == nil {
		e.logger.WithContext(ctx).Debug("Event publishing disabled, dropping participant merged event")
		return nil
	}

	return e.publisher.Publish(ctx, survivor.ID, EventParticipantMerged, &ParticipantMergedEvent{
		EventType:     EventParticipantMerged,
		SchemaVersion: SchemaVersion,
		SurvivorID:    survivor.ID,
		SupersededID:  supersededID,
		Participant:   survivor,
		Timestamp:     time.Now().UTC(),
	})
}

// EmitDuplicateIgnored emits a duplicate ignored event keyed by the canonical pair
func (e *Emitter) EmitDuplicateIgnored(ctx context.Context, key models.PairKey) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicateIgnored")
	defer span.End()

	if e.publisher == nil {
		e.logger.WithContext(ctx).Debug("Event publishing disabled, dropping duplicate ignored event")
		return nil
	}

	return e.publisher.Publish(ctx, key.String(), EventDuplicateIgnored, &DuplicateIgnoredEvent{
		EventType:     EventDuplicateIgnored,
		SchemaVersion: SchemaVersion,
		IDLow:         key.IDLow,
		IDHigh:        key.IDHigh,
		Timestamp:     time.Now().UTC(),
	})
}
