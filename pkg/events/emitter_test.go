package events

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type published struct {
	key       string
	eventType string
	value     any
}

type recorder struct {
	events []published
}

func (r *recorder) Publish(_ context.Context, key, eventType string, value any) error {
	r.events = append(r.events, published{key: key, eventType: eventType, value: value})
	return nil
}

func TestEmitter(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	ctx := context.Background()

	t.Run("merged", func(t *testing.T) {
		rec := &recorder{}
		emitter := NewEmitter(rec, logger)

		require.NoError(t, emitter.EmitParticipantMerged(ctx, &models.ParticipantSnapshot{ID: "a"}, "b"))
		require.Len(t, rec.events, 1)
		assert.Equal(t, "a", rec.events[0].key)
		assert.Equal(t, EventParticipantMerged, rec.events[0].eventType)

		event, ok := rec.events[0].value.(*ParticipantMergedEvent)
		require.True(t, ok)
		assert.Equal(t, "b", event.SupersededID)
		assert.Equal(t, SchemaVersion, event.SchemaVersion)
	})

	t.Run("ignored", func(t *testing.T) {
		rec := &recorder{}
		emitter := NewEmitter(rec, logger)

		require.NoError(t, emitter.EmitDuplicateIgnored(ctx, models.NewPairKey("b", "a")))
		require.Len(t, rec.events, 1)
		assert.Equal(t, "a:b", rec.events[0].key)
		assert.Equal(t, EventDuplicateIgnored, rec.events[0].eventType)
	})

	t.Run("disabled", func(t *testing.T) {
		emitter := NewEmitter(nil, logger)
		assert.NoError(t, emitter.EmitDuplicateIgnored(ctx, models.NewPairKey("a", "b")))
		assert.NoError(t, emitter.EmitParticipantMerged(ctx, &models.ParticipantSnapshot{ID: "a"}, "b"))
	})
}
