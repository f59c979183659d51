package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestProducer_Publish(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	t.Run("writes keyed json with headers", func(t *testing.T) {
		writer := &recordingWriter{}
		producer := NewProducerWithWriter(writer, "fern.events", logger)

		err := producer.Publish(context.Background(), "p-1", "participant.merged", map[string]string{"survivor_id": "p-1"})
		require.NoError(t, err)
		require.Len(t, writer.messages, 1)

		msg := writer.messages[0]
		assert.Equal(t, "p-1", string(msg.Key))
		assert.Equal(t, "event_type", msg.Headers[0].Key)
		assert.Equal(t, "participant.merged", string(msg.Headers[0].Value))

		var body map[string]string
		require.NoError(t, json.Unmarshal(msg.Value, &body))
		assert.Equal(t, "p-1", body["survivor_id"])
	})

	t.Run("returns writer errors", func(t *testing.T) {
		writer := &recordingWriter{err: errors.New("broker down")}
		producer := NewProducerWithWriter(writer, "fern.events", logger)

		err := producer.Publish(context.Background(), "p-1", "participant.merged", struct{}{})
		assert.EqualError(t, err, "broker down")
	})
}
