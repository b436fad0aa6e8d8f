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

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestPublishContactEvents(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "contact-events", testLogger())

	err := p.PublishContactEvents(context.Background(), []*ContactEvent{
		{EventType: "contact.linked", ContactID: 9, PrimaryID: 3},
		{EventType: "cluster.merged", ContactID: 3, PrimaryID: 3, DemotedIDs: []int64{7}},
	})
	require.NoError(t, err)
	require.Len(t, w.messages, 2)

	first := w.messages[0]
	assert.Equal(t, "contact-events", first.Topic)
	assert.Equal(t, "3", string(first.Key))
	assert.Equal(t, "event_type", first.Headers[0].Key)
	assert.Equal(t, "contact.linked", string(first.Headers[0].Value))

	var decoded ContactEvent
	require.NoError(t, json.Unmarshal(w.messages[1].Value, &decoded))
	assert.Equal(t, []int64{7}, decoded.DemotedIDs)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestPublishContactEvents_EmptyAndFailure(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newProducer(w, "contact-events", testLogger())

	require.NoError(t, p.PublishContactEvents(context.Background(), nil))
	require.Error(t, p.PublishContactEvents(context.Background(), []*ContactEvent{{EventType: "contact.created"}}))
}

func TestCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, compression(""))
	assert.Equal(t, kafka.Zstd, compression("zstd"))
	assert.Equal(t, kafka.Compression(0), compression("none"))
}
