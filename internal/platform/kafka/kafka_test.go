package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"authority/internal/platform/config"
	id "authority/pkg/domain"
	audit "authority/pkg/platform/audit"
)

type recordingProducer struct {
	records []*kgo.Record
	err     error
}

func (p *recordingProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.records = append(p.records, rs...)
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func TestAuditSink_Append(t *testing.T) {
	t.Run("keys record by user and encodes json", func(t *testing.T) {
		producer := &recordingProducer{}
		sink := NewAuditSink(producer, "authority.audit", nil)
		userID := id.UserID(uuid.New())

		err := sink.Append(context.Background(), audit.Event{
			Type:     audit.EventLogoutEverywhere,
			Category: audit.CategorySecurity,
			UserID:   userID,
			Reason:   "user_requested",
		})
		require.NoError(t, err)
		require.Len(t, producer.records, 1)

		rec := producer.records[0]
		assert.Equal(t, "authority.audit", rec.Topic)
		assert.Equal(t, userID.String(), string(rec.Key))

		var decoded audit.Event
		require.NoError(t, json.Unmarshal(rec.Value, &decoded))
		assert.Equal(t, audit.EventLogoutEverywhere, decoded.Type)
		assert.Equal(t, userID, decoded.UserID)
	})

	t.Run("anonymous events have no key", func(t *testing.T) {
		producer := &recordingProducer{}
		sink := NewAuditSink(producer, "t", nil)

		require.NoError(t, sink.Append(context.Background(), audit.Event{Type: audit.EventLoginFailed, Identifier: "x@y.z"}))
		assert.Nil(t, producer.records[0].Key)
	})

	t.Run("propagates produce errors", func(t *testing.T) {
		producer := &recordingProducer{err: errors.New("broker down")}
		sink := NewAuditSink(producer, "t", nil)

		err := sink.Append(context.Background(), audit.Event{Type: audit.EventLoginFailed})
		assert.Error(t, err)
	})
}

func TestNewClient_NoBrokers(t *testing.T) {
	client, err := NewClient(config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
