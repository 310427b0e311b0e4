//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"authority/internal/platform/config"
	"authority/internal/platform/kafka"
	id "authority/pkg/domain"
	audit "authority/pkg/platform/audit"
	"authority/pkg/testutil/containers"
)

func TestAuditSinkPublishesToRedpanda(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "authority.audit." + uuid.NewString()
	producer, err := kafka.NewClient(config.KafkaConfig{Brokers: []string{rp.Broker}, AuditTopic: topic})
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, kafka.EnsureTopics(ctx, producer, topic))
	require.NoError(t, kafka.EnsureTopics(ctx, producer, topic), "existing topic is not an error")

	userID := id.UserID(uuid.New())
	sink := kafka.NewAuditSink(producer, topic, nil)
	require.NoError(t, sink.Append(ctx, audit.Event{
		Type:   audit.EventLogoutEverywhere,
		UserID: userID,
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.NotEmpty(t, records)

	require.Equal(t, userID.String(), string(records[0].Key))
	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, audit.EventLogoutEverywhere, got.Type)
	require.Equal(t, userID, got.UserID)
}
