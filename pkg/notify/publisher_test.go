package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"})
	require.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}})
	require.Error(t, err)

	pub, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "scholarship.notifications", Username: "u", Password: "p"})
	require.NoError(t, err)
	require.NotNil(t, pub.writer.Transport)
	require.NoError(t, pub.Close())
}

func TestLogPublisherWritesDebugEntry(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	pub := NewLogPublisher(zap.New(core))

	require.NoError(t, pub.Publish(context.Background(), []byte("user-1"), []byte(`{"title":"hi"}`)))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "notification", logs.All()[0].Message)
	require.NoError(t, pub.Close())
}
