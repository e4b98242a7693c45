package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scholarship-api/internal/models"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	fail     bool
	closed   bool
}

func (p *recordingPublisher) Publish(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	if p.messages == nil {
		p.messages = map[string][]byte{}
	}
	p.messages[string(key)] = value
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

type notificationCounter struct {
	mu                   sync.Mutex
	delivered, abandoned int
}

func (c *notificationCounter) RecordNotification(delivered bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if delivered {
		c.delivered++
	} else {
		c.abandoned++
	}
}

func TestNotificationServiceDeliversKeyedByUser(t *testing.T) {
	pub := &recordingPublisher{}
	counter := &notificationCounter{}
	svc := NewNotificationService(pub, counter, nil, NotificationConfig{Workers: 1})
	svc.Start(context.Background())

	svc.Notify(context.Background(), models.Notification{
		UserID:  "user-1",
		Title:   "Application received",
		Message: "We received your application.",
		Type:    models.NotificationApplication,
	})
	svc.Notify(context.Background(), models.Notification{Title: "no recipient"})
	require.NoError(t, svc.Stop(context.Background()))

	require.True(t, pub.closed)
	require.Len(t, pub.messages, 1)
	var sent models.Notification
	require.NoError(t, json.Unmarshal(pub.messages["user-1"], &sent))
	require.Equal(t, "Application received", sent.Title)
	require.False(t, sent.CreatedAt.IsZero())
	require.Equal(t, 1, counter.delivered)
}

func TestNotificationServiceCountsAbandonedDeliveries(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	counter := &notificationCounter{}
	svc := NewNotificationService(pub, counter, nil, NotificationConfig{Workers: 1, MaxRetries: 0})
	svc.Start(context.Background())

	svc.Notify(context.Background(), models.Notification{UserID: "user-2", Title: "Stipend released"})
	require.Eventually(t, func() bool {
		counter.mu.Lock()
		defer counter.mu.Unlock()
		return counter.abandoned == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, svc.Stop(context.Background()))
	require.Zero(t, counter.delivered)
}

func TestNotificationServiceDropsWhenStopped(t *testing.T) {
	counter := &notificationCounter{}
	svc := NewNotificationService(&recordingPublisher{}, counter, nil, NotificationConfig{})

	svc.Notify(context.Background(), models.Notification{UserID: "user-3", Title: "lost"})
	require.Equal(t, 1, counter.abandoned)
}
