package service

import (
	"context"
	"sync"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// DocumentEventKind distinguishes document lifecycle events.
type DocumentEventKind string

const (
	DocumentEventUploaded DocumentEventKind = "uploaded"
	DocumentEventVerified DocumentEventKind = "verified"
)

// DocumentEvent is published after a document row changes. Handlers run in the
// publisher's context, so they share its transaction.
type DocumentEvent struct {
	Kind          DocumentEventKind
	DocumentID    string
	ApplicationID string
	DocumentType  models.DocumentType
	Status        models.DocumentStatus
	Actor         *models.Actor
}

// DocumentEventHandler reacts to a document event. A returned error aborts the publisher.
type DocumentEventHandler func(ctx context.Context, event DocumentEvent) error

// EventBus delivers document events synchronously, in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers []DocumentEventHandler
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// SubscribeDocuments registers a handler for document events.
func (b *EventBus) SubscribeDocuments(handler DocumentEventHandler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

// PublishDocument delivers event to every handler and stops at the first error.
func (b *EventBus) PublishDocument(ctx context.Context, event DocumentEvent) error {
	b.mu.RLock()
	handlers := make([]DocumentEventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
