package service

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/scholarship-api/internal/models"
	"github.com/noah-isme/scholarship-api/pkg/database"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// noTx runs fn directly; used when a service is constructed without a transaction manager.
type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Notifier hands notification requests to the delivery sink.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification)
}

// recordAudit writes an audit row once the surrounding transaction has committed.
// Failures are logged and never surface to the caller.
func recordAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, actor *models.Actor, action, resource, resourceID string, oldValues, newValues interface{}) {
	if audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:    action,
		Resource:  resource,
		IPAddress: "system",
		UserAgent: "scholarship-api",
	}
	if actor != nil && actor.UserID != "" {
		id := actor.UserID
		entry.UserID = &id
	}
	if resourceID != "" {
		id := resourceID
		entry.ResourceID = &id
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	database.AfterCommit(ctx, func() {
		if err := audit.CreateAuditLog(database.WithoutTx(context.WithoutCancel(ctx)), entry); err != nil {
			logger.Warn("failed to create audit log", zap.String("action", action), zap.Error(err))
		}
	})
}

// notifyAfterCommit queues a notification once the surrounding transaction has committed.
func notifyAfterCommit(ctx context.Context, notifier Notifier, notification models.Notification) {
	if notifier == nil || notification.UserID == "" {
		return
	}
	database.AfterCommit(ctx, func() {
		notifier.Notify(database.WithoutTx(context.WithoutCancel(ctx)), notification)
	})
}

func trimmedPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func humanize(value string) string {
	return strings.ReplaceAll(value, "_", " ")
}

// canViewApplication allows the owning student and any staff role.
func canViewApplication(actor *models.Actor, detail *models.ApplicationDetail) bool {
	if actor == nil || detail == nil {
		return false
	}
	if actor.Role.IsStaff() {
		return true
	}
	return actor.Role == models.RoleStudent && actor.UserID == detail.StudentUserID
}

// ownsApplication allows the owning student and admins.
func ownsApplication(actor *models.Actor, detail *models.ApplicationDetail) bool {
	if actor == nil || detail == nil {
		return false
	}
	if actor.Role == models.RoleAdmin {
		return true
	}
	return actor.Role == models.RoleStudent && actor.UserID == detail.StudentUserID
}
