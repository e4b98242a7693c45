package models

import "time"

// NotificationType groups notifications for client-side rendering.
type NotificationType string

const (
	NotificationApplication NotificationType = "application"
	NotificationDocument    NotificationType = "document"
	NotificationInterview   NotificationType = "interview"
	NotificationStipend     NotificationType = "stipend"
)

// RelatedEntity points a notification at the record it describes.
type RelatedEntity struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Notification is the structured request handed to the delivery sink.
type Notification struct {
	UserID        string                 `json:"user_id"`
	Title         string                 `json:"title"`
	Message       string                 `json:"message"`
	Type          NotificationType       `json:"type"`
	Data          map[string]interface{} `json:"data,omitempty"`
	RelatedEntity *RelatedEntity         `json:"related_entity,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
