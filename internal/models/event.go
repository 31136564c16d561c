package models

import "time"

// Event represents a loggable action in the system.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "user.register", "notification.failed"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	Subject   string    `json:"subject,omitempty"` // Username or address the event concerns
	CreatedAt time.Time `json:"createdAt"`
}
