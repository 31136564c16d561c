package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/isdelr/turbinix-be/internal/models"
	"github.com/isdelr/turbinix-be/internal/store"
)

// Event types recorded by the services.
const (
	EventUserRegistered     = "user.registered"
	EventPasswordUpgraded   = "user.password_upgraded"
	EventCodeIssued         = "code.issued"
	EventPasswordReset      = "user.password_reset"
	EventNotificationSent   = "notification.sent"
	EventNotificationFailed = "notification.failed"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// DefaultEventLimit is used when a caller asks for a non-positive number of events.
const DefaultEventLimit = 20

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message, subject string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// EventService provides business logic for event management.
type EventService struct {
	events store.EventRepository
	now    func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(events store.EventRepository) *EventService {
	return &EventService{events: events, now: time.Now}
}

// CreateEvent appends a new event to the log.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message, subject string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		Subject:   subject,
		CreatedAt: s.now().UTC(),
	}
	return s.events.Append(ctx, event)
}

// GetRecentEvents retrieves the most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	return s.events.Recent(ctx, limit)
}
