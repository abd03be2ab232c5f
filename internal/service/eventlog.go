package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"
)

// LogFilter narrows the device status log.
type LogFilter struct {
	From     time.Time // inclusive; zero means no lower bound
	To       time.Time // inclusive; zero means no upper bound
	Type     string    // case-insensitive; empty matches all
	DeviceID *int
}

type EventLogService struct {
	eventRepo repository.EventRepo
}

func NewEventLogService(eventRepo repository.EventRepo) *EventLogService {
	return &EventLogService{eventRepo: eventRepo}
}

var (
	ErrInvalidTimeRange = errors.New("invalid time range: From must be <= To")
	ErrUnknownEventType = errors.New("unknown event type")
)

var eventTypes = map[string]bool{
	models.EventOnline:      true,
	models.EventOffline:     true,
	models.EventPush:        true,
	models.EventHeartbeat:   true,
	models.EventPluginError: true,
}

func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeEventType upper-cases s and rejects types the relay never records.
// An empty type matches every event.
func normalizeEventType(s string) (string, error) {
	t := strings.TrimSpace(strings.ToUpper(s))
	if t != "" && !eventTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// normalizeAndValidateRange returns both bounds in UTC and rejects an inverted range.
func normalizeAndValidateRange(from, to time.Time) (time.Time, time.Time, error) {
	from, to = normalizeToUTC(from), normalizeToUTC(to)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidTimeRange
	}
	return from, to, nil
}

func (s *EventLogService) List(ctx context.Context, userID int, f LogFilter) ([]models.DeviceEvent, error) {
	from, to, err := normalizeAndValidateRange(f.From, f.To)
	if err != nil {
		return nil, err
	}
	typ, err := normalizeEventType(f.Type)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, repository.EventFilter{
		UserID:   userID,
		DeviceID: f.DeviceID,
		From:     from,
		To:       to,
		Type:     typ,
	})
}
