package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/repository"
)

// fakeEventRepo records appended events and answers List from a fixed slice.
type fakeEventRepo struct {
	mu       sync.Mutex
	appended []models.DeviceEvent

	gotFilter repository.EventFilter
	events    []models.DeviceEvent
	err       error
	calls     int
}

func (f *fakeEventRepo) List(_ context.Context, filter repository.EventFilter) ([]models.DeviceEvent, error) {
	f.calls++
	f.gotFilter = filter
	return f.events, f.err
}

func (f *fakeEventRepo) Append(_ context.Context, e models.DeviceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, e)
	return nil
}

func (f *fakeEventRepo) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.appended))
	for _, e := range f.appended {
		out = append(out, e.Type)
	}
	return out
}

func TestNormalizeAndValidateRange(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*3600)
	cases := []struct {
		name             string
		from, to         time.Time
		wantFrom, wantTo time.Time
		wantErr          error
	}{
		{name: "open range"},
		{
			name:     "converted to UTC",
			from:     time.Date(2025, time.September, 10, 10, 0, 0, 0, plus2),
			to:       time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC),
			wantFrom: time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:   "only an upper bound",
			to:     time.Date(2025, time.September, 10, 12, 0, 0, 0, plus2),
			wantTo: time.Date(2025, time.September, 10, 10, 0, 0, 0, time.UTC),
		},
		{
			name:    "inverted",
			from:    time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			to:      time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			wantErr: ErrInvalidTimeRange,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to, err := normalizeAndValidateRange(tc.from, tc.to)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if !from.Equal(tc.wantFrom) || !to.Equal(tc.wantTo) {
				t.Fatalf("got [%v, %v]; want [%v, %v]", from, to, tc.wantFrom, tc.wantTo)
			}
			if !from.IsZero() && from.Location() != time.UTC {
				t.Fatalf("from not in UTC: %v", from.Location())
			}
		})
	}
}

func TestNormalizeEventType(t *testing.T) {
	for in, want := range map[string]string{
		"":             "",
		"  online ":    models.EventOnline,
		"Offline":      models.EventOffline,
		"plugin_error": models.EventPluginError,
		"PUSH":         models.EventPush,
		" heartbeat":   models.EventHeartbeat,
	} {
		got, err := normalizeEventType(in)
		if err != nil || got != want {
			t.Fatalf("normalizeEventType(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := normalizeEventType("rebooted"); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}
}

func TestEventLogService_List(t *testing.T) {
	repo := &fakeEventRepo{events: []models.DeviceEvent{{EventID: "e1", Type: models.EventOffline}}}
	svc := NewEventLogService(repo)
	device := 3

	out, err := svc.List(context.Background(), 7, LogFilter{
		From:     time.Date(2025, time.October, 1, 10, 0, 0, 0, time.FixedZone("UTC+5", 5*3600)),
		To:       time.Date(2025, time.October, 1, 12, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)),
		Type:     " offline ",
		DeviceID: &device,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].EventID != "e1" {
		t.Fatalf("unexpected events %+v", out)
	}

	got := repo.gotFilter
	if !got.From.Equal(time.Date(2025, time.October, 1, 5, 0, 0, 0, time.UTC)) ||
		!got.To.Equal(time.Date(2025, time.October, 1, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("bounds not normalized: %v .. %v", got.From, got.To)
	}
	if got.Type != models.EventOffline || got.UserID != 7 || got.DeviceID == nil || *got.DeviceID != 3 {
		t.Fatalf("unexpected filter %+v", got)
	}
}

func TestEventLogService_ListRejectsBeforeQuerying(t *testing.T) {
	cases := map[string]struct {
		filter LogFilter
		want   error
	}{
		"inverted range": {
			filter: LogFilter{From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
			want:   ErrInvalidTimeRange,
		},
		"unknown type": {filter: LogFilter{Type: "rebooted"}, want: ErrUnknownEventType},
	}
	for name, tc := range cases {
		repo := &fakeEventRepo{}
		if _, err := NewEventLogService(repo).List(context.Background(), 1, tc.filter); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
		if repo.calls != 0 {
			t.Fatalf("%s: repository must not be queried", name)
		}
	}
}

func TestEventLogService_ListPropagatesStoreErrors(t *testing.T) {
	repo := &fakeEventRepo{err: errBoom}
	if _, err := NewEventLogService(repo).List(context.Background(), 1, LogFilter{}); !errors.Is(err, errBoom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if got := repo.gotFilter; !got.From.IsZero() || !got.To.IsZero() || got.Type != "" || got.DeviceID != nil {
		t.Fatalf("expected an open filter, got %+v", got)
	}
}
