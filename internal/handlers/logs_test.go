package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telemetry_relay/internal/models"
	"telemetry_relay/internal/pin"
	"telemetry_relay/internal/service"
)

func doGet(t *testing.T, r http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestLogsHandler_EventsListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.DeviceEvent{
		{EventID: "e1", OccurredAt: now, Type: models.EventOnline, Description: "device connected"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: models.EventOffline, Description: "device went offline"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s)

	// invalid 'from' → 400
	if w := doGet(t, r, "/api/v1/events?from=notatime"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}
	// invalid device id → 400
	if w := doGet(t, r, "/api/v1/events?device_id=x"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid device_id, got %d", w.Code)
	}

	q := "/api/v1/events?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) + "&type=offline&device_id=3"
	w := doGet(t, r, q)
	if w.Code != http.StatusOK {
		t.Fatalf("events status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                  `json:"count"`
		Events []models.DeviceEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastUserID != 99 {
		t.Fatalf("expected user 99, got %d", logs.lastUserID)
	}
	if logs.lastFilter.Type != "offline" || logs.lastFilter.DeviceID == nil || *logs.lastFilter.DeviceID != 3 {
		t.Fatalf("unexpected filter %+v", logs.lastFilter)
	}
	if !logs.lastFilter.From.Equal(now) {
		t.Fatalf("expected from %v, got %v", now, logs.lastFilter.From)
	}
}

func TestLogsHandler_DateOnlyToCoversDay(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})

	if w := doGet(t, r, "/api/v1/events?to=2025-08-31"); w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2025, time.August, 31, 23, 59, 59, 999999999, time.UTC)
	if !logs.lastFilter.To.Equal(want) {
		t.Fatalf("expected end of day %v, got %v", want, logs.lastFilter.To)
	}
}

func TestLogsHandler_EventsServiceErrors(t *testing.T) {
	logs := &mockEventLog{err: service.ErrInvalidTimeRange}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})
	if w := doGet(t, r, "/api/v1/events"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid range, got %d", w.Code)
	}

	logs.err = errors.New("db down")
	w := doGet(t, r, "/api/v1/events")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var out map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out["error"] != "failed to load events" {
		t.Fatalf("internal errors must not leak, got %q", out["error"])
	}
}

func TestLogsHandler_Readings(t *testing.T) {
	readings := &mockReadings{resp: []models.Reading{{DashID: 1, DeviceID: 0, PinType: pin.Virtual, Pin: 5, Value: "21.5"}}}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Readings: readings})

	w := doGet(t, r, "/api/v1/readings?dash_id=1&device_id=0&pin_type=virtual&pin=5&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	f := readings.lastFilter
	if f.UserID != 7 || f.DashID != 1 || f.DeviceID != 0 || f.PinType != pin.Virtual || f.Pin != 5 || f.Limit != 10 {
		t.Fatalf("unexpected filter %+v", f)
	}
	var out struct {
		Count    int              `json:"count"`
		Readings []models.Reading `json:"readings"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 1 || out.Readings[0].Value != "21.5" {
		t.Fatalf("unexpected response %+v", out)
	}
}

func TestLogsHandler_ReadingsValidation(t *testing.T) {
	readings := &mockReadings{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 7}, Readings: readings})

	cases := []string{
		"/api/v1/readings?dash_id=1&device_id=0&pin=5",                    // missing pin type
		"/api/v1/readings?dash_id=1&device_id=0&pin_type=x&pin=5",         // bad pin type
		"/api/v1/readings?device_id=0&pin_type=v&pin=5",                   // missing dash
		"/api/v1/readings?dash_id=1&device_id=0&pin_type=v&pin=five",      // bad pin
		"/api/v1/readings?dash_id=1&device_id=0&pin_type=v&pin=5&to=nope", // bad to
	}
	for _, target := range cases {
		if w := doGet(t, r, target); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, w.Code)
		}
	}

	readings.err = service.ErrInvalidLimit
	if w := doGet(t, r, "/api/v1/readings?dash_id=1&device_id=0&pin_type=v&pin=5&limit=-1"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", w.Code)
	}
}
