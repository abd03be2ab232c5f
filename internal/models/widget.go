package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"telemetry_relay/internal/pin"
)

// WidgetType is the JSON discriminator of a widget.
type WidgetType string

const (
	WidgetReading        WidgetType = "READING"
	WidgetDeviceTiles    WidgetType = "DEVICE_TILES"
	WidgetDeviceSelector WidgetType = "DEVICE_SELECTOR"
	WidgetNotification   WidgetType = "NOTIFICATION"
)

var (
	ErrUnknownWidget     = errors.New("unknown widget type")
	ErrDeviceNotSelected = errors.New("device is not part of selector")
)

// Widget is any UI element of a dashboard.
type Widget interface {
	WidgetID() int64
	Kind() WidgetType
}

// Refresh tracks when a periodic read last fired.
type Refresh struct {
	mu   sync.Mutex
	last time.Time
}

// Due reports whether period has elapsed since the last fire and, if so, records now.
func (r *Refresh) Due(period time.Duration, now time.Time) bool {
	if period <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.last.IsZero() && now.Sub(r.last) < period {
		return false
	}
	r.last = now
	return true
}

// DataStream is a single pin binding.
type DataStream struct {
	PinType pin.Type `json:"pin_type"`
	Pin     int      `json:"pin"`
}

// ReadingWidget periodically reads one pin of its target.
type ReadingWidget struct {
	ID        int64      `json:"id"`
	Type      WidgetType `json:"type"`
	Label     string     `json:"label,omitempty"`
	TargetID  int        `json:"device_id"`
	PinType   pin.Type   `json:"pin_type"`
	Pin       int        `json:"pin"`
	Frequency int        `json:"frequency"` // ms

	refresh Refresh
}

func (w *ReadingWidget) WidgetID() int64  { return w.ID }
func (w *ReadingWidget) Kind() WidgetType { return WidgetReading }

func (w *ReadingWidget) Period() time.Duration {
	return time.Duration(w.Frequency) * time.Millisecond
}

// IsDue reports whether the widget should fire at now. It fires at most once per period.
func (w *ReadingWidget) IsDue(now time.Time) bool {
	return w.refresh.Due(w.Period(), now)
}

// IsValid reports whether the widget is bound to a pin.
func (w *ReadingWidget) IsValid() bool {
	return w.PinType != 0 && w.Pin >= 0
}

// Tile is one device shown in a DeviceTiles widget.
type Tile struct {
	DeviceID   int         `json:"device_id"`
	TemplateID int64       `json:"template_id"`
	DataStream *DataStream `json:"data_stream,omitempty"`
	Frequency  int         `json:"frequency"` // ms

	hardware Refresh
	plugin   Refresh
}

func (t *Tile) period() time.Duration {
	return time.Duration(t.Frequency) * time.Millisecond
}

// IsDue is the hardware-read clock of the tile.
func (t *Tile) IsDue(now time.Time) bool { return t.hardware.Due(t.period(), now) }

// IsDuePlugin is the plugin-read clock of the tile, independent from IsDue.
func (t *Tile) IsDuePlugin(now time.Time) bool { return t.plugin.Due(t.period(), now) }

// TileTemplate groups widgets repeated for every tile using it.
type TileTemplate struct {
	ID      int64            `json:"id"`
	Widgets []*ReadingWidget `json:"widgets"`
}

// DeviceTiles shows one tile per device.
type DeviceTiles struct {
	ID        int64           `json:"id"`
	Type      WidgetType      `json:"type"`
	Tiles     []*Tile         `json:"tiles"`
	Templates []*TileTemplate `json:"templates"`
}

func (w *DeviceTiles) WidgetID() int64  { return w.ID }
func (w *DeviceTiles) Kind() WidgetType { return WidgetDeviceTiles }

func (w *DeviceTiles) TemplateByID(id int64) *TileTemplate {
	for _, t := range w.Templates {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// DeviceSelector lets the app choose the active device out of a group.
type DeviceSelector struct {
	ID        int64      `json:"id"`
	Type      WidgetType `json:"type"`
	DeviceIDs []int      `json:"device_ids"`

	mu       sync.RWMutex
	selected *int
}

func (w *DeviceSelector) WidgetID() int64  { return w.ID }
func (w *DeviceSelector) Kind() WidgetType { return WidgetDeviceSelector }

// Selected returns the currently active device.
func (w *DeviceSelector) Selected() (int, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.selected == nil {
		return 0, false
	}
	return *w.selected, true
}

// Select makes deviceID the active device. It must be one of DeviceIDs.
func (w *DeviceSelector) Select(deviceID int) error {
	for _, id := range w.DeviceIDs {
		if id == deviceID {
			w.mu.Lock()
			w.selected = &deviceID
			w.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: device %d, selector %d", ErrDeviceNotSelected, deviceID, w.ID)
}

type deviceSelectorJSON struct {
	ID        int64      `json:"id"`
	Type      WidgetType `json:"type"`
	DeviceIDs []int      `json:"device_ids"`
	Value     *int       `json:"value,omitempty"`
}

func (w *DeviceSelector) MarshalJSON() ([]byte, error) {
	v := deviceSelectorJSON{ID: w.ID, Type: WidgetDeviceSelector, DeviceIDs: w.DeviceIDs}
	if id, ok := w.Selected(); ok {
		v.Value = &id
	}
	return json.Marshal(v)
}

func (w *DeviceSelector) UnmarshalJSON(b []byte) error {
	var v deviceSelectorJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	w.ID, w.Type, w.DeviceIDs = v.ID, WidgetDeviceSelector, v.DeviceIDs
	w.mu.Lock()
	w.selected = v.Value
	w.mu.Unlock()
	return nil
}

// Notification configures offline alerts for a dashboard.
type Notification struct {
	ID                int64      `json:"id"`
	Type              WidgetType `json:"type"`
	NotifyWhenOffline bool       `json:"notify_when_offline"`
	IgnorePeriod      int64      `json:"notify_when_offline_ignore_period"` // ms
	ChatIDs           []int64    `json:"chat_ids,omitempty"`
}

func (w *Notification) WidgetID() int64  { return w.ID }
func (w *Notification) Kind() WidgetType { return WidgetNotification }

func (w *Notification) IgnoreFor() time.Duration {
	return time.Duration(w.IgnorePeriod) * time.Millisecond
}

// WidgetList decodes the polymorphic widget array of a dashboard.
type WidgetList []Widget

func (l *WidgetList) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return err
	}
	out := make(WidgetList, 0, len(raws))
	for i, raw := range raws {
		var head struct {
			Type WidgetType `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return fmt.Errorf("widget %d: %w", i, err)
		}

		var w Widget
		switch head.Type {
		case WidgetReading, "":
			w = &ReadingWidget{}
		case WidgetDeviceTiles:
			w = &DeviceTiles{}
		case WidgetDeviceSelector:
			w = &DeviceSelector{}
		case WidgetNotification:
			w = &Notification{}
		default:
			return fmt.Errorf("widget %d: %w: %q", i, ErrUnknownWidget, head.Type)
		}
		if err := json.Unmarshal(raw, w); err != nil {
			return fmt.Errorf("widget %d: %w", i, err)
		}
		out = append(out, w)
	}
	*l = out
	return nil
}
