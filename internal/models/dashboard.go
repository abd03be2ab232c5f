package models

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"telemetry_relay/internal/pin"
)

// Target id ranges. Ids below TagStartID are devices.
const (
	TagStartID            = 100_000
	DeviceSelectorStartID = 200_000
)

// Tag is a static group of devices.
type Tag struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	DeviceIDs []int  `json:"device_ids"`
}

// Dashboard is a named collection of devices and widgets of one user.
type Dashboard struct {
	ID               int        `json:"id"`
	Name             string     `json:"name"`
	Active           bool       `json:"is_active"`
	NotificationsOff bool       `json:"is_notifications_off"`
	Devices          []*Device  `json:"devices"`
	Tags             []*Tag     `json:"tags,omitempty"`
	Widgets          WidgetList `json:"widgets"`
	Values           *PinCache  `json:"values,omitempty"`
}

func (d *Dashboard) DeviceByID(id int) *Device {
	for _, dev := range d.Devices {
		if dev.ID == id {
			return dev
		}
	}
	return nil
}

func (d *Dashboard) TagByID(id int) *Tag {
	for _, t := range d.Tags {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (d *Dashboard) DeviceSelector(id int) *DeviceSelector {
	for _, w := range d.Widgets {
		if s, ok := w.(*DeviceSelector); ok && s.ID == int64(id) {
			return s
		}
	}
	return nil
}

// NotificationWidget returns the first notification widget, if any.
func (d *Dashboard) NotificationWidget() *Notification {
	for _, w := range d.Widgets {
		if n, ok := w.(*Notification); ok {
			return n
		}
	}
	return nil
}

// Update stores the last known value of a pin.
func (d *Dashboard) Update(deviceID int, t pin.Type, p int, value string, now time.Time) {
	if d.Values == nil {
		return
	}
	d.Values.Put(PinValue{DeviceID: deviceID, PinType: t, Pin: p, Value: value, UpdatedAt: now})
}

// PinValue is the last value seen on a pin.
type PinValue struct {
	DeviceID  int       `json:"device_id"`
	PinType   pin.Type  `json:"pin_type"`
	Pin       int       `json:"pin"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type pinKey struct {
	deviceID int
	pinType  pin.Type
	pin      int
}

// PinCache is a concurrent last-value store keyed by device and pin.
type PinCache struct {
	m sync.Map // pinKey -> PinValue
}

func NewPinCache() *PinCache { return &PinCache{} }

func (c *PinCache) Put(v PinValue) {
	c.m.Store(pinKey{v.DeviceID, v.PinType, v.Pin}, v)
}

func (c *PinCache) Get(deviceID int, t pin.Type, p int) (PinValue, bool) {
	v, ok := c.m.Load(pinKey{deviceID, t, p})
	if !ok {
		return PinValue{}, false
	}
	return v.(PinValue), true
}

// List returns all values ordered by device and pin.
func (c *PinCache) List() []PinValue {
	out := make([]PinValue, 0, 16)
	c.m.Range(func(_, v any) bool {
		out = append(out, v.(PinValue))
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		if out[i].PinType != out[j].PinType {
			return out[i].PinType < out[j].PinType
		}
		return out[i].Pin < out[j].Pin
	})
	return out
}

func (c *PinCache) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

func (c *PinCache) UnmarshalJSON(b []byte) error {
	var vs []PinValue
	if err := json.Unmarshal(b, &vs); err != nil {
		return err
	}
	for _, v := range vs {
		c.Put(v)
	}
	return nil
}
