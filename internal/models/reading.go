package models

import (
	"time"

	"telemetry_relay/internal/pin"
)

// Reading is one reported pin value.
type Reading struct {
	UserID   int       `json:"user_id"`
	DashID   int       `json:"dash_id"`
	DeviceID int       `json:"device_id"`
	PinType  pin.Type  `json:"pin_type"`
	Pin      int       `json:"pin"`
	Value    string    `json:"value"`
	At       time.Time `json:"at"`
}
