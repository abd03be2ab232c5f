// Package target maps a widget's configured target id to concrete device ids.
package target

import "telemetry_relay/internal/models"

// Resolve returns the devices addressed by targetID within dash.
// An unresolvable target yields nil.
func Resolve(dash *models.Dashboard, targetID int) []int {
	if dash == nil {
		return nil
	}
	switch {
	case targetID < models.TagStartID:
		if dash.DeviceByID(targetID) == nil {
			return nil
		}
		return []int{targetID}
	case targetID < models.DeviceSelectorStartID:
		tag := dash.TagByID(targetID)
		if tag == nil {
			return nil
		}
		out := make([]int, len(tag.DeviceIDs))
		copy(out, tag.DeviceIDs)
		return out
	default:
		sel := dash.DeviceSelector(targetID)
		if sel == nil {
			return nil
		}
		if id, ok := sel.Selected(); ok {
			return []int{id}
		}
		return nil
	}
}

// Selects reports whether targetID resolves to a set containing deviceID.
func Selects(dash *models.Dashboard, targetID, deviceID int) bool {
	for _, id := range Resolve(dash, targetID) {
		if id == deviceID {
			return true
		}
	}
	return false
}
