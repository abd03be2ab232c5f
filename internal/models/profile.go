package models

import (
	"encoding/json"
	"sync"

	"telemetry_relay/internal/plugin/fermentation"
)

// Profile holds the dashboards of one user. Dashboards are swapped as a whole.
type Profile struct {
	UserID int

	mu         sync.RWMutex
	dashboards []*Dashboard
}

// NewProfile builds a profile and fills in missing pin caches and devices' processors.
func NewProfile(userID int, dashboards []*Dashboard) *Profile {
	p := &Profile{UserID: userID}
	p.dashboards = prepare(dashboards)
	return p
}

// Dashboards returns a snapshot of the dashboard list.
func (p *Profile) Dashboards() []*Dashboard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Dashboard, len(p.dashboards))
	copy(out, p.dashboards)
	return out
}

func (p *Profile) DashboardByID(id int) *Dashboard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.dashboards {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// DeviceByID looks up a device of a dashboard.
func (p *Profile) DeviceByID(dashID, deviceID int) (*Dashboard, *Device) {
	dash := p.DashboardByID(dashID)
	if dash == nil {
		return nil, nil
	}
	return dash, dash.DeviceByID(deviceID)
}

// Replace swaps in new dashboards. Devices that already existed keep their
// connectivity state, processor and pin cache.
func (p *Profile) Replace(dashboards []*Dashboard) {
	dashboards = prepare(dashboards)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, nd := range dashboards {
		var od *Dashboard
		for _, d := range p.dashboards {
			if d.ID == nd.ID {
				od = d
				break
			}
		}
		if od == nil {
			continue
		}
		nd.Values = od.Values
		for _, dev := range nd.Devices {
			if old := od.DeviceByID(dev.ID); old != nil {
				dev.adopt(old)
			}
		}
	}
	p.dashboards = dashboards
}

func prepare(dashboards []*Dashboard) []*Dashboard {
	for _, d := range dashboards {
		if d.Values == nil {
			d.Values = NewPinCache()
		}
		for _, dev := range d.Devices {
			if dev.Plaato == nil {
				dev.Plaato = fermentation.New()
			}
		}
	}
	return dashboards
}

type profileJSON struct {
	Dashboards []*Dashboard `json:"dashboards"`
}

func (p *Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(profileJSON{Dashboards: p.Dashboards()})
}

// ParseDashboards decodes the body of a stored or uploaded profile.
func ParseDashboards(b []byte) ([]*Dashboard, error) {
	var v profileJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v.Dashboards, nil
}
