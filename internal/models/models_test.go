package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"telemetry_relay/internal/pin"
)

const profileFixture = `{
  "dashboards": [{
    "id": 1,
    "name": "Brewery",
    "is_active": true,
    "devices": [{"id": 0, "name": "Fermenter", "token": "tok0"}, {"id": 1, "name": "Backup", "token": "tok1"}],
    "tags": [{"id": 100001, "name": "All", "device_ids": [0, 1]}],
    "widgets": [
      {"id": 155, "type": "READING", "device_id": 0, "pin_type": "VIRTUAL", "pin": 107, "frequency": 1000},
      {"id": 200000, "type": "DEVICE_SELECTOR", "device_ids": [0, 1], "value": 1},
      {"id": 9, "type": "NOTIFICATION", "notify_when_offline": true, "notify_when_offline_ignore_period": 500},
      {"id": 21, "type": "DEVICE_TILES",
       "tiles": [{"device_id": 0, "template_id": 5, "data_stream": {"pin_type": "VIRTUAL", "pin": 105}, "frequency": 1000}],
       "templates": [{"id": 5, "widgets": [{"id": 51, "pin_type": "VIRTUAL", "pin": 106, "frequency": 1000}]}]}
    ]
  }]
}`

func TestParseDashboards_DecodesWidgetVariants(t *testing.T) {
	dashes, err := ParseDashboards([]byte(profileFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(dashes) != 1 {
		t.Fatalf("expected 1 dashboard, got %d", len(dashes))
	}
	d := dashes[0]
	if len(d.Widgets) != 4 {
		t.Fatalf("expected 4 widgets, got %d", len(d.Widgets))
	}

	rw, ok := d.Widgets[0].(*ReadingWidget)
	if !ok {
		t.Fatalf("expected *ReadingWidget, got %T", d.Widgets[0])
	}
	if rw.PinType != pin.Virtual || rw.Pin != 107 || rw.Period() != time.Second {
		t.Fatalf("unexpected reading widget: %+v", rw)
	}

	sel := d.DeviceSelector(200000)
	if sel == nil {
		t.Fatalf("selector not found")
	}
	if id, ok := sel.Selected(); !ok || id != 1 {
		t.Fatalf("expected selected device 1, got %d (%v)", id, ok)
	}

	n := d.NotificationWidget()
	if n == nil || !n.NotifyWhenOffline || n.IgnoreFor() != 500*time.Millisecond {
		t.Fatalf("unexpected notification widget: %+v", n)
	}

	tiles, ok := d.Widgets[3].(*DeviceTiles)
	if !ok {
		t.Fatalf("expected *DeviceTiles, got %T", d.Widgets[3])
	}
	if tpl := tiles.TemplateByID(5); tpl == nil || len(tpl.Widgets) != 1 || !tpl.Widgets[0].IsValid() {
		t.Fatalf("unexpected template: %+v", tpl)
	}

	if d.TagByID(100001) == nil || d.DeviceByID(1) == nil || d.DeviceByID(7) != nil {
		t.Fatalf("lookup helpers returned unexpected results")
	}
	if d.DeviceByID(0).Plaato == nil {
		t.Fatalf("expected processor to be created for loaded device")
	}
}

func TestParseDashboards_UnknownWidget(t *testing.T) {
	_, err := ParseDashboards([]byte(`{"dashboards":[{"id":1,"widgets":[{"id":1,"type":"SLIDER"}]}]}`))
	if !errors.Is(err, ErrUnknownWidget) {
		t.Fatalf("expected ErrUnknownWidget, got %v", err)
	}
}

func TestRefresh_DueAtMostOncePerPeriod(t *testing.T) {
	t.Parallel()

	var r Refresh
	start := time.Unix(100, 0)
	if !r.Due(time.Second, start) {
		t.Fatalf("expected first call to be due")
	}
	if r.Due(time.Second, start) {
		t.Fatalf("expected second call in the same instant not to be due")
	}
	if r.Due(time.Second, start.Add(999*time.Millisecond)) {
		t.Fatalf("expected not due before the period elapsed")
	}
	if !r.Due(time.Second, start.Add(time.Second)) {
		t.Fatalf("expected due once the period elapsed")
	}
	if r.Due(0, start.Add(time.Hour)) {
		t.Fatalf("zero period must never be due")
	}
}

func TestTile_ClocksAreIndependent(t *testing.T) {
	t.Parallel()

	tile := &Tile{Frequency: 1000}
	now := time.Unix(100, 0)
	if !tile.IsDue(now) {
		t.Fatalf("expected hardware clock due")
	}
	if !tile.IsDuePlugin(now) {
		t.Fatalf("expected plugin clock due independently")
	}
}

func TestDeviceSelector_Select(t *testing.T) {
	t.Parallel()

	s := &DeviceSelector{ID: 200000, DeviceIDs: []int{0, 1}}
	if _, ok := s.Selected(); ok {
		t.Fatalf("expected no selection")
	}
	if err := s.Select(2); !errors.Is(err, ErrDeviceNotSelected) {
		t.Fatalf("expected ErrDeviceNotSelected, got %v", err)
	}
	if err := s.Select(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if id, _ := s.Selected(); id != 1 {
		t.Fatalf("expected 1, got %d", id)
	}
}

func TestDevice_StatusTransitions(t *testing.T) {
	t.Parallel()

	d := NewDevice(1, "dev", "tok")
	now := time.Unix(1000, 0)

	if d.Status() != StatusOffline {
		t.Fatalf("new device should be offline, got %s", d.Status())
	}
	if d.MarkPendingOffline() {
		t.Fatalf("offline device cannot become pending")
	}

	d.Connected(5, now)
	if d.Status() != StatusOnline {
		t.Fatalf("expected ONLINE, got %s", d.Status())
	}
	if !d.MarkPendingOffline() || d.Status() != StatusPendingOffline {
		t.Fatalf("expected PENDING_OFFLINE, got %s", d.Status())
	}
	if d.ReconnectedSince(5) {
		t.Fatalf("no login after seq 5")
	}
	d.Restore()
	if d.Status() != StatusOnline {
		t.Fatalf("restore should put the device back online, got %s", d.Status())
	}

	d.Connected(7, now)
	if !d.ReconnectedSince(6) {
		t.Fatalf("login 7 happened after seq 6")
	}

	d.Disconnected(now)
	if d.IsOfflineFor(7*time.Minute, now.Add(6*time.Minute)) {
		t.Fatalf("not offline long enough")
	}
	if !d.IsOfflineFor(7*time.Minute, now.Add(7*time.Minute)) {
		t.Fatalf("expected offline for 7 minutes")
	}
}

func TestProfile_ReplaceKeepsRuntimeState(t *testing.T) {
	dashes, err := ParseDashboards([]byte(profileFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p := NewProfile(1, dashes)
	_, dev := p.DeviceByID(1, 0)
	dev.Connected(3, time.Unix(10, 0))
	dev.SetHeartbeat(1)
	if err := dev.Plaato.ProcessApp(112, "25"); err != nil {
		t.Fatalf("process app: %v", err)
	}
	p.DashboardByID(1).Update(0, pin.Virtual, 5, "on", time.Unix(10, 0))

	next, err := ParseDashboards([]byte(profileFixture))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	next[0].Devices[0].Token = ""
	p.Replace(next)

	_, replaced := p.DeviceByID(1, 0)
	if replaced == dev {
		t.Fatalf("expected a new device value")
	}
	if replaced.Status() != StatusOnline || replaced.Heartbeat() != 1 {
		t.Fatalf("runtime state not carried over: %+v", replaced.State())
	}
	if replaced.Token != "tok0" {
		t.Fatalf("expected token to be kept, got %q", replaced.Token)
	}
	if v, ok := replaced.Plaato.Pull(105); !ok || v != "1.024" {
		t.Fatalf("processor not carried over: %q %v", v, ok)
	}
	if _, ok := p.DashboardByID(1).Values.Get(0, pin.Virtual, 5); !ok {
		t.Fatalf("pin cache not carried over")
	}
}

func TestDevice_JSONRoundTripStartsOffline(t *testing.T) {
	d := NewDevice(3, "dev", "tok")
	d.Connected(1, time.Unix(10, 0))
	d.SetHeartbeat(5)

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Device
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != 3 || back.Token != "tok" || back.Heartbeat() != 5 {
		t.Fatalf("unexpected device: %+v", back.State())
	}
	if back.Status() != StatusOffline {
		t.Fatalf("restored device must start offline, got %s", back.Status())
	}
	if back.Plaato == nil {
		t.Fatalf("expected processor")
	}
}
