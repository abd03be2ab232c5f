package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_RecordsOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelay(reg)

	m.RecordTicked(PassHardware, 3)
	m.RecordTicked(PassPlugin, 0)
	m.RecordStatus("OFFLINE")
	m.RecordPush(PushSent)
	m.RecordPush(PushSent)
	m.RecordTick(0.002)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.WidgetsTicked.WithLabelValues(PassHardware)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.WidgetsTicked.WithLabelValues(PassPlugin)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeviceStatus.WithLabelValues("OFFLINE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pushes.WithLabelValues(PushSent)))

	n, err := testutil.GatherAndCount(reg, "relay_tick_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRelay_NilIsNoop(t *testing.T) {
	var m *Relay
	m.RecordTicked(PassHardware, 1)
	m.RecordStatus("ONLINE")
	m.RecordPush(PushFailed)
	m.RecordTick(1)
}
