package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/rowanhart/aircloud/internal/infrastructure/config"
	"github.com/rowanhart/aircloud/internal/protocol"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() = %v, want ErrDisabled", err)
	}
}

func TestRecordStatusWhenDisconnectedIsNoOp(t *testing.T) {
	r := &Recorder{}
	// Must not panic despite the nil write API.
	r.RecordStatus("dev-1", protocol.DeviceStatus{PM25: protocol.Int(12)})
	r.Flush()
}

// =============================================================================
// Field mapping
// =============================================================================

func TestStatusFields(t *testing.T) {
	mode := protocol.ModeSleep
	status := protocol.DeviceStatus{
		Power:          protocol.Bool(true),
		Mode:           &mode,
		FanSpeed:       protocol.Int(3),
		PM25:           protocol.Int(18),
		Humidity:       protocol.Int(44),
		TargetHumidity: protocol.Int(50),
		Temperature:    protocol.Int(22),
		AQI:            protocol.Int(2),
		Brightness:     protocol.Int(75),
		Filters: map[protocol.FilterStage]protocol.FilterStatus{
			protocol.FilterMain: {RemainingHours: 180, NominalHours: 360, Percent: 50},
		},
		Timestamp: time.Now().UTC(),
	}

	fields := statusFields(status)

	want := map[string]interface{}{
		"power":               1,
		"fan_speed":           3,
		"pm25":                18,
		"humidity":            44,
		"target_humidity":     50,
		"temperature":         22,
		"aqi":                 2,
		"brightness":          75,
		"filter_main_percent": 50,
	}
	if len(fields) != len(want) {
		t.Fatalf("field count = %d, want %d (%v)", len(fields), len(want), fields)
	}
	for key, value := range want {
		if fields[key] != value {
			t.Errorf("field %s = %v, want %v", key, fields[key], value)
		}
	}
}

func TestStatusFieldsSkipsAbsentReadings(t *testing.T) {
	fields := statusFields(protocol.DeviceStatus{PM25: protocol.Int(7)})

	if len(fields) != 1 {
		t.Fatalf("field count = %d, want 1 (%v)", len(fields), fields)
	}
	if fields["pm25"] != 7 {
		t.Errorf("pm25 = %v, want 7", fields["pm25"])
	}
}

func TestStatusFieldsPowerOff(t *testing.T) {
	fields := statusFields(protocol.DeviceStatus{Power: protocol.Bool(false)})
	if fields["power"] != 0 {
		t.Errorf("power = %v, want 0", fields["power"])
	}
}

func TestStatusFieldsEmptyStatus(t *testing.T) {
	if fields := statusFields(protocol.DeviceStatus{}); len(fields) != 0 {
		t.Errorf("empty status produced fields: %v", fields)
	}
}
