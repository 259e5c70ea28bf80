package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rowanhart/aircloud/internal/protocol"
)

// RecordStatus writes the numeric readings of a merged device status.
//
// Only fields present in the status are written; a delta that carried just
// a pm2.5 reading produces a single-field point. The write is non-blocking
// and batched.
//
// Parameters:
//   - deviceID: The purifier the readings belong to
//   - status: The merged canonical status after an update
func (r *Recorder) RecordStatus(deviceID string, status protocol.DeviceStatus) {
	if !r.IsConnected() {
		return
	}

	fields := statusFields(status)
	if len(fields) == 0 {
		return
	}

	timestamp := status.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	point := write.NewPoint(
		"air_quality",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		timestamp,
	)
	r.writeAPI.WritePoint(point)
}

// statusFields flattens the numeric and boolean readings of a status into
// InfluxDB fields. Absent (nil) readings are skipped.
func statusFields(status protocol.DeviceStatus) map[string]interface{} {
	fields := make(map[string]interface{})

	if status.Power != nil {
		fields["power"] = boolField(*status.Power)
	}
	if status.FanSpeed != nil {
		fields["fan_speed"] = *status.FanSpeed
	}
	if status.PM25 != nil {
		fields["pm25"] = *status.PM25
	}
	if status.Humidity != nil {
		fields["humidity"] = *status.Humidity
	}
	if status.TargetHumidity != nil {
		fields["target_humidity"] = *status.TargetHumidity
	}
	if status.Temperature != nil {
		fields["temperature"] = *status.Temperature
	}
	if status.AQI != nil {
		fields["aqi"] = *status.AQI
	}
	if status.Brightness != nil {
		fields["brightness"] = *status.Brightness
	}
	for stage, filter := range status.Filters {
		fields["filter_"+string(stage)+"_percent"] = filter.Percent
	}

	return fields
}

// boolField maps a flag to 0/1 so it can share a numeric dashboard axis.
func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
