package protocol

import "time"

// Merge combines a partial status update into an existing status.
//
// Scalar fields overwrite field-wise; fields absent from the update (nil)
// never overwrite existing data. Filters and Raw merge key-wise with the
// update taking precedence. The result always carries a fresh timestamp.
//
// Neither input is mutated.
//
// Parameters:
//   - existing: the retained status (zero value for a first report)
//   - update: the freshly normalized partial update
//
// Returns:
//   - DeviceStatus: merged status stamped with the current time
func Merge(existing, update DeviceStatus) DeviceStatus {
	merged := existing

	if update.Power != nil {
		merged.Power = update.Power
	}
	if update.Mode != nil {
		merged.Mode = update.Mode
	}
	if update.FanSpeed != nil {
		merged.FanSpeed = update.FanSpeed
	}
	if update.PM25 != nil {
		merged.PM25 = update.PM25
	}
	if update.Humidity != nil {
		merged.Humidity = update.Humidity
	}
	if update.TargetHumidity != nil {
		merged.TargetHumidity = update.TargetHumidity
	}
	if update.Temperature != nil {
		merged.Temperature = update.Temperature
	}
	if update.AQI != nil {
		merged.AQI = update.AQI
	}
	if update.ChildLock != nil {
		merged.ChildLock = update.ChildLock
	}
	if update.Brightness != nil {
		merged.Brightness = update.Brightness
	}

	if len(update.Filters) > 0 {
		filters := make(map[FilterStage]FilterStatus, len(existing.Filters)+len(update.Filters))
		for stage, f := range existing.Filters {
			filters[stage] = f
		}
		for stage, f := range update.Filters {
			filters[stage] = f
		}
		merged.Filters = filters
	}

	if len(update.Raw) > 0 {
		raw := make(map[string]any, len(existing.Raw)+len(update.Raw))
		for k, v := range existing.Raw {
			raw[k] = v
		}
		for k, v := range update.Raw {
			raw[k] = v
		}
		merged.Raw = raw
	}

	merged.Timestamp = time.Now().UTC()
	return merged
}
