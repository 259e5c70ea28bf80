package protocol

import (
	"fmt"
	"time"
)

// Mode is the canonical operating mode of the device.
//
// ModeManual is accompanied by a fan speed; the other modes are not.
// Unrecognized wire codes map to a synthetic "unknown-N" mode so that new
// firmware values degrade gracefully instead of failing normalization.
type Mode string

// Canonical operating modes.
const (
	ModeAuto   Mode = "auto"
	ModeSleep  Mode = "sleep"
	ModeTurbo  Mode = "turbo"
	ModeManual Mode = "manual"
)

// UnknownMode returns the synthetic mode label for an unrecognized wire code.
func UnknownMode(code int) Mode {
	return Mode(fmt.Sprintf("unknown-%d", code))
}

// FilterStage identifies one of the device's two filter wear counters.
type FilterStage string

// Filter stages.
const (
	// FilterPreClean is the periodic-clean stage (washable pre-filter).
	FilterPreClean FilterStage = "pre_clean"

	// FilterMain is the full-replacement stage (HEPA/carbon pack).
	FilterMain FilterStage = "main"
)

// FilterStatus describes the wear of a single filter stage.
//
// Percent is derived, not transmitted: round(remaining/nominal*100).
// NeedsService is set when Percent falls to the service threshold or below.
type FilterStatus struct {
	RemainingHours int  `json:"remaining_hours"`
	NominalHours   int  `json:"nominal_hours"`
	Percent        int  `json:"percent"`
	NeedsService   bool `json:"needs_service"`
}

// DeviceStatus is the canonical, generation-free representation of a
// device's reported state.
//
// Pointer fields distinguish "absent from the report" (nil) from a real
// zero value; NormalizeReported never defaults an attribute the wire did
// not carry. Raw passes through any fields no generation table recognizes.
type DeviceStatus struct {
	Power          *bool  `json:"power,omitempty"`
	Mode           *Mode  `json:"mode,omitempty"`
	FanSpeed       *int   `json:"fan_speed,omitempty"`
	PM25           *int   `json:"pm25,omitempty"`
	Humidity       *int   `json:"humidity,omitempty"`
	TargetHumidity *int   `json:"target_humidity,omitempty"`
	Temperature    *int   `json:"temperature,omitempty"`
	AQI            *int   `json:"aqi,omitempty"`
	ChildLock      *bool  `json:"child_lock,omitempty"`
	Brightness     *int   `json:"brightness,omitempty"`

	Filters map[FilterStage]FilterStatus `json:"filters,omitempty"`
	Raw     map[string]any               `json:"raw,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Command is a canonical desired-state change request.
//
// Nil fields are omitted from the generated patch, so partial updates touch
// only the attributes the caller specified.
type Command struct {
	Power          *bool `json:"power,omitempty"`
	Mode           *Mode `json:"mode,omitempty"`
	FanSpeed       *int  `json:"fan_speed,omitempty"`
	TargetHumidity *int  `json:"target_humidity,omitempty"`
	ChildLock      *bool `json:"child_lock,omitempty"`
	Brightness     *int  `json:"brightness,omitempty"`
}

// Bool returns a pointer to b. Convenience for building Command literals.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n. Convenience for building Command literals.
func Int(n int) *int { return &n }

// ModePtr returns a pointer to m. Convenience for building Command literals.
func ModePtr(m Mode) *Mode { return &m }
