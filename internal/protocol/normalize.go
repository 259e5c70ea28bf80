package protocol

import (
	"math"
	"strconv"
	"time"
)

// Generation-3 field identifiers (current firmware).
const (
	fieldPower           = "D03102"
	fieldModeCode        = "D0310C"
	fieldPM25            = "D03221"
	fieldHumidity        = "D03125"
	fieldTargetHumidity  = "D03128"
	fieldTemperature     = "D03224" // deci-degrees Celsius
	fieldAQI             = "D0312A"
	fieldChildLock       = "D03135"
	fieldBrightness      = "D0313B"
	fieldFilter0Remain   = "D0313F"
	fieldFilter0Nominal  = "D03140"
	fieldFilter1Remain   = "D03141"
	fieldFilter1Nominal  = "D03142"
)

// Mode/fan-speed codec constants. A single numeric field carries both the
// mode and, for manual operation, the fan speed.
const (
	modeCodeAuto  = 0
	modeCodeSleep = 17
	modeCodeTurbo = 18

	// ManualSpeedMin and ManualSpeedMax bound the manual fan-speed range.
	// Codes in this range decode to manual mode at that speed.
	ManualSpeedMin = 1
	ManualSpeedMax = 10
)

// filterServiceThreshold is the wear percentage at or below which a filter
// stage is flagged as needing service.
const filterServiceThreshold = 5

// Candidate raw keys per canonical attribute, probed newest generation
// first. Generation 1 shares generation 2's mnemonic keys but carries
// string-typed values; the value coercion below accepts both.
var (
	powerKeys          = []string{fieldPower, "pwr"}
	modeKeys           = []string{fieldModeCode, "om"}
	pm25Keys           = []string{fieldPM25, "pm25"}
	humidityKeys       = []string{fieldHumidity, "rh"}
	targetHumidityKeys = []string{fieldTargetHumidity, "rhset"}
	aqiKeys            = []string{fieldAQI, "iaql"}
	childLockKeys      = []string{fieldChildLock, "cl"}
	brightnessKeys     = []string{fieldBrightness, "aqil"}
	filter0RemainKeys  = []string{fieldFilter0Remain, "fltsts0"}
	filter0NominalKeys = []string{fieldFilter0Nominal, "flttotal0"}
	filter1RemainKeys  = []string{fieldFilter1Remain, "fltsts1"}
	filter1NominalKeys = []string{fieldFilter1Nominal, "flttotal1"}
)

// recognizedKeys is the union of every key any generation table claims.
// Fields outside this set pass through into DeviceStatus.Raw untouched.
var recognizedKeys = buildRecognizedKeys()

func buildRecognizedKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	for _, group := range [][]string{
		powerKeys, modeKeys, pm25Keys, humidityKeys, targetHumidityKeys,
		aqiKeys, childLockKeys, brightnessKeys,
		filter0RemainKeys, filter0NominalKeys, filter1RemainKeys, filter1NominalKeys,
		{fieldTemperature, "temp"},
	} {
		for _, k := range group {
			keys[k] = struct{}{}
		}
	}
	return keys
}

// NormalizeReported maps a raw reported field set to the canonical status.
//
// For every canonical attribute the candidate keys are probed in fixed
// priority order (newest generation first) and the first present key wins.
// Attributes absent from all generations are left nil, never defaulted.
// Unrecognized fields are preserved in the Raw passthrough map.
//
// Parameters:
//   - raw: decoded JSON object from a shadow document's reported section
//
// Returns:
//   - DeviceStatus: canonical status with Timestamp set to now
func NormalizeReported(raw map[string]any) DeviceStatus {
	st := DeviceStatus{Timestamp: time.Now().UTC()}
	if len(raw) == 0 {
		return st
	}

	if v, ok := intField(raw, powerKeys); ok {
		on := v != 0
		st.Power = &on
	}
	if mode, speed, ok := decodeMode(raw); ok {
		st.Mode = &mode
		st.FanSpeed = speed
	}
	if v, ok := intField(raw, pm25Keys); ok {
		st.PM25 = &v
	}
	if v, ok := intField(raw, humidityKeys); ok {
		st.Humidity = &v
	}
	if v, ok := intField(raw, targetHumidityKeys); ok {
		st.TargetHumidity = &v
	}
	if v, ok := decodeTemperature(raw); ok {
		st.Temperature = &v
	}
	if v, ok := intField(raw, aqiKeys); ok {
		st.AQI = &v
	}
	if v, ok := intField(raw, childLockKeys); ok {
		locked := v != 0
		st.ChildLock = &locked
	}
	if v, ok := intField(raw, brightnessKeys); ok {
		st.Brightness = &v
	}

	if f, ok := decodeFilter(raw, filter0RemainKeys, filter0NominalKeys); ok {
		st.Filters = map[FilterStage]FilterStatus{FilterPreClean: f}
	}
	if f, ok := decodeFilter(raw, filter1RemainKeys, filter1NominalKeys); ok {
		if st.Filters == nil {
			st.Filters = make(map[FilterStage]FilterStatus, 1)
		}
		st.Filters[FilterMain] = f
	}

	for k, v := range raw {
		if _, known := recognizedKeys[k]; known {
			continue
		}
		if st.Raw == nil {
			st.Raw = make(map[string]any)
		}
		st.Raw[k] = v
	}

	return st
}

// decodeMode resolves the combined mode/fan-speed field.
//
// Generation 3 and 2 carry a numeric code: 0 is auto, 17 sleep, 18 turbo,
// 1-10 manual at that fan speed. Generation 1 carries a mnemonic string
// ("a", "s", "t", or a digit for manual speed). Codes outside every known
// range degrade to a synthetic unknown mode rather than failing.
func decodeMode(raw map[string]any) (Mode, *int, bool) {
	for _, key := range modeKeys {
		v, present := raw[key]
		if !present {
			continue
		}
		if s, isString := v.(string); isString {
			return decodeLegacyMode(s)
		}
		if code, ok := toInt(v); ok {
			mode, speed := DecodeModeCode(code)
			return mode, speed, true
		}
	}
	return "", nil, false
}

// DecodeModeCode decodes a generation-3/2 combined mode and fan-speed code.
func DecodeModeCode(code int) (Mode, *int) {
	switch {
	case code == modeCodeAuto:
		return ModeAuto, nil
	case code == modeCodeSleep:
		return ModeSleep, nil
	case code == modeCodeTurbo:
		return ModeTurbo, nil
	case code >= ManualSpeedMin && code <= ManualSpeedMax:
		speed := code
		return ModeManual, &speed
	default:
		return UnknownMode(code), nil
	}
}

// EncodeModeCode is the inverse of DecodeModeCode for the desired path.
// Manual fan speeds are clamped to the declared manual-speed range.
func EncodeModeCode(mode Mode, fanSpeed *int) int {
	switch mode {
	case ModeAuto:
		return modeCodeAuto
	case ModeSleep:
		return modeCodeSleep
	case ModeTurbo:
		return modeCodeTurbo
	case ModeManual:
		speed := ManualSpeedMin
		if fanSpeed != nil {
			speed = clamp(*fanSpeed, ManualSpeedMin, ManualSpeedMax)
		}
		return speed
	default:
		return modeCodeAuto
	}
}

// decodeLegacyMode decodes the generation-1 string-typed mode flag.
func decodeLegacyMode(s string) (Mode, *int, bool) {
	switch s {
	case "a", "P":
		return ModeAuto, nil, true
	case "s", "S":
		return ModeSleep, nil, true
	case "t", "T":
		return ModeTurbo, nil, true
	default:
		if speed, err := strconv.Atoi(s); err == nil {
			if speed >= ManualSpeedMin && speed <= ManualSpeedMax {
				return ModeManual, &speed, true
			}
			return UnknownMode(speed), nil, true
		}
	}
	return "", nil, false
}

// decodeTemperature resolves the temperature field.
//
// Generation 3 transmits deci-degrees and is converted with rounding
// (math.Round, half away from zero); sibling implementations disagree on
// round vs truncate and rounding keeps the desired/reported round trip
// stable at .5 boundaries. Generation 2/1 transmit whole degrees.
func decodeTemperature(raw map[string]any) (int, bool) {
	if v, ok := intFieldKey(raw, fieldTemperature); ok {
		return int(math.Round(float64(v) / 10.0)), true
	}
	if v, ok := intFieldKey(raw, "temp"); ok {
		return v, true
	}
	return 0, false
}

// decodeFilter derives one filter stage's wear from its remaining/nominal
// hour counters. The percentage is computed, never transmitted.
func decodeFilter(raw map[string]any, remainKeys, nominalKeys []string) (FilterStatus, bool) {
	remain, ok := intField(raw, remainKeys)
	if !ok {
		return FilterStatus{}, false
	}
	f := FilterStatus{RemainingHours: remain}
	if nominal, ok := intField(raw, nominalKeys); ok && nominal > 0 {
		f.NominalHours = nominal
		f.Percent = int(math.Round(float64(remain) / float64(nominal) * 100))
		f.NeedsService = f.Percent <= filterServiceThreshold
	}
	return f, true
}

// intField probes candidate keys in priority order and returns the first
// present value coerced to int.
func intField(raw map[string]any, keys []string) (int, bool) {
	for _, key := range keys {
		if v, ok := intFieldKey(raw, key); ok {
			return v, true
		}
	}
	return 0, false
}

// intFieldKey coerces a single raw value to int. JSON decoding yields
// float64 for numbers; generation-1 firmware sends numeric strings; bools
// cover legacy on/off flags.
func intFieldKey(raw map[string]any, key string) (int, bool) {
	v, present := raw[key]
	if !present {
		return 0, false
	}
	return toInt(v)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
