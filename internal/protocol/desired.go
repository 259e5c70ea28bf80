package protocol

// BuildDesired maps a canonical command to a raw desired-state patch.
//
// The patch targets generation-3 field identifiers only; the cloud service
// translates for devices running older firmware. Attributes absent from the
// command are omitted from the patch so partial updates never clobber
// unrelated fields.
//
// A FanSpeed without an explicit Mode implies manual mode, matching how the
// combined code field works on the wire.
//
// Parameters:
//   - cmd: canonical command with nil fields for untouched attributes
//
// Returns:
//   - map[string]any: raw patch suitable for the update request's
//     state.desired section; empty (non-nil) when the command is empty
func BuildDesired(cmd Command) map[string]any {
	patch := make(map[string]any)

	if cmd.Power != nil {
		patch[fieldPower] = boolToInt(*cmd.Power)
	}

	switch {
	case cmd.Mode != nil:
		patch[fieldModeCode] = EncodeModeCode(*cmd.Mode, cmd.FanSpeed)
	case cmd.FanSpeed != nil:
		patch[fieldModeCode] = EncodeModeCode(ModeManual, cmd.FanSpeed)
	}

	if cmd.TargetHumidity != nil {
		patch[fieldTargetHumidity] = *cmd.TargetHumidity
	}
	if cmd.ChildLock != nil {
		patch[fieldChildLock] = boolToInt(*cmd.ChildLock)
	}
	if cmd.Brightness != nil {
		patch[fieldBrightness] = clamp(*cmd.Brightness, 0, 100)
	}

	return patch
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
