package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rowanhart/aircloud/internal/protocol"
)

// deviceSummary is one entry in the device listing.
type deviceSummary struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name,omitempty"`
	Status *protocol.DeviceStatus `json:"status,omitempty"`
}

// handleListDevices returns the tracked devices with their cached statuses.
//
// The cached status is the latest merged view built from deltas and polled
// responses; it is omitted for devices no state has been observed for yet.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	names := make(map[string]string, len(s.devices))
	for _, d := range s.devices {
		names[d.ID] = d.Name
	}

	ids := s.session.Devices()
	summaries := make([]deviceSummary, 0, len(ids))
	for _, id := range ids {
		summary := deviceSummary{ID: id, Name: names[id]}
		if status, ok := s.session.CachedStatus(id); ok {
			summary.Status = &status
		}
		summaries = append(summaries, summary)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": summaries,
		"count":   len(summaries),
	})
}

// handleGetDeviceState polls the device's shadow and returns the fresh
// normalized status. Unlike the listing, this round-trips to the cloud.
func (s *Server) handleGetDeviceState(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if !s.knownDevice(deviceID) {
		writeNotFound(w, "unknown device: "+deviceID)
		return
	}

	status, err := s.session.GetState(r.Context(), deviceID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleSetDeviceState applies a command to the device.
//
// The request body is a canonical command, for example:
//
//	{"power": true, "mode": "manual", "fan_speed": 3}
//
// It is translated to a desired-state patch and pushed through the shadow;
// the response confirms cloud acceptance, not device application. The
// resulting state change arrives asynchronously on the event stream.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if !s.knownDevice(deviceID) {
		writeNotFound(w, "unknown device: "+deviceID)
		return
	}

	var cmd protocol.Command
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid command body: "+err.Error())
		return
	}
	if err := validateCommand(cmd); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.session.UpdateState(r.Context(), deviceID, cmd); err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted":  true,
		"device_id": deviceID,
	})
}

// knownDevice reports whether the session tracks the device.
func (s *Server) knownDevice(deviceID string) bool {
	for _, id := range s.session.Devices() {
		if id == deviceID {
			return true
		}
	}
	return false
}

// validateCommand rejects commands that are empty or out of range before
// they reach the wire.
func validateCommand(cmd protocol.Command) error {
	if cmd.Power == nil && cmd.Mode == nil && cmd.FanSpeed == nil &&
		cmd.TargetHumidity == nil && cmd.ChildLock == nil && cmd.Brightness == nil {
		return errors.New("command must set at least one field")
	}
	if cmd.Mode != nil {
		switch *cmd.Mode {
		case protocol.ModeAuto, protocol.ModeSleep, protocol.ModeTurbo, protocol.ModeManual:
		default:
			return errors.New("mode must be one of auto, sleep, turbo, manual")
		}
	}
	if cmd.FanSpeed != nil && (*cmd.FanSpeed < protocol.ManualSpeedMin || *cmd.FanSpeed > protocol.ManualSpeedMax) {
		return errors.New("fan_speed must be between 1 and 10")
	}
	if cmd.Brightness != nil && (*cmd.Brightness < 0 || *cmd.Brightness > 100) {
		return errors.New("brightness must be between 0 and 100")
	}
	return nil
}
