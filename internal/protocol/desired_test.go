package protocol

import (
	"reflect"
	"testing"
)

// =============================================================================
// BuildDesired Tests
// =============================================================================

func TestBuildDesired_PowerOffOnly(t *testing.T) {
	patch := BuildDesired(Command{Power: Bool(false)})

	want := map[string]any{"D03102": 0}
	if !reflect.DeepEqual(patch, want) {
		t.Errorf("BuildDesired() = %v, want exactly %v", patch, want)
	}
}

func TestBuildDesired_EmptyCommand(t *testing.T) {
	patch := BuildDesired(Command{})
	if len(patch) != 0 {
		t.Errorf("BuildDesired(empty) = %v, want empty patch", patch)
	}
}

func TestBuildDesired_ModeEncoding(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want int
	}{
		{"auto", Command{Mode: ModePtr(ModeAuto)}, 0},
		{"sleep", Command{Mode: ModePtr(ModeSleep)}, 17},
		{"turbo", Command{Mode: ModePtr(ModeTurbo)}, 18},
		{"manual with speed", Command{Mode: ModePtr(ModeManual), FanSpeed: Int(4)}, 4},
		{"manual without speed defaults to minimum", Command{Mode: ModePtr(ModeManual)}, 1},
		{"fan speed alone implies manual", Command{FanSpeed: Int(7)}, 7},
		{"fan speed clamped high", Command{FanSpeed: Int(40)}, 10},
		{"fan speed clamped low", Command{Mode: ModePtr(ModeManual), FanSpeed: Int(-3)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := BuildDesired(tt.cmd)
			got, ok := patch["D0310C"]
			if !ok {
				t.Fatalf("patch %v missing mode field", patch)
			}
			if got != tt.want {
				t.Errorf("mode code = %v, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildDesired_FullCommand(t *testing.T) {
	patch := BuildDesired(Command{
		Power:          Bool(true),
		Mode:           ModePtr(ModeManual),
		FanSpeed:       Int(3),
		TargetHumidity: Int(60),
		ChildLock:      Bool(true),
		Brightness:     Int(50),
	})

	want := map[string]any{
		"D03102": 1,
		"D0310C": 3,
		"D03128": 60,
		"D03135": 1,
		"D0313B": 50,
	}
	if !reflect.DeepEqual(patch, want) {
		t.Errorf("BuildDesired() = %v, want %v", patch, want)
	}
}

func TestBuildDesired_BrightnessClamped(t *testing.T) {
	patch := BuildDesired(Command{Brightness: Int(150)})
	if patch["D0313B"] != 100 {
		t.Errorf("Brightness = %v, want clamped to 100", patch["D0313B"])
	}
}

// TestBuildDesired_RoundTrip verifies that the generation-3 subset of a
// normalized report survives the desired path unchanged.
func TestBuildDesired_RoundTrip(t *testing.T) {
	raw := map[string]any{
		"D03102": float64(1),
		"D0310C": float64(6),
		"D03128": float64(55),
		"D03135": float64(0),
		"D0313B": float64(80),
	}

	st := NormalizeReported(raw)
	patch := BuildDesired(Command{
		Power:          st.Power,
		Mode:           st.Mode,
		FanSpeed:       st.FanSpeed,
		TargetHumidity: st.TargetHumidity,
		ChildLock:      st.ChildLock,
		Brightness:     st.Brightness,
	})

	want := map[string]any{
		"D03102": 1,
		"D0310C": 6,
		"D03128": 55,
		"D03135": 0,
		"D0313B": 80,
	}
	if !reflect.DeepEqual(patch, want) {
		t.Errorf("round trip = %v, want %v", patch, want)
	}
}
