package protocol

import (
	"errors"
	"math"
	"testing"
)

func TestConfigNormalize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InterfaceStatusInterval = 10
	cfg.MotorMinWidth = 5000
	cfg.Normalize()

	if cfg.InterfaceStatusInterval != MinStatusInterval {
		t.Errorf("Expected status interval clamped to %d, got %d", MinStatusInterval, cfg.InterfaceStatusInterval)
	}
	if cfg.MotorMaxWidth != 5000 {
		t.Errorf("Expected max width raised to min width, got %d", cfg.MotorMaxWidth)
	}
}

func TestStepsForDegreesRange(t *testing.T) {
	cfg := &Config{TransmissionRatio: 1}
	if steps, err := cfg.StepsForDegrees(math.MaxInt32); err != nil || steps != math.MaxInt32 {
		t.Errorf("Expected %d steps, got %d (%v)", int32(math.MaxInt32), steps, err)
	}
	if steps, err := cfg.StepsForDegrees(math.MinInt32); err != nil || steps != math.MinInt32 {
		t.Errorf("Expected %d steps, got %d (%v)", int32(math.MinInt32), steps, err)
	}

	for _, deg := range []float64{math.MaxInt32 + 1, math.MinInt32 - 1, 1e300, math.Inf(1), math.Inf(-1), math.NaN()} {
		steps, err := cfg.StepsForDegrees(deg)
		if !errors.Is(err, ErrFieldRange) {
			t.Errorf("Expected ErrFieldRange for %v degrees, got %v", deg, err)
		}
		if steps != 0 {
			t.Errorf("Expected 0 steps on failure for %v degrees, got %d", deg, steps)
		}
	}

	cfg.TransmissionRatio = 30000
	if _, err := cfg.StepsForDegrees(360000); !errors.Is(err, ErrFieldRange) {
		t.Errorf("Expected ErrFieldRange for a large ratio, got %v", err)
	}
}

func TestStepsForDegrees(t *testing.T) {
	cfg := &Config{TransmissionRatio: 8.5}

	if steps, err := cfg.StepsForDegrees(10); err != nil || steps != 85 {
		t.Errorf("Expected 85 steps, got %d (%v)", steps, err)
	}
	if steps, err := cfg.StepsForDegrees(-2); err != nil || steps != -17 {
		t.Errorf("Expected -17 steps, got %d (%v)", steps, err)
	}
	if deg := cfg.DegreesForSteps(17); deg != 2 {
		t.Errorf("Expected 2 degrees, got %v", deg)
	}

	cfg.TransmissionRatio = 0
	if deg := cfg.DegreesForSteps(17); deg != 0 {
		t.Errorf("Expected 0 degrees with zero ratio, got %v", deg)
	}
}

func TestProgressNames(t *testing.T) {
	p := &Progress{CurrentState: StateRunning, CurrentSubState: 3}
	if p.StateName() != "running" || p.SubStateName() != "photo_busy" {
		t.Errorf("Unexpected names: %s/%s", p.StateName(), p.SubStateName())
	}

	p = &Progress{CurrentState: 9, CurrentSubState: 200}
	if p.StateName() != "unknown" || p.SubStateName() != "unknown" {
		t.Errorf("Expected unknown names, got %s/%s", p.StateName(), p.SubStateName())
	}
}

func TestProgressBusy(t *testing.T) {
	testCases := []struct {
		state, sub uint8
		busy       bool
	}{
		{StateHalted, 0, false},
		{StateRunning, 4, true},
		{StateShouldPause, 4, false},
		{StateShouldPause, 6, false},
		{StateShouldPause, 9, false},
		{StateShouldPause, 8, true},
	}

	for _, tc := range testCases {
		p := &Progress{CurrentState: tc.state, CurrentSubState: tc.sub}
		if p.Busy() != tc.busy {
			t.Errorf("state=%d sub=%d: expected busy=%v", tc.state, tc.sub, tc.busy)
		}
	}
}

func TestProgressFraction(t *testing.T) {
	p := &Progress{CurrentStep: 3, StackCount: 5}
	if f := p.Fraction(); f != 0.5 {
		t.Errorf("Expected 0.5, got %v", f)
	}

	p.IsStackFinished = true
	if f := p.Fraction(); f != 1 {
		t.Errorf("Expected 1 when finished, got %v", f)
	}

	p = &Progress{CurrentStep: 1, StackCount: 1}
	if f := p.Fraction(); f != 0 {
		t.Errorf("Expected 0 for single-step stack, got %v", f)
	}
}

func TestRepoStateName(t *testing.T) {
	for state, name := range map[uint8]string{0: "clean", 1: "dirty", 2: "unknown", 7: "unknown"} {
		if got := RepoStateName(state); got != name {
			t.Errorf("RepoStateName(%d) = %s, expected %s", state, got, name)
		}
	}
}
