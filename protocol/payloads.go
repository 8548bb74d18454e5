package protocol

import (
	"fmt"
	"math"
)

// Firmware defaults (see firmware config.h)
const (
	DefaultMotorMinWidth           = 1000
	DefaultMotorMaxWidth           = 4000
	DefaultMotorRampLength         = 100
	DefaultCameraFocusDuration     = 1000
	DefaultCameraShutterDuration   = 1000
	DefaultStackDelayBeforePhoto   = 1000
	DefaultStackDelayAfterPhoto    = 200
	DefaultStackMoveSteps          = 200
	DefaultStackCount              = 5
	DefaultInterfaceStatusInterval = 100

	// MinStatusInterval is the lowest status interval the UI lets through
	MinStatusInterval = 100

	versionHashWidth = 16
)

// Version is the get_version payload
type Version struct {
	Hash     string `json:"hash" yaml:"hash"`
	Staged   uint8  `json:"staged" yaml:"staged"`
	Unstaged uint8  `json:"unstaged" yaml:"unstaged"`
}

func (*Version) PayloadName() string { return "version" }

func (p *Version) VisitFields(v FieldVisitor) {
	v.Text("hash", &p.Hash, versionHashWidth)
	v.Uint8("staged", &p.Staged)
	v.Uint8("unstaged", &p.Unstaged)
}

// RepoStateName names the staged/unstaged repository state reported by the
// firmware build
func RepoStateName(state uint8) string {
	switch state {
	case 0:
		return "clean"
	case 1:
		return "dirty"
	default:
		return "unknown"
	}
}

// Config is the get_config / set_config payload.
// Durations and widths are in milliseconds.
type Config struct {
	MotorMinWidth           uint32  `json:"motor_min_width" yaml:"motor_min_width"`
	MotorMaxWidth           uint32  `json:"motor_max_width" yaml:"motor_max_width"`
	MotorRampLength         uint32  `json:"motor_ramp_length" yaml:"motor_ramp_length"`
	CameraFocusDuration     uint32  `json:"camera_focus_duration" yaml:"camera_focus_duration"`
	CameraShutterDuration   uint32  `json:"camera_shutter_duration" yaml:"camera_shutter_duration"`
	StackDelayBeforePhoto   uint32  `json:"stack_delay_before_photo" yaml:"stack_delay_before_photo"`
	StackDelayAfterPhoto    uint32  `json:"stack_delay_after_photo" yaml:"stack_delay_after_photo"`
	StackMoveSteps          int32   `json:"stack_move_steps" yaml:"stack_move_steps"`
	StackCount              uint32  `json:"stack_count" yaml:"stack_count"`
	InterfaceStatusInterval uint32  `json:"interface_status_interval" yaml:"interface_status_interval"`
	TransmissionRatio       float64 `json:"transmission_ratio" yaml:"transmission_ratio"` // motor steps per degree
}

func (*Config) PayloadName() string { return "config" }

func (p *Config) VisitFields(v FieldVisitor) {
	v.Uint32("motor_min_width", &p.MotorMinWidth)
	v.Uint32("motor_max_width", &p.MotorMaxWidth)
	v.Uint32("motor_ramp_length", &p.MotorRampLength)
	v.Uint32("camera_focus_duration", &p.CameraFocusDuration)
	v.Uint32("camera_shutter_duration", &p.CameraShutterDuration)
	v.Uint32("stack_delay_before_photo", &p.StackDelayBeforePhoto)
	v.Uint32("stack_delay_after_photo", &p.StackDelayAfterPhoto)
	v.Int32("stack_move_steps", &p.StackMoveSteps)
	v.Uint32("stack_count", &p.StackCount)
	v.Uint32("interface_status_interval", &p.InterfaceStatusInterval)
	v.Fixed("transmission_ratio", &p.TransmissionRatio)
}

// DefaultConfig returns the firmware's power-on configuration
func DefaultConfig() *Config {
	return &Config{
		MotorMinWidth:           DefaultMotorMinWidth,
		MotorMaxWidth:           DefaultMotorMaxWidth,
		MotorRampLength:         DefaultMotorRampLength,
		CameraFocusDuration:     DefaultCameraFocusDuration,
		CameraShutterDuration:   DefaultCameraShutterDuration,
		StackDelayBeforePhoto:   DefaultStackDelayBeforePhoto,
		StackDelayAfterPhoto:    DefaultStackDelayAfterPhoto,
		StackMoveSteps:          DefaultStackMoveSteps,
		StackCount:              DefaultStackCount,
		InterfaceStatusInterval: DefaultInterfaceStatusInterval,
		TransmissionRatio:       1,
	}
}

// Normalize clamps values the firmware would misbehave on
func (p *Config) Normalize() {
	if p.InterfaceStatusInterval < MinStatusInterval {
		p.InterfaceStatusInterval = MinStatusInterval
	}
	if p.MotorMaxWidth < p.MotorMinWidth {
		p.MotorMaxWidth = p.MotorMinWidth
	}
}

// StepsForDegrees converts a rotation into motor steps using the
// transmission ratio. It fails with ErrFieldRange when the result does not
// fit an action_motor step count.
func (p *Config) StepsForDegrees(degrees float64) (int32, error) {
	steps := math.Round(degrees * p.TransmissionRatio)
	if math.IsNaN(steps) || steps < math.MinInt32 || steps > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %v degrees at ratio %v is not a valid step count", ErrFieldRange, degrees, p.TransmissionRatio)
	}
	return int32(steps), nil
}

// DegreesForSteps is the inverse of StepsForDegrees
func (p *Config) DegreesForSteps(steps int32) float64 {
	if p.TransmissionRatio == 0 {
		return 0
	}
	return float64(steps) / p.TransmissionRatio
}

// Exposure is the set_exposure payload
type Exposure struct {
	Micros uint32 `json:"micros" yaml:"micros"`
}

func (*Exposure) PayloadName() string { return "exposure" }

func (p *Exposure) VisitFields(v FieldVisitor) {
	v.Uint32("micros", &p.Micros)
}

// Motor is the action_motor payload; negative steps reverse direction
type Motor struct {
	Steps int32 `json:"steps" yaml:"steps"`
}

func (*Motor) PayloadName() string { return "motor" }

func (p *Motor) VisitFields(v FieldVisitor) {
	v.Int32("steps", &p.Steps)
}

// Stack states reported in Progress.CurrentState
const (
	StateHalted      = 0
	StateShouldPause = 1
	StateRunning     = 2
)

var stateNames = []string{"halted", "should_pause", "running"}

var subStateNames = []string{
	"start_delay_before_photo",
	"delay_before_photo",
	"start_photo",
	"photo_busy",
	"pause_after_photo",
	"start_delay_after_photo",
	"delay_after_photo",
	"start_movement",
	"movement",
	"pause_after_movement",
	"next_step",
}

// Progress is the get_progress payload
type Progress struct {
	CurrentState    uint8  `json:"current_state" yaml:"current_state"`
	CurrentSubState uint8  `json:"current_sub_state" yaml:"current_sub_state"`
	CurrentStep     uint32 `json:"current_step" yaml:"current_step"`
	StackCount      uint32 `json:"stack_count" yaml:"stack_count"`
	CurrentDuration uint32 `json:"current_duration" yaml:"current_duration"`
	IsStackFinished bool   `json:"is_stack_finished" yaml:"is_stack_finished"`
	IsIdle          bool   `json:"is_idle" yaml:"is_idle"`
}

func (*Progress) PayloadName() string { return "progress" }

func (p *Progress) VisitFields(v FieldVisitor) {
	v.Uint8("current_state", &p.CurrentState)
	v.Uint8("current_sub_state", &p.CurrentSubState)
	v.Uint32("current_step", &p.CurrentStep)
	v.Uint32("stack_count", &p.StackCount)
	v.Uint32("current_duration", &p.CurrentDuration)
	v.Bool("is_stack_finished", &p.IsStackFinished)
	v.Bool("is_idle", &p.IsIdle)
}

func (p *Progress) StateName() string {
	if int(p.CurrentState) < len(stateNames) {
		return stateNames[p.CurrentState]
	}
	return "unknown"
}

func (p *Progress) SubStateName() string {
	if int(p.CurrentSubState) < len(subStateNames) {
		return subStateNames[p.CurrentSubState]
	}
	return "unknown"
}

// Busy reports whether the rig is doing something other than waiting.
// A paused stack sitting in one of the pause sub-states counts as idle.
func (p *Progress) Busy() bool {
	switch p.CurrentState {
	case StateRunning:
		return true
	case StateShouldPause:
		switch p.CurrentSubState {
		case 4, 6, 9:
			return false
		}
		return true
	default:
		return false
	}
}

// Fraction returns stack completion in [0,1]
func (p *Progress) Fraction() float64 {
	if p.IsStackFinished {
		return 1
	}
	if p.StackCount <= 1 || p.CurrentStep == 0 {
		return 0
	}
	f := float64(p.CurrentStep-1) / float64(p.StackCount-1)
	return math.Min(f, 1)
}
