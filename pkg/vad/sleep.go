package vad

import (
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
)

// SleepState enumerates the device's adaptive power state based on how long
// the stall has gone silent.
type SleepState int

const (
	Awake SleepState = iota
	LightSleep
	DeepSleep
)

func (s SleepState) String() string {
	switch s {
	case Awake:
		return "AWAKE"
	case LightSleep:
		return "LIGHT_SLEEP"
	case DeepSleep:
		return "DEEP_SLEEP"
	default:
		return "UNKNOWN"
	}
}

// SleepController derives the device's sleep state from elapsed silence.
// It only computes and reports the state; it does not change VAD polling or
// the capture duty cycle, and the pipeline does not act on the state.
type SleepController struct {
	clock clock.Clock

	lightAfter time.Duration
	deepAfter  time.Duration

	lastSpeech time.Time
	state      SleepState
}

// NewSleepController builds a SleepController that transitions to
// LightSleep after lightAfter of continuous silence and DeepSleep after
// deepAfter.
func NewSleepController(c clock.Clock, lightAfter, deepAfter time.Duration) *SleepController {
	return &SleepController{
		clock:      c,
		lightAfter: lightAfter,
		deepAfter:  deepAfter,
		lastSpeech: c.Now(),
		state:      Awake,
	}
}

// NoteSpeech resets the silence clock and wakes the controller immediately.
func (s *SleepController) NoteSpeech() {
	s.lastSpeech = s.clock.Now()
	s.state = Awake
}

// Tick recomputes the sleep state from elapsed silence and returns it. Call
// this once per processed frame (or on a periodic ticker while capture is
// paused in deep sleep).
func (s *SleepController) Tick() SleepState {
	silence := s.clock.Since(s.lastSpeech)
	switch {
	case silence >= s.deepAfter:
		s.state = DeepSleep
	case silence >= s.lightAfter:
		s.state = LightSleep
	default:
		s.state = Awake
	}
	return s.state
}

// State returns the last computed state without recomputing it.
func (s *SleepController) State() SleepState { return s.state }
