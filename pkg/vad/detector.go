package vad

import (
	"container/ring"

	"github.com/ghanavoice/ledger/internal/clock"
)

// Detector layers majority-vote smoothing and start/end hysteresis on top of
// a FramePolicy's raw per-frame decisions, as a reusable wrapper around any
// FramePolicy.
type Detector struct {
	policy FramePolicy
	clock  clock.Clock

	window     *ring.Ring
	windowSize int

	tailSilenceFrames int
	silentRun         int

	speaking bool
}

// NewDetector builds a Detector voting over smoothingWindow frames and
// requiring tailSilenceFrames consecutive silent frames to confirm
// speech-end.
func NewDetector(policy FramePolicy, c clock.Clock, smoothingWindow, tailSilenceFrames int) *Detector {
	if smoothingWindow < 1 {
		smoothingWindow = 1
	}
	r := ring.New(smoothingWindow)
	for i := 0; i < smoothingWindow; i++ {
		r.Value = false
		r = r.Next()
	}
	return &Detector{
		policy:            policy,
		clock:             c,
		window:            r,
		windowSize:        smoothingWindow,
		tailSilenceFrames: tailSilenceFrames,
	}
}

// Process classifies one frame and returns a smoothed Event: SpeechStart or
// SpeechEnd when the smoothed state changes, Speech for each further
// smoothed-speech frame, Silence for each smoothed-silent frame outside
// speech, and nil for silent frames still inside the tail-silence hangover.
func (d *Detector) Process(frame []byte, sampleRate int) (*Event, error) {
	raw, err := d.policy.IsSpeech(frame, sampleRate)
	if err != nil {
		return nil, err
	}

	d.window.Value = raw
	d.window = d.window.Next()

	votes := 0
	d.window.Do(func(v interface{}) {
		if v.(bool) {
			votes++
		}
	})
	smoothedSpeech := votes*2 > d.windowSize

	now := d.clock.Now()

	if smoothedSpeech {
		d.silentRun = 0
		if !d.speaking {
			d.speaking = true
			return &Event{Type: SpeechStart, Timestamp: now}, nil
		}
		return &Event{Type: Speech, Timestamp: now}, nil
	}

	if d.speaking {
		d.silentRun++
		if d.silentRun >= d.tailSilenceFrames {
			d.speaking = false
			d.silentRun = 0
			return &Event{Type: SpeechEnd, Timestamp: now}, nil
		}
		return nil, nil
	}

	return &Event{Type: Silence, Timestamp: now}, nil
}

// IsSpeaking reports the detector's current smoothed state.
func (d *Detector) IsSpeaking() bool { return d.speaking }

// Reset clears all hysteresis state, used when the recognizer session that
// was consuming frames is torn down and a fresh utterance boundary is
// needed.
func (d *Detector) Reset() {
	d.speaking = false
	d.silentRun = 0
	for i := 0; i < d.windowSize; i++ {
		d.window.Value = false
		d.window = d.window.Next()
	}
}
