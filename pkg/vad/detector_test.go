package vad

import (
	"testing"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
)

// scriptedPolicy replays a fixed sequence of per-frame decisions.
type scriptedPolicy struct {
	decisions []bool
	i         int
}

func (s *scriptedPolicy) Name() string { return "scripted" }

func (s *scriptedPolicy) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if s.i >= len(s.decisions) {
		return false, nil
	}
	v := s.decisions[s.i]
	s.i++
	return v, nil
}

func TestDetectorEmitsSpeechStartThenEnd(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	// window of 3, majority vote; 2 tail-silence frames to confirm end. The
	// window starts filled with silence, so the first speech frame is
	// outvoted and reports Silence; speech starts on the second. The first
	// trailing silent frame is still outvoted, so the end needs three.
	decisions := []bool{true, true, true, true, false, false, false}
	p := &scriptedPolicy{decisions: decisions}
	d := NewDetector(p, fc, 3, 2)

	var events []Event
	for range decisions {
		ev, err := d.Process(make([]byte, 4), 16000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	if len(events) < 2 {
		t.Fatalf("expected at least two events, got %v", events)
	}
	if events[0].Type != Silence || events[1].Type != SpeechStart {
		t.Fatalf("expected Silence then SpeechStart, got %v then %v", events[0].Type, events[1].Type)
	}
	foundEnd := false
	for _, e := range events {
		if e.Type == SpeechEnd {
			foundEnd = true
		}
	}
	if !foundEnd {
		t.Fatalf("expected a SpeechEnd event in %v", events)
	}
}

func TestDetectorResetClearsState(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := &scriptedPolicy{decisions: []bool{true, true, true}}
	d := NewDetector(p, fc, 3, 1)
	for range p.decisions {
		d.Process(make([]byte, 4), 16000)
	}
	if !d.IsSpeaking() {
		t.Fatalf("expected detector to be speaking before reset")
	}
	d.Reset()
	if d.IsSpeaking() {
		t.Fatalf("expected detector to be silent after reset")
	}
}

func TestSleepControllerTransitions(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	sc := NewSleepController(fc, 30*time.Second, 5*time.Minute)

	if got := sc.Tick(); got != Awake {
		t.Fatalf("expected Awake, got %v", got)
	}

	fc.Advance(31 * time.Second)
	if got := sc.Tick(); got != LightSleep {
		t.Fatalf("expected LightSleep, got %v", got)
	}

	fc.Advance(5 * time.Minute)
	if got := sc.Tick(); got != DeepSleep {
		t.Fatalf("expected DeepSleep, got %v", got)
	}

	sc.NoteSpeech()
	if got := sc.Tick(); got != Awake {
		t.Fatalf("expected Awake after NoteSpeech, got %v", got)
	}
}
