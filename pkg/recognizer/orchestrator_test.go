package recognizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/logging"
)

type fakeBackend struct {
	name    string
	fail    int // number of calls to fail before succeeding
	calls   int
	text    string
	failErr error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	f.calls++
	if f.calls <= f.fail {
		err := f.failErr
		if err == nil {
			err = errors.New("fake failure")
		}
		return Transcript{}, err
	}
	return Transcript{Text: f.text, Language: lang, Confidence: 1}, nil
}

func baseConfig() Config {
	return Config{
		MaxRetries:          2,
		BackoffBase:         time.Millisecond,
		BackoffCap:          10 * time.Millisecond,
		CircuitMaxFailures:  3,
		CircuitResetTimeout: time.Minute,
	}
}

func TestOrchestratorUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &fakeBackend{name: "primary", text: "hello"}
	fc := clock.NewFake(time.Unix(0, 0))
	o := New(baseConfig(), primary, nil, fc, logging.NoOpLogger{})

	tr, err := o.Transcribe(context.Background(), []byte{1, 2}, 16000, LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hello" {
		t.Fatalf("expected hello, got %q", tr.Text)
	}
}

func TestOrchestratorRetriesThenSucceeds(t *testing.T) {
	primary := &fakeBackend{name: "primary", fail: 1, text: "retried"}
	fc := clock.NewFake(time.Unix(0, 0))
	o := New(baseConfig(), primary, nil, fc, logging.NoOpLogger{})

	tr, err := o.Transcribe(context.Background(), []byte{1, 2}, 16000, LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "retried" {
		t.Fatalf("expected retried, got %q", tr.Text)
	}
}

func TestOrchestratorFallsOverToSecondary(t *testing.T) {
	primary := &fakeBackend{name: "primary", fail: 100}
	fallback := &fakeBackend{name: "fallback", text: "fallback-text"}
	fc := clock.NewFake(time.Unix(0, 0))
	o := New(baseConfig(), primary, fallback, fc, logging.NoOpLogger{})

	tr, err := o.Transcribe(context.Background(), []byte{1, 2}, 16000, LanguageEn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "fallback-text" {
		t.Fatalf("expected fallback-text, got %q", tr.Text)
	}
}

func TestOrchestratorReturnsErrorWhenAllBackendsFail(t *testing.T) {
	primary := &fakeBackend{name: "primary", fail: 100}
	fallback := &fakeBackend{name: "fallback", fail: 100}
	fc := clock.NewFake(time.Unix(0, 0))
	o := New(baseConfig(), primary, fallback, fc, logging.NoOpLogger{})

	_, err := o.Transcribe(context.Background(), []byte{1, 2}, 16000, LanguageEn)
	if err == nil {
		t.Fatalf("expected error when all backends fail")
	}
}

func TestOrchestratorRejectsEmptyAudio(t *testing.T) {
	primary := &fakeBackend{name: "primary", text: "x"}
	fc := clock.NewFake(time.Unix(0, 0))
	o := New(baseConfig(), primary, nil, fc, logging.NoOpLogger{})

	_, err := o.Transcribe(context.Background(), nil, 16000, LanguageEn)
	if err == nil {
		t.Fatalf("expected error for empty audio")
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker("test", 3, time.Minute, fc, logging.NoOpLogger{})

	failing := func() error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = cb.Execute(failing)
	}
	if cb.State() != Open {
		t.Fatalf("expected breaker to be open after 3 failures, got %v", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	cb := NewCircuitBreaker("test", 2, 30*time.Second, fc, logging.NoOpLogger{})

	failing := func() error { return errors.New("boom") }
	cb.Execute(failing)
	cb.Execute(failing)
	if cb.State() != Open {
		t.Fatalf("expected open state")
	}

	fc.Advance(31 * time.Second)
	if cb.State() != HalfOpen {
		t.Fatalf("expected half-open state after reset timeout, got %v", cb.State())
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected probe success to close breaker, got %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("expected closed state after successful probe, got %v", cb.State())
	}
}

func TestWeightedConfidenceUsesWordDurations(t *testing.T) {
	words := []Word{
		{Text: "one", Confidence: 1.0, StartMs: 0, EndMs: 100},
		{Text: "two", Confidence: 0.0, StartMs: 100, EndMs: 110},
	}
	conf := WeightedConfidence(words)
	if conf < 0.85 || conf > 0.95 {
		t.Fatalf("expected weighted confidence around 0.909, got %v", conf)
	}
}

func TestWeightedConfidenceFallsBackToFlatAverage(t *testing.T) {
	words := []Word{
		{Text: "one", Confidence: 1.0},
		{Text: "two", Confidence: 0.0},
	}
	conf := WeightedConfidence(words)
	if conf != 0.5 {
		t.Fatalf("expected flat average 0.5, got %v", conf)
	}
}
