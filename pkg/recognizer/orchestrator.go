package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
)

// guardedBackend pairs a Backend with its own circuit breaker so repeated
// failures on one provider don't consume retry budget meant for its
// fallback.
type guardedBackend struct {
	backend Backend
	breaker *CircuitBreaker
}

// Orchestrator picks between an offline and an online recognizer backend per
// the configured preference, retrying each with capped exponential backoff
// and falling over to the other backend when one is unavailable or its
// circuit is open.
type Orchestrator struct {
	primary  guardedBackend
	fallback guardedBackend

	maxRetries  int
	backoffBase time.Duration
	backoffCap  time.Duration
	clock       clock.Clock
	log         logging.Logger
}

// Config configures the Orchestrator's retry and fallback policy.
type Config struct {
	PreferOffline       bool
	MaxRetries          int
	BackoffBase         time.Duration
	BackoffCap          time.Duration
	CircuitMaxFailures  int
	CircuitResetTimeout time.Duration
}

// New builds an Orchestrator from an offline and an online backend. Either
// may be nil, in which case the Orchestrator degrades to using only the
// other. Passing both nil is a configuration error the caller must avoid.
func New(cfg Config, offline, online Backend, c clock.Clock, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	wrap := func(b Backend) guardedBackend {
		if b == nil {
			return guardedBackend{}
		}
		return guardedBackend{
			backend: b,
			breaker: NewCircuitBreaker(b.Name(), cfg.CircuitMaxFailures, cfg.CircuitResetTimeout, c, log),
		}
	}

	o := &Orchestrator{
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		clock:       c,
		log:         log,
	}
	if cfg.PreferOffline {
		o.primary, o.fallback = wrap(offline), wrap(online)
	} else {
		o.primary, o.fallback = wrap(online), wrap(offline)
	}
	return o
}

// Transcribe attempts the primary backend first, retrying transient failures
// with exponential backoff, then falls over to the secondary backend if the
// primary's circuit is open or its retries are exhausted.
func (o *Orchestrator) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	if len(pcm) == 0 {
		return Transcript{}, errs.ErrEmptyTranscript
	}

	if o.primary.backend != nil {
		t, err := o.tryBackend(ctx, o.primary, pcm, sampleRate, lang)
		if err == nil {
			return t, nil
		}
		o.log.Warn("recognizer: primary backend failed, falling back", "backend", o.primary.backend.Name(), "err", err)
	}

	if o.fallback.backend != nil {
		t, err := o.tryBackend(ctx, o.fallback, pcm, sampleRate, lang)
		if err == nil {
			return t, nil
		}
		return Transcript{}, errs.Wrap(errs.RecognizerFatal, "all recognizer backends failed", false, err)
	}

	return Transcript{}, errs.New(errs.RecognizerFatal, "no recognizer backend configured", false)
}

// tryBackend runs one backend through its circuit breaker with bounded
// exponential backoff retries.
func (o *Orchestrator) tryBackend(ctx context.Context, g guardedBackend, pcm []byte, sampleRate int, lang Language) (Transcript, error) {
	var result Transcript

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.backoffBase
	bo.MaxInterval = o.backoffCap
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not wall time
	withRetries := backoff.WithMaxRetries(bo, uint64(o.maxRetries))
	withCtx := backoff.WithContext(withRetries, ctx)

	op := func() error {
		return g.breaker.Execute(func() error {
			t, err := g.backend.Transcribe(ctx, pcm, sampleRate, lang)
			if err != nil {
				return err
			}
			result = t
			return nil
		})
	}

	err := backoff.Retry(op, withCtx)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return Transcript{}, errs.Wrap(errs.RecognizerTransient, fmt.Sprintf("%s circuit open", g.backend.Name()), true, err)
		}
		return Transcript{}, errs.Wrap(errs.RecognizerTransient, fmt.Sprintf("%s transcription failed", g.backend.Name()), true, err)
	}
	return result, nil
}
