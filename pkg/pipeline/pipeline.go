// Package pipeline is the composition root wiring capture, voice-activity
// detection, speaker identification, speech recognition and transaction
// extraction into the single continuously-running stall-monitoring loop.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/internal/errs"
	"github.com/ghanavoice/ledger/internal/logging"
	"github.com/ghanavoice/ledger/pkg/audio"
	"github.com/ghanavoice/ledger/pkg/recognizer"
	"github.com/ghanavoice/ledger/pkg/speaker"
	"github.com/ghanavoice/ledger/pkg/store"
	"github.com/ghanavoice/ledger/pkg/transaction"
	"github.com/ghanavoice/ledger/pkg/vad"
)

// fullVADScore is recorded for every processed utterance: by the time a
// chunk reaches processUtterance, the detector has already classified it as
// speech, so there is no finer-grained per-chunk score to carry forward.
const fullVADScore = 1.0

// roleToSpeakerClass maps a speaker registry identification to the state
// machine's coarser speaker classification.
func roleToSpeakerClass(r speaker.Role) transaction.SpeakerClass {
	switch r {
	case speaker.Seller:
		return transaction.SpeakerSeller
	case speaker.KnownCustomer:
		return transaction.SpeakerKnownCustomer
	case speaker.NewCustomer:
		return transaction.SpeakerNewCustomer
	default:
		return transaction.SpeakerUnknown
	}
}

// Pipeline wires one capture device through VAD, speaker identification,
// speech recognition and the transaction state machine, persisting every
// completed sale and enqueueing it for sync.
type Pipeline struct {
	capture    audio.Capture
	detector   *vad.Detector
	sleep      *vad.SleepController
	embedder   speaker.Embedder
	speakers   *speaker.Registry
	recog      *recognizer.Orchestrator
	lang       recognizer.Language
	statem     *transaction.StateMachine
	store      *store.Store
	clock      clock.Clock
	log        logging.Logger

	sessionID string
	buf       bytes.Buffer
	sampleRate int
}

// Options carries the constructor arguments that aren't themselves package
// types already named in the signature, keeping New from growing an
// unreadably long parameter list.
type Options struct {
	SessionID string
	Language  recognizer.Language
}

// New builds a Pipeline from its already-constructed stage components.
func New(
	capture audio.Capture,
	detector *vad.Detector,
	sleep *vad.SleepController,
	embedder speaker.Embedder,
	speakers *speaker.Registry,
	recog *recognizer.Orchestrator,
	statem *transaction.StateMachine,
	st *store.Store,
	c clock.Clock,
	log logging.Logger,
	opts Options,
) *Pipeline {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	lang := opts.Language
	if lang == "" {
		lang = recognizer.LanguageEn
	}
	return &Pipeline{
		capture:    capture,
		detector:   detector,
		sleep:      sleep,
		embedder:   embedder,
		speakers:   speakers,
		recog:      recog,
		lang:       lang,
		statem:     statem,
		store:      st,
		clock:      c,
		log:        log,
		sessionID:  sessionID,
		sampleRate: capture.SampleRate(),
	}
}

// Run starts the capture device and blocks processing frames until ctx is
// cancelled. A background goroutine ticks the state machine's timeouts at
// tickInterval so a stall that goes idle mid-conversation still resolves to
// CANCELLED without a further utterance.
func (p *Pipeline) Run(ctx context.Context, tickInterval time.Duration) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.capture.Start(ctx, p.onFrame)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = p.capture.Stop()
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			p.handleTick(p.clock.Now())
		}
	}
}

func (p *Pipeline) onFrame(frame audio.Frame) {
	event, err := p.detector.Process(frame.PCM, frame.SampleRate)
	if err != nil {
		p.log.Error("pipeline: vad process failed", "err", err)
		return
	}
	if event == nil {
		return
	}

	switch event.Type {
	case vad.SpeechStart:
		p.sleep.NoteSpeech()
		p.buf.Reset()
		p.buf.Write(frame.PCM)
	case vad.Speech:
		p.sleep.NoteSpeech()
		p.buf.Write(frame.PCM)
	case vad.SpeechEnd:
		p.buf.Write(frame.PCM)
		pcm := append([]byte(nil), p.buf.Bytes()...)
		p.buf.Reset()
		p.processUtterance(pcm, event.Timestamp)
	}
}

func (p *Pipeline) handleTick(now time.Time) {
	p.sleep.Tick()

	tx, ok := p.statem.Tick(now)
	if !ok {
		return
	}
	p.persist(context.Background(), tx)
}

func (p *Pipeline) processUtterance(pcm []byte, ts time.Time) {
	ctx := context.Background()
	start := p.clock.Now()

	transcript, err := p.recog.Transcribe(ctx, pcm, p.sampleRate, p.lang)
	if err != nil {
		p.log.Error("pipeline: transcription failed", "err", err)
		return
	}
	if transcript.Text == "" {
		return
	}

	speakerClass := transaction.SpeakerUnknown
	var speakerID string
	var hasConfidence bool
	var confidence float64
	if emb, err := p.embedder.Embed(pcm, p.sampleRate); err != nil {
		p.log.Warn("pipeline: speaker embedding failed", "err", err)
	} else if ident, err := p.speakers.Identify(emb); err != nil {
		p.log.Warn("pipeline: speaker identification failed", "err", err)
	} else {
		speakerClass = roleToSpeakerClass(ident.Role)
		speakerID = ident.ProfileID
		hasConfidence = ident.ProfileID != ""
		confidence = ident.Similarity
	}

	ev := transaction.Event{
		Utterance:    transcript.Text,
		SpeakerClass: speakerClass,
		Timestamp:    ts,
	}

	tx, ok := p.statem.HandleEvent(p.sessionID, ev)

	var txID string
	if ok {
		txID = tx.ID
	}
	p.recordAudioMetadata(ctx, pcm, ts, p.clock.Now().Sub(start), speakerID, hasConfidence, confidence, ok, txID)

	if !ok {
		return
	}
	p.persist(ctx, tx)
}

// recordAudioMetadata persists one diagnostic row per processed utterance,
// linking it to the transaction it produced (if any) so every Transaction
// has a matching AudioMetadata row with contributed_to_transaction set.
func (p *Pipeline) recordAudioMetadata(ctx context.Context, pcm []byte, ts time.Time, processingTime time.Duration, speakerID string, hasConfidence bool, confidence float64, contributed bool, txID string) {
	frame := audio.Frame{SampleRate: p.sampleRate, PCM: pcm}
	m := store.AudioMetadata{
		ChunkID:                  uuid.NewString(),
		Timestamp:                ts,
		VADScore:                 fullVADScore,
		SpeechDetected:           true,
		SpeakerID:                speakerID,
		HasSpeakerConfidence:     hasConfidence,
		SpeakerConfidence:        confidence,
		DurationMillis:           int64(frame.DurationMillis()),
		ProcessingTimeMillis:     processingTime.Milliseconds(),
		ContributedToTransaction: contributed,
		TransactionID:            txID,
	}
	if err := p.store.InsertAudioMetadata(ctx, m); err != nil {
		p.log.Warn("pipeline: insert audio metadata failed", "err", err)
	}
}

func (p *Pipeline) persist(ctx context.Context, tx transaction.Transaction) {
	raw, err := json.Marshal(tx)
	if err != nil {
		err = errs.Wrap(errs.Validation, "marshal transaction for sync queue", false, err)
		p.log.Error("pipeline: marshal transaction failed", "err", err)
		return
	}

	op := store.OfflineOperation{
		ID:          uuid.NewString(),
		Type:        store.OpTransactionSync,
		PayloadJSON: string(raw),
		Priority:    transactionSyncPriority(tx),
		Status:      store.StatusPending,
	}

	if _, _, err := p.store.SaveTransactionAndEnqueue(ctx, tx, op); err != nil {
		p.log.Error("pipeline: persist transaction failed", "id", tx.ID, "err", err)
		return
	}
	p.log.Info("pipeline: recorded transaction", "id", tx.ID, "product", tx.Product, "amount", tx.FinalPrice, "needs_review", tx.NeedsReview)

	if err := p.store.IncrementFrequency(ctx, tx.Product); err != nil {
		p.log.Warn("pipeline: increment product frequency failed", "product", tx.Product, "err", err)
	}
}

// transactionSyncPriority flags a transaction needing manual review as
// CRITICAL so it reaches the backend even under a degraded sync strategy.
func transactionSyncPriority(tx transaction.Transaction) store.OperationPriority {
	if tx.NeedsReview {
		return store.PriorityCritical
	}
	return store.PriorityNormal
}
