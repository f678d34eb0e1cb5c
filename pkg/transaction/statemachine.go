package transaction

import (
	"time"

	"github.com/ghanavoice/ledger/internal/clock"
	"github.com/ghanavoice/ledger/pkg/vocabulary"
)

// PriceRange bounds the plausible price of a canonical product, used by the
// review-flagging rule.
type PriceRange struct {
	Min, Max float64
}

// Config tunes the state machine's thresholds.
type Config struct {
	AutoSaveThreshold float64
	ReviewThreshold   float64
	InactivityTimeout time.Duration
	PaymentHold       time.Duration
}

// StateMachine drives at most one active Context at a time, classifying
// each incoming utterance into a pattern group, running entity extractors,
// and transitioning state per its transition table.
type StateMachine struct {
	cfg   Config
	vocab *vocabulary.Vocabulary

	typicalPrices map[string]PriceRange

	ctx *Context
}

// New builds a StateMachine.
func New(cfg Config, vocab *vocabulary.Vocabulary) *StateMachine {
	return &StateMachine{
		cfg:           cfg,
		vocab:         vocab,
		typicalPrices: make(map[string]PriceRange),
	}
}

// SetTypicalPrice registers the plausible price band for a canonical
// product name, used by the price-range review rule.
func (sm *StateMachine) SetTypicalPrice(product string, r PriceRange) {
	sm.typicalPrices[product] = r
}

// Active reports whether a context is currently in flight.
func (sm *StateMachine) Active() bool { return sm.ctx != nil }

// HandleEvent classifies and applies one utterance. It returns the emitted
// Transaction (and true) if this event drove the context to COMPLETE and
// the emission rule was satisfied; otherwise ok is false. Unmatched
// utterances are simply folded into the active context's snippet log.
func (sm *StateMachine) HandleEvent(sessionID string, ev Event) (Transaction, bool) {
	match := ClassifyUtterance(ev.Utterance)

	if sm.ctx == nil {
		if match.Group != GroupInquiry {
			return Transaction{}, false
		}
		sm.ctx = &Context{
			SessionID:    sessionID,
			StartTime:    ev.Timestamp,
			LastActivity: ev.Timestamp,
			State:        Idle,
			Confidence:   1,
		}
	}

	if match.Group == GroupNone {
		sm.ctx.LastActivity = ev.Timestamp
		sm.ctx.Snippets = append(sm.ctx.Snippets, ev.Utterance)
		return Transaction{}, false
	}

	return sm.apply(ev, match)
}

// Tick re-evaluates timeouts against now without a new utterance: force
// cancellation after INACTIVITY_TIMEOUT and auto-advance PAYMENT to
// COMPLETE after PAYMENT_HOLD.
func (sm *StateMachine) Tick(now time.Time) (Transaction, bool) {
	if sm.ctx == nil {
		return Transaction{}, false
	}

	elapsed := now.Sub(sm.ctx.LastActivity)

	if sm.ctx.State == Payment && elapsed >= sm.cfg.PaymentHold {
		sm.transition(Complete, GroupNone, 1.0, now)
		return sm.emit(now)
	}

	if !sm.ctx.State.IsTerminal() && sm.ctx.State != Idle && elapsed >= sm.cfg.InactivityTimeout {
		sm.transition(Cancelled, GroupCancellation, 1.0, now)
		sm.ctx = nil
	}

	return Transaction{}, false
}

func (sm *StateMachine) apply(ev Event, match Match) (Transaction, bool) {
	ctx := sm.ctx
	from := ctx.State
	var to State

	switch {
	case match.Group == GroupCancellation:
		to = Cancelled

	case from == Idle && match.Group == GroupInquiry:
		to = Inquiry

	case from == Inquiry && match.Group == GroupPriceQuote:
		to = PriceQuote

	case from == PriceQuote && match.Group == GroupNegotiation:
		to = Negotiation

	case from == PriceQuote && match.Group == GroupPayment:
		to = Payment

	case from == Negotiation && match.Group == GroupPriceQuote:
		to = PriceQuote

	case from == Negotiation && match.Group == GroupPayment:
		to = Payment

	case from == PriceQuote && match.Group == GroupAgreement:
		to = Agreement

	case from == Agreement && match.Group == GroupPayment:
		to = Payment

	case from == Payment && match.Group == GroupAgreement:
		to = Complete

	default:
		// Utterance matched a group but not a valid transition from the
		// current state: treat as supporting context, not a transition.
		ctx.LastActivity = ev.Timestamp
		ctx.Snippets = append(ctx.Snippets, ev.Utterance)
		return Transaction{}, false
	}

	sm.extract(ev, match)
	sm.transition(to, match.Group, match.Confidence, ev.Timestamp)
	ctx.Snippets = append(ctx.Snippets, ev.Utterance)

	if to == Cancelled {
		sm.ctx = nil
		return Transaction{}, false
	}
	if to == Complete {
		return sm.emit(ev.Timestamp)
	}
	return Transaction{}, false
}

func (sm *StateMachine) extract(ev Event, match Match) {
	ctx := sm.ctx

	if pr := ExtractProduct(ev.Utterance, sm.vocab); pr.Matched {
		ctx.Extracted.Product = pr.Name
	}
	if qr := ExtractQuantity(ev.Utterance); qr.Matched {
		ctx.Extracted.Quantity = qr.Quantity
		ctx.Extracted.HasQuantity = true
		ctx.Extracted.Unit = qr.Unit
	}

	switch match.Group {
	case GroupPriceQuote:
		ar := ExtractAmount(ev.Utterance)
		if !ar.Matched {
			return
		}
		ctx.Extracted.Amount = ar.Amount
		ctx.Extracted.HasAmount = true
		ctx.Extracted.Currency = ar.Currency
		if ctx.State == Inquiry && ev.SpeakerClass == SpeakerSeller {
			ctx.OriginalPrice = ar.Amount
			ctx.HasOriginalPrice = true
		}
		ctx.FinalPrice = ar.Amount
		ctx.HasFinalPrice = true

	case GroupNegotiation:
		if ar := ExtractAmount(ev.Utterance); ar.Matched {
			ctx.FinalPrice = ar.Amount
			ctx.HasFinalPrice = true
		}
	}
}

func (sm *StateMachine) transition(to State, group PatternGroup, confidence float64, ts time.Time) {
	ctx := sm.ctx
	ctx.History = append(ctx.History, Transition{
		From: ctx.State, To: to, Group: group, Confidence: confidence, Timestamp: ts,
	})
	ctx.State = to
	ctx.LastActivity = ts
	ctx.Confidence *= confidence
	if ctx.Confidence > 1 {
		ctx.Confidence = 1
	}
	if ctx.Confidence < 0 {
		ctx.Confidence = 0
	}
}

// emit applies the emission rule at COMPLETE: a Transaction is produced
// only if a price is present (a missing product flags it for review), and
// its confidence gates whether it's auto-saved, flagged for review, or
// discarded.
func (sm *StateMachine) emit(now time.Time) (Transaction, bool) {
	ctx := sm.ctx
	sm.ctx = nil

	hasPrice := ctx.HasFinalPrice || ctx.HasOriginalPrice
	if !hasPrice {
		return Transaction{}, false
	}

	price := ctx.FinalPrice
	if !ctx.HasFinalPrice {
		price = ctx.OriginalPrice
	}

	needsReview := ctx.Extracted.Product == ""

	if r, ok := sm.typicalPrices[ctx.Extracted.Product]; ok {
		if price < 0.5*r.Min || price > 2*r.Max {
			needsReview = true
		}
	}

	confidence := ctx.Confidence
	if confidence < sm.cfg.ReviewThreshold {
		return Transaction{}, false
	}
	if confidence < sm.cfg.AutoSaveThreshold {
		needsReview = true
	}

	currency := ctx.Extracted.Currency
	if currency == "" {
		currency = "GHS"
	}

	snippet := ""
	if len(ctx.Snippets) > 0 {
		snippet = ctx.Snippets[len(ctx.Snippets)-1]
	}

	tx := Transaction{
		Timestamp:         now,
		DateKey:           clock.DateKey(now),
		Amount:            price,
		Currency:          currency,
		Product:           ctx.Extracted.Product,
		Quantity:          ctx.Extracted.Quantity,
		HasQuantity:       ctx.Extracted.HasQuantity,
		Unit:              ctx.Extracted.Unit,
		CustomerID:        ctx.CustomerID,
		Confidence:        confidence,
		TranscriptSnippet: snippet,
		NeedsReview:       needsReview,
		OriginalPrice:     ctx.OriginalPrice,
		HasOriginalPrice:  ctx.HasOriginalPrice,
		FinalPrice:        price,
	}
	return tx, true
}
