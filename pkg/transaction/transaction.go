// Package transaction implements the conversational state machine that
// turns a stream of recognized utterances into structured sale
// transactions: pattern-group classification, entity extraction (amount,
// product, quantity+unit), state transitions, timeouts, and the
// confidence-gated emission rule.
package transaction

import "time"

// State is one node of the sale conversation state machine.
type State string

const (
	Idle        State = "IDLE"
	Inquiry     State = "INQUIRY"
	PriceQuote  State = "PRICE_QUOTE"
	Negotiation State = "NEGOTIATION"
	Agreement   State = "AGREEMENT"
	Payment     State = "PAYMENT"
	Complete    State = "COMPLETE"
	Cancelled   State = "CANCELLED"
)

// IsTerminal reports whether s is a terminal state with no outward
// transitions.
func (s State) IsTerminal() bool {
	return s == Complete || s == Cancelled
}

// SpeakerClass identifies who produced an utterance, mirroring the roles
// the speaker package resolves voices to.
type SpeakerClass string

const (
	SpeakerSeller        SpeakerClass = "SELLER"
	SpeakerKnownCustomer SpeakerClass = "KNOWN_CUSTOMER"
	SpeakerNewCustomer   SpeakerClass = "NEW_CUSTOMER"
	SpeakerUnknown       SpeakerClass = "UNKNOWN"
)

// Event is one recognized utterance fed into the state machine.
type Event struct {
	Utterance    string
	SpeakerClass SpeakerClass
	Timestamp    time.Time
}

// Extracted holds the entities accumulated over a context's lifetime.
type Extracted struct {
	Product  string
	Quantity float64
	HasQuantity bool
	Unit     string
	Amount   float64
	HasAmount bool
	Currency string
}

// Transition is one recorded hop in a context's history.
type Transition struct {
	From      State
	To        State
	Group     PatternGroup
	Confidence float64
	Timestamp time.Time
}

// Context is the in-flight conversational state for at most one active
// sale at a time.
type Context struct {
	SessionID    string
	StartTime    time.Time
	LastActivity time.Time
	State        State
	History      []Transition
	Extracted    Extracted
	OriginalPrice  float64
	HasOriginalPrice bool
	FinalPrice     float64
	HasFinalPrice  bool
	CustomerID   string
	SellerID     string
	Snippets     []string
	Confidence   float64
}

// Transaction is the persisted record emitted when a Context reaches
// COMPLETE with enough extracted data.
type Transaction struct {
	ID                string
	Timestamp         time.Time
	DateKey           string
	Amount            float64
	Currency          string
	Product           string
	Quantity          float64
	HasQuantity       bool
	Unit              string
	CustomerID        string
	Confidence        float64
	TranscriptSnippet string
	NeedsReview       bool
	Synced            bool
	OriginalPrice     float64
	HasOriginalPrice  bool
	FinalPrice        float64
}
