package nlu

import (
	"fmt"
	"math"
	"strings"
)

// EntityKind identifies the typed value an extractor pass produced.
type EntityKind string

const (
	KindAmount      EntityKind = "amount"
	KindDate        EntityKind = "date"
	KindUPI         EntityKind = "upi_id"
	KindLast4       EntityKind = "last4"
	KindAccountType EntityKind = "account_type"
)

// Entity is one typed value extracted from an utterance.
type Entity struct {
	Kind       EntityKind `json:"kind"`
	Raw        string     `json:"raw_value"`
	Normalized string     `json:"normalized_value"`
	Position   int        `json:"position"`
}

// IntentCandidate is one ranked guess from the external intent resolver.
type IntentCandidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// TurnInput carries everything the dialogue engine consumes for one turn.
// Candidates are ordered best-first and may be empty; entities may be empty.
type TurnInput struct {
	Utterance string
	Intents   []IntentCandidate
	Entities  []Entity
}

// Validate rejects structurally invalid NLU payloads. Unknown intents and
// low confidence are normal dialogue outcomes and pass validation; a
// candidate with an out-of-range confidence or a nameless entity would
// corrupt the confidence-gated policy and must fail fast instead.
func (in TurnInput) Validate() error {
	for i, c := range in.Intents {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("intent candidate %d: empty name", i)
		}
		if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("intent candidate %q: confidence %v out of [0,1]", c.Name, c.Confidence)
		}
	}
	for i, e := range in.Entities {
		if strings.TrimSpace(string(e.Kind)) == "" {
			return fmt.Errorf("entity %d: empty kind", i)
		}
		if e.Normalized == "" && e.Raw == "" {
			return fmt.Errorf("entity %d (%s): no value", i, e.Kind)
		}
	}
	return nil
}

// Value returns the normalized value, falling back to the raw span.
func (e Entity) Value() string {
	if e.Normalized != "" {
		return e.Normalized
	}
	return e.Raw
}

// Top returns the best intent candidate, if any.
func (in TurnInput) Top() (IntentCandidate, bool) {
	if len(in.Intents) == 0 {
		return IntentCandidate{}, false
	}
	return in.Intents[0], true
}
