package dialogue

import (
	"io"
	"log/slog"
	"testing"

	"echofi-assistant/internal/nlu"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(nil, nil, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func candidate(name string, conf float64) []nlu.IntentCandidate {
	return []nlu.IntentCandidate{{Name: name, Confidence: conf}}
}

func amountEntity(value string, pos int) nlu.Entity {
	return nlu.Entity{Kind: nlu.KindAmount, Raw: value, Normalized: value, Position: pos}
}

func upiEntity(value string, pos int) nlu.Entity {
	return nlu.Entity{Kind: nlu.KindUPI, Raw: value, Normalized: value, Position: pos}
}

func TestMultiTurnMoneyTransfer(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "I want to transfer money",
		Intents:   candidate("money_transfer", 0.95),
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "How much do you want to transfer?", resp.Text)
	assert.True(t, st.Active)
	assert.Equal(t, "money_transfer", st.CurrentIntent)

	resp, err = e.HandleTurn(nlu.TurnInput{
		Utterance: "500 rupees",
		Intents:   candidate("money_transfer", 0.9),
		Entities:  []nlu.Entity{amountEntity("500", 0)},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "Please share the UPI ID.", resp.Text)
	assert.Equal(t, "500", st.Slots["amount"])
	assert.True(t, st.Active)

	resp, err = e.HandleTurn(nlu.TurnInput{
		Utterance: "rahul@ybl",
		Entities:  []nlu.Entity{upiEntity("rahul@ybl", 0)},
	}, st)
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.Contains(t, resp.Text, "Transferring")
	assert.Contains(t, resp.Text, "500")
	assert.Contains(t, resp.Text, "rahul@ybl")
	assert.Equal(t, "money_transfer", resp.CompletedIntent)
	assert.Equal(t, map[string]string{"amount": "500", "upi_id": "rahul@ybl"}, resp.CompletedSlots)

	assert.False(t, st.Active)
	assert.Empty(t, st.CurrentIntent)
	assert.Empty(t, st.Slots)
	assert.Zero(t, st.FallbackCount)
}

func TestIntentSwitchDiscardsSlots(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{amountEntity("500", 0)},
	}, st)
	require.NoError(t, err)
	require.Equal(t, "500", st.Slots["amount"])

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "Actually, check my balance instead",
		Intents:   candidate("check_balance", 0.9),
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "check_balance", st.CurrentIntent)
	assert.Empty(t, st.Slots["amount"], "old intent's slots must be discarded on switch")
	assert.Contains(t, resp.Text, "savings or current")
}

func TestContinuityBeatsSwitchWhenEntitiesAreUseful(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{Intents: candidate("money_transfer", 0.95)}, st)
	require.NoError(t, err)

	// A competing intent above the switch threshold must not win while the
	// turn's entities still feed the intent in progress.
	resp, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("check_balance", 0.85),
		Entities: []nlu.Entity{amountEntity("500", 0)},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "money_transfer", st.CurrentIntent)
	assert.Equal(t, "500", st.Slots["amount"])
	assert.Equal(t, "Please share the UPI ID.", resp.Text)
}

func TestFallbackEscalationAndRecovery(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	var texts []string
	for _, utterance := range []string{"asdf", "qwerty", "xyz"} {
		resp, err := e.HandleTurn(nlu.TurnInput{Utterance: utterance}, st)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFallback, resp.Outcome)
		assert.False(t, resp.Completed)
		texts = append(texts, resp.Text)
	}
	assert.Equal(t, 3, st.FallbackCount)
	assert.NotEqual(t, texts[0], texts[1])
	assert.NotEqual(t, texts[1], texts[2])

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "I want to transfer money",
		Intents:   candidate("money_transfer", 0.95),
	}, st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeElicit, resp.Outcome)
	assert.Zero(t, st.FallbackCount, "accepted turn must reset the fallback counter")
}

func TestLowConfidenceGoesToFallback(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{Intents: candidate("money_transfer", 0.3)}, st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, resp.Outcome)
	assert.False(t, st.Active)
	assert.Equal(t, 1, st.FallbackCount)
}

func TestSingleTurnCompletion(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "Transfer 1000 rupees to priya@paytm",
		Intents:   candidate("money_transfer", 0.5),
		Entities: []nlu.Entity{
			amountEntity("1000", 9),
			upiEntity("priya@paytm", 25),
		},
	}, st)
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.Contains(t, resp.Text, "1000")
	assert.Contains(t, resp.Text, "priya@paytm")
	assert.False(t, st.Active)
}

func TestUpdateSemanticsOverwriteStoredSlot(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{amountEntity("500", 0)},
	}, st)
	require.NoError(t, err)
	require.Equal(t, "500", st.Slots["amount"])

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "Wait, make it 1000 instead",
		Entities:  []nlu.Entity{amountEntity("1000", 15)},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "1000", st.Slots["amount"])
	assert.True(t, st.Active)
	assert.Equal(t, "Please share the UPI ID.", resp.Text)
}

func TestSameTurnDuplicateLastOccurrenceWins(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents: candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{
			amountEntity("2000", 30),
			amountEntity("500", 5),
		},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "2000", st.Slots["amount"], "later source position must win")
}

func TestUnmappedEntityKindsIgnored(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{
		Intents: candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{
			{Kind: nlu.KindLast4, Raw: "ending 4321", Normalized: "4321", Position: 10},
		},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "How much do you want to transfer?", resp.Text)
	assert.Empty(t, st.Slots)
}

func TestSlotOrderIndependentCompletion(t *testing.T) {
	// Completion requires every required slot regardless of arrival order.
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{upiEntity("anil@ybl", 0)},
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "anil@ybl", st.Slots["upi_id"])

	resp, err := e.HandleTurn(nlu.TurnInput{
		Entities: []nlu.Entity{amountEntity("2000", 0)},
	}, st)
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.Contains(t, resp.Text, "anil@ybl")
	assert.Contains(t, resp.Text, "2000")
}

func TestDegenerateInputRoutesToFallback(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	for _, utterance := range []string{"", "   "} {
		resp, err := e.HandleTurn(nlu.TurnInput{Utterance: utterance}, st)
		require.NoError(t, err)
		assert.Equal(t, OutcomeFallback, resp.Outcome)
	}
	assert.Equal(t, 2, st.FallbackCount)
}

func TestActiveGibberishKeepsStateIntact(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{amountEntity("500", 0)},
	}, st)
	require.NoError(t, err)

	resp, err := e.HandleTurn(nlu.TurnInput{Utterance: "blah blah"}, st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, resp.Outcome)
	assert.Equal(t, "money_transfer", st.CurrentIntent)
	assert.Equal(t, "500", st.Slots["amount"], "fallback must not touch stored slots")
}

func TestInvalidPayloadFailsFast(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	_, err := e.HandleTurn(nlu.TurnInput{
		Intents: []nlu.IntentCandidate{{Name: "money_transfer", Confidence: 1.5}},
	}, st)
	assert.Error(t, err)
	assert.Zero(t, st.FallbackCount, "invalid payloads must not mutate state")
}

func TestUnknownIntentSchemaFallsBack(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{Intents: candidate("order_pizza", 0.99)}, st)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFallback, resp.Outcome)
}

func TestZeroSlotIntentCompletesImmediately(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{
		Utterance: "What is my loan status?",
		Intents:   candidate("loan_query", 0.9),
	}, st)
	require.NoError(t, err)
	assert.True(t, resp.Completed)
	assert.Equal(t, "loan_query", resp.CompletedIntent)
	assert.False(t, st.Active)
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	e := newTestEngine(t)
	st := NewState()

	resp, err := e.HandleTurn(nlu.TurnInput{
		Intents:  candidate("money_transfer", 0.95),
		Entities: []nlu.Entity{amountEntity("500", 0), upiEntity("test@ybl", 10)},
	}, st)
	require.NoError(t, err)
	require.True(t, resp.Completed)

	// The same entities again start a fresh elicitation, never a re-emit.
	resp, err = e.HandleTurn(nlu.TurnInput{Utterance: "thanks"}, st)
	require.NoError(t, err)
	assert.False(t, resp.Completed)
}
