package dialogue

// State is the mutable per-session conversation record. One instance is
// owned exclusively by one session; the engine is its only mutator.
// Invariant: Active == (CurrentIntent != ""). When inactive, Slots is empty.
type State struct {
	CurrentIntent string
	Slots         map[string]string
	FallbackCount int
	Active        bool
}

// NewState returns an empty conversation state.
func NewState() *State {
	return &State{Slots: make(map[string]string)}
}

// Reset clears the active intent and its slots. The fallback counter is
// left alone; the engine resets it on accepted turns.
func (s *State) Reset() {
	s.CurrentIntent = ""
	s.Active = false
	s.Slots = make(map[string]string)
}

// SetIntent adopts an intent, discarding any slots from a previous one.
func (s *State) SetIntent(intent string) {
	if s.CurrentIntent != intent {
		s.Slots = make(map[string]string)
	}
	s.CurrentIntent = intent
	s.Active = true
}

// SlotValues returns a copy of the filled slots.
func (s *State) SlotValues() map[string]string {
	out := make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		out[k] = v
	}
	return out
}
