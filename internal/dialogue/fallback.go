package dialogue

// DefaultFallbackMessages are the escalating "I didn't understand" tiers.
// Index 0 is the first miss; the last entry repeats for every miss beyond it.
var DefaultFallbackMessages = []string{
	"I didn't understand that, could you rephrase?",
	"I'm still not sure — could you say it differently?",
	"I'm having trouble understanding — please be more specific.",
}

// FallbackPolicy selects an escalation message for a consecutive-miss count.
// It never mutates the counter; only the engine resets it.
type FallbackPolicy struct {
	messages []string
}

// NewFallbackPolicy builds a policy from the given tiers, falling back to
// the defaults when none are supplied.
func NewFallbackPolicy(messages []string) *FallbackPolicy {
	if len(messages) == 0 {
		messages = DefaultFallbackMessages
	}
	return &FallbackPolicy{messages: messages}
}

// Message returns the tier message for the given pre-increment counter.
func (p *FallbackPolicy) Message(fallbackCount int) string {
	if fallbackCount < 0 {
		fallbackCount = 0
	}
	if fallbackCount >= len(p.messages) {
		return p.messages[len(p.messages)-1]
	}
	return p.messages[fallbackCount]
}
