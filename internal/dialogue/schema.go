package dialogue

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"echofi-assistant/internal/nlu"
)

// Slot is one piece of information an intent needs before it can complete.
// Kind names the entity kind that fills it.
type Slot struct {
	Name   string         `json:"name"`
	Kind   nlu.EntityKind `json:"kind"`
	Prompt string         `json:"prompt"`
}

// IntentSchema describes one supported intent: its required slots in
// elicitation order and the completion template rendered once all are
// filled. Template placeholders are {slot_name}.
type IntentSchema struct {
	Intent   string `json:"intent"`
	Slots    []Slot `json:"slots"`
	Template string `json:"template"`
}

// Registry holds the intent schemas. Adding an intent is a configuration
// change, not an engine change.
type Registry struct {
	schemas map[string]IntentSchema
}

// NewRegistry builds a registry from the given schemas. Later entries for
// the same intent replace earlier ones.
func NewRegistry(schemas ...IntentSchema) *Registry {
	r := &Registry{schemas: make(map[string]IntentSchema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.Intent] = s
	}
	return r
}

// DefaultRegistry returns the built-in banking intents.
func DefaultRegistry() *Registry {
	return NewRegistry(
		IntentSchema{
			Intent: "money_transfer",
			Slots: []Slot{
				{Name: "amount", Kind: nlu.KindAmount, Prompt: "How much do you want to transfer?"},
				{Name: "upi_id", Kind: nlu.KindUPI, Prompt: "Please share the UPI ID."},
			},
			Template: "Transferring ₹{amount} to {upi_id}.",
		},
		IntentSchema{
			Intent: "check_balance",
			Slots: []Slot{
				{Name: "account_type", Kind: nlu.KindAccountType, Prompt: "Which account would you like to check — savings or current?"},
			},
			Template: "Fetching your {account_type} account balance.",
		},
		IntentSchema{
			Intent:   "view_history",
			Template: "Here are your most recent transactions.",
		},
		IntentSchema{
			Intent:   "loan_query",
			Template: "Let me pull up your loan status.",
		},
		IntentSchema{
			Intent: "set_reminder",
			Slots: []Slot{
				{Name: "date", Kind: nlu.KindDate, Prompt: "When should I remind you?"},
			},
			Template: "Reminder set for {date}.",
		},
	)
}

// LoadRegistry reads intent schemas from a JSON file: an array of
// IntentSchema objects.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var schemas []IntentSchema
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil, fmt.Errorf("decode schema file %s: %w", path, err)
	}
	for _, s := range schemas {
		if strings.TrimSpace(s.Intent) == "" {
			return nil, fmt.Errorf("schema file %s: entry with empty intent", path)
		}
		for _, slot := range s.Slots {
			if slot.Name == "" || slot.Kind == "" {
				return nil, fmt.Errorf("schema file %s: intent %s has an incomplete slot", path, s.Intent)
			}
		}
	}
	return NewRegistry(schemas...), nil
}

// Lookup returns the schema for an intent.
func (r *Registry) Lookup(intent string) (IntentSchema, bool) {
	s, ok := r.schemas[intent]
	return s, ok
}

// Intents lists the registered intent names.
func (r *Registry) Intents() []string {
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	return names
}

// SlotForKind maps an entity kind to the slot it fills under this intent.
func (s IntentSchema) SlotForKind(kind nlu.EntityKind) (Slot, bool) {
	for _, slot := range s.Slots {
		if slot.Kind == kind {
			return slot, true
		}
	}
	return Slot{}, false
}

// MissingSlots returns the required slots not yet present in filled, in
// schema order.
func (s IntentSchema) MissingSlots(filled map[string]string) []Slot {
	var missing []Slot
	for _, slot := range s.Slots {
		if filled[slot.Name] == "" {
			missing = append(missing, slot)
		}
	}
	return missing
}

// Render substitutes {slot} placeholders in the completion template.
func (s IntentSchema) Render(filled map[string]string) string {
	text := s.Template
	for name, value := range filled {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}
