package canon

import "time"

// EntityRef identifies the entity a signal is about.
type EntityRef struct {
	Kind         Kind   `json:"kind"`
	ID           string `json:"id"`
	ConnectionID string `json:"connectionId"`
	Provider     string `json:"provider"`
}

// Signal is the engine's output for one (rule, context) match.
// ID stays empty until the signal store assigns one.
type Signal struct {
	ID          string    `json:"id,omitempty"`
	Type        string    `json:"type"`
	Priority    Priority  `json:"priority"`
	Score       float64   `json:"score"`
	EntityRef   EntityRef `json:"entityRef"`
	Actions     []Action  `json:"actions"`
	RuleID      string    `json:"ruleId"`
	RuleName    string    `json:"ruleName"`
	Description string    `json:"description,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SignalType labels signals of a rule for one primary kind: "<rule id>:<kind>".
func SignalType(ruleID string, kind Kind) string {
	return ruleID + ":" + string(kind)
}

// Object renders the signal for canonical serialization. The ID is
// omitted when empty so pre- and post-persistence snapshots differ only
// by that key.
func (s Signal) Object() Object {
	actions := make(Array, len(s.Actions))
	for i, a := range s.Actions {
		actions[i] = Object{
			"type":     String(a.Type),
			"priority": Number(a.Priority),
		}
	}
	obj := Object{
		"type":     String(s.Type),
		"priority": String(s.Priority),
		"score":    Number(s.Score),
		"entityRef": Object{
			"kind":         String(s.EntityRef.Kind),
			"id":           String(s.EntityRef.ID),
			"connectionId": String(s.EntityRef.ConnectionID),
			"provider":     String(s.EntityRef.Provider),
		},
		"actions":     actions,
		"ruleId":      String(s.RuleID),
		"ruleName":    String(s.RuleName),
		"generatedAt": NewTime(s.GeneratedAt),
	}
	if s.Description != "" {
		obj["description"] = String(s.Description)
	}
	if s.ID != "" {
		obj["id"] = String(s.ID)
	}
	return obj
}

// MarshalSignals renders a signal sequence as canonical JSON. Identical
// sequences always produce identical bytes.
func MarshalSignals(signals []Signal) ([]byte, error) {
	arr := make(Array, len(signals))
	for i, s := range signals {
		arr[i] = s.Object()
	}
	return MarshalCanonical(arr)
}
