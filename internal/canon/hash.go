package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainSignal  = "crmsignal/signal/v1"
	DomainRuleSet = "crmsignal/ruleset/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SignalID computes the persistence identity of a signal for a user.
// The ID field itself is excluded, so assigning it is idempotent.
func SignalID(userID string, s Signal) (string, error) {
	s.ID = ""
	obj := Object{
		"user_id": String(userID),
		"signal":  s.Object(),
	}
	data, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("SignalID: failed to marshal: %w", err)
	}
	return "sig_" + hashWithDomain(DomainSignal, data)[:32], nil
}

// RuleSetHash fingerprints an ordered rule set. Two generation runs with
// the same hash evaluated the same rules in the same order.
func RuleSetHash(rules []Rule) (string, error) {
	arr := make(Array, len(rules))
	for i, r := range rules {
		obj, err := ruleObject(r)
		if err != nil {
			return "", fmt.Errorf("RuleSetHash: rule %s: %w", r.ID, err)
		}
		arr[i] = obj
	}
	data, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("RuleSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRuleSet, data), nil
}

// MarshalRule renders a rule as canonical JSON. json.Unmarshal into a Rule
// reads it back.
func MarshalRule(r Rule) ([]byte, error) {
	obj, err := ruleObject(r)
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(obj)
}

// MustRuleSetHash is like RuleSetHash but panics on error.
// Use only in tests.
func MustRuleSetHash(rules []Rule) string {
	h, err := RuleSetHash(rules)
	if err != nil {
		panic(err)
	}
	return h
}

func ruleObject(r Rule) (Object, error) {
	conds := make(Array, len(r.Conditions))
	for i, c := range r.Conditions {
		val := c.Value
		if val == nil {
			val = Null{}
		}
		conds[i] = Object{
			"field":    String(c.Field),
			"operator": String(c.Operator),
			"value":    val,
		}
	}
	actions := make(Array, len(r.Actions))
	for i, a := range r.Actions {
		actions[i] = Object{"type": String(a.Type), "priority": Number(a.Priority)}
	}
	kinds := make(Array, len(r.EntityKinds))
	for i, k := range r.EntityKinds {
		kinds[i] = String(k)
	}
	return Object{
		"id":            String(r.ID),
		"name":          String(r.Name),
		"description":   String(r.Description),
		"conditions":    conds,
		"priority":      String(r.Priority),
		"baseScore":     Number(r.BaseScore),
		"scoreModifier": Number(r.ScoreModifier),
		"actions":       actions,
		"entityKinds":   kinds,
	}, nil
}
