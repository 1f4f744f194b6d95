package testutil

import (
	"github.com/roach88/crmsignal/internal/canon"
)

// FollowUpRule is the default "Follow-up needed" rule: open opportunity,
// no contact in 30 days. Base 80, modifier 10, high.
func FollowUpRule() canon.Rule {
	return canon.Rule{
		ID:          "rule_1",
		Name:        "Follow-up needed",
		Description: "No contact with an open opportunity in over 30 days",
		Conditions: []canon.Condition{
			{Field: "opportunity.stage", Operator: canon.OpNotEquals, Value: canon.String("Closed Won")},
			{Field: "opportunity.stage", Operator: canon.OpNotEquals, Value: canon.String("Closed Lost")},
			{Field: "days_since_last_contact", Operator: canon.OpGreaterThan, Value: canon.Number(30)},
		},
		Priority:      canon.PriorityHigh,
		BaseScore:     80,
		ScoreModifier: 10,
		Actions: []canon.Action{
			{Type: "call", Priority: 1},
			{Type: "email", Priority: 2},
		},
	}
}

// DocumentViewedRule is the default "Document viewed" rule. Base 60,
// modifier 5, medium.
func DocumentViewedRule() canon.Rule {
	return canon.Rule{
		ID:          "rule_2",
		Name:        "Document viewed",
		Description: "A shared document was viewed repeatedly this week",
		Conditions: []canon.Condition{
			{Field: "document.view_count", Operator: canon.OpGreaterThan, Value: canon.Number(2)},
			{Field: "document.days_since_shared", Operator: canon.OpLessThan, Value: canon.Number(7)},
		},
		Priority:      canon.PriorityMedium,
		BaseScore:     60,
		ScoreModifier: 5,
		Actions: []canon.Action{
			{Type: "email", Priority: 1},
			{Type: "call", Priority: 2},
		},
	}
}

// AgingOpportunityRule is the default "High-value opportunity aging" rule.
// Base 85, modifier 15, high.
func AgingOpportunityRule() canon.Rule {
	return canon.Rule{
		ID:          "rule_3",
		Name:        "High-value opportunity aging",
		Description: "Large, likely deal stuck in its stage for over two weeks",
		Conditions: []canon.Condition{
			{Field: "opportunity.amount", Operator: canon.OpGreaterThan, Value: canon.Number(50000)},
			{Field: "opportunity.days_in_stage", Operator: canon.OpGreaterThan, Value: canon.Number(14)},
			{Field: "opportunity.probability", Operator: canon.OpGreaterThan, Value: canon.Number(50)},
		},
		Priority:      canon.PriorityHigh,
		BaseScore:     85,
		ScoreModifier: 15,
		Actions: []canon.Action{
			{Type: "call", Priority: 1},
			{Type: "meeting", Priority: 2},
		},
	}
}

// DefaultRules returns the three default rules in declaration order.
func DefaultRules() []canon.Rule {
	return []canon.Rule{FollowUpRule(), DocumentViewedRule(), AgingOpportunityRule()}
}

// Connection builds a connection for user with the given id and provider.
func Connection(userID, id, provider string) canon.Connection {
	return canon.Connection{ID: id, UserID: userID, Provider: provider}
}

// OpportunityContext builds an opportunity context with the given fields
// and derived values.
func OpportunityContext(conn canon.Connection, id string, fields, derived canon.Object) canon.Context {
	primary := canon.NewEntity(canon.KindOpportunity, id, fields, canon.Source{
		Type:       conn.Provider,
		EntityType: canon.KindOpportunity,
		ID:         id,
	})
	return canon.NewContext(primary, nil, conn, derived)
}

// LeadContext builds a lead context with the given fields and derived values.
func LeadContext(conn canon.Connection, id string, fields, derived canon.Object) canon.Context {
	primary := canon.NewEntity(canon.KindLead, id, fields, canon.Source{
		Type:       conn.Provider,
		EntityType: canon.KindLead,
		ID:         id,
	})
	return canon.NewContext(primary, nil, conn, derived)
}
