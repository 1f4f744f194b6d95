package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/testutil"
)

func makeTestContext(fields, derived canon.Object) canon.Context {
	conn := testutil.Connection("user-1", "conn_sf", "salesforce")
	return testutil.OpportunityContext(conn, "SF_OPP_001", fields, derived)
}

func defaultTestContext() canon.Context {
	return makeTestContext(canon.Object{
		"name":        canon.String("Acme Expansion"),
		"stage":       canon.String("Proposal"),
		"value":       canon.Number(95000),
		"probability": canon.Number(70),
		"closeDate":   canon.String("2025-06-30"),
		"account":     canon.Object{"id": canon.String("A1"), "name": canon.Null{}},
		"tags":        canon.Array{canon.String("enterprise"), canon.String("renewal")},
	}, canon.Object{
		"days_since_last_contact": canon.Number(45),
	})
}

func cond(field string, op canon.Operator, v canon.Value) canon.Condition {
	return canon.Condition{Field: field, Operator: op, Value: v}
}

func TestEvaluate_Operators(t *testing.T) {
	ctx := defaultTestContext()

	tests := []struct {
		name string
		cond canon.Condition
		want bool
	}{
		{"equals string", cond("opportunity.stage", canon.OpEquals, canon.String("Proposal")), true},
		{"equals case-sensitive", cond("opportunity.stage", canon.OpEquals, canon.String("proposal")), false},
		{"not_equals", cond("opportunity.stage", canon.OpNotEquals, canon.String("Closed Won")), true},
		{"not_equals same", cond("opportunity.stage", canon.OpNotEquals, canon.String("Proposal")), false},
		{"equals number", cond("opportunity.value", canon.OpEquals, canon.Number(95000)), true},
		{"greater_than", cond("days_since_last_contact", canon.OpGreaterThan, canon.Number(30)), true},
		{"greater_than boundary", cond("days_since_last_contact", canon.OpGreaterThan, canon.Number(45)), false},
		{"greater_than_or_equal boundary", cond("days_since_last_contact", canon.OpGreaterThanOrEqual, canon.Number(45)), true},
		{"less_than", cond("opportunity.probability", canon.OpLessThan, canon.Number(80)), true},
		{"less_than_or_equal", cond("opportunity.probability", canon.OpLessThanOrEqual, canon.Number(70)), true},
		{"numeric string operand", cond("opportunity.value", canon.OpGreaterThan, canon.String("50000")), true},
		{"date less_than", cond("opportunity.closeDate", canon.OpLessThan, canon.String("2025-07-01")), true},
		{"date vs time operand", cond("opportunity.closeDate", canon.OpGreaterThan, canon.NewTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))), true},
		{"contains substring", cond("opportunity.name", canon.OpContains, canon.String("expansion")), true},
		{"contains array", cond("opportunity.tags", canon.OpContains, canon.String("renewal")), true},
		{"contains array miss", cond("opportunity.tags", canon.OpContains, canon.String("smb")), false},
		{"in", cond("opportunity.stage", canon.OpIn, canon.Array{canon.String("Proposal"), canon.String("Negotiation")}), true},
		{"in miss", cond("opportunity.stage", canon.OpIn, canon.Array{canon.String("Negotiation")}), false},
		{"exists", cond("opportunity.account.id", canon.OpExists, nil), true},
		{"exists null is not present", cond("opportunity.account.name", canon.OpExists, nil), false},
		{"exists false on absent", cond("opportunity.owner", canon.OpExists, canon.Bool(false)), true},
		{"exists on absent", cond("opportunity.owner", canon.OpExists, canon.Bool(true)), false},
		{"equals null on present null", cond("opportunity.account.name", canon.OpEquals, canon.Null{}), true},
		{"equals null on absent", cond("opportunity.owner.name", canon.OpEquals, canon.Null{}), true},
		{"not_equals null on absent", cond("opportunity.owner.name", canon.OpNotEquals, canon.Null{}), false},
		{"connection provider", cond("connection.provider", canon.OpEquals, canon.String("salesforce")), true},
		{"source type", cond("opportunity.source.type", canon.OpEquals, canon.String("salesforce")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.cond, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_AbsentFieldIsResolutionError(t *testing.T) {
	ctx := defaultTestContext()

	for _, op := range []canon.Operator{canon.OpEquals, canon.OpNotEquals, canon.OpGreaterThan, canon.OpContains} {
		t.Run(string(op), func(t *testing.T) {
			_, err := Evaluate(cond("opportunity.owner.name", op, canon.String("Jane")), ctx)
			require.Error(t, err)
			assert.True(t, IsFieldResolution(err))

			var fe *FieldResolutionError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "opportunity.owner.name", fe.Field)
			assert.Equal(t, "owner", fe.Segment)
			assert.ErrorIs(t, err, canon.ErrPathNotFound)
		})
	}
}

func TestEvaluate_PathThroughScalarIsAbsent(t *testing.T) {
	ctx := defaultTestContext()

	tests := []struct {
		name string
		cond canon.Condition
		want bool
	}{
		{"exists false through string", cond("opportunity.stage.label", canon.OpExists, canon.Bool(false)), true},
		{"exists true through string", cond("opportunity.stage.label", canon.OpExists, canon.Bool(true)), false},
		{"exists false through null", cond("opportunity.account.name.first", canon.OpExists, canon.Bool(false)), true},
		{"equals null through number", cond("opportunity.value.currency", canon.OpEquals, canon.Null{}), true},
		{"not_equals null through number", cond("opportunity.value.currency", canon.OpNotEquals, canon.Null{}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.cond, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Evaluate(cond("opportunity.stage.label", canon.OpEquals, canon.String("x")), ctx)
	require.Error(t, err)
	var fe *FieldResolutionError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "label", fe.Segment)
}

func TestEvaluate_MalformedPath(t *testing.T) {
	_, err := Evaluate(cond("opportunity..stage", canon.OpEquals, canon.String("x")), defaultTestContext())
	require.Error(t, err)
	assert.True(t, IsFieldResolution(err))
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	ctx := defaultTestContext()

	tests := []struct {
		name string
		cond canon.Condition
	}{
		{"string greater_than number", cond("opportunity.stage", canon.OpGreaterThan, canon.Number(3))},
		{"number less_than text", cond("opportunity.value", canon.OpLessThan, canon.String("lots"))},
		{"null ordering", cond("opportunity.account.name", canon.OpGreaterThan, canon.Number(1))},
		{"in non-array operand", cond("opportunity.stage", canon.OpIn, canon.String("Proposal"))},
		{"contains on number", cond("opportunity.value", canon.OpContains, canon.String("9"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.cond, ctx)
			require.Error(t, err)
			assert.False(t, got)
			assert.True(t, IsTypeMismatch(err), "got %v", err)
			assert.False(t, IsFieldResolution(err))
		})
	}
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	_, err := Evaluate(cond("opportunity.stage", "starts_with", canon.String("Pro")), defaultTestContext())
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestEvaluate_DerivedShadowsPrimary(t *testing.T) {
	ctx := makeTestContext(
		canon.Object{"stage": canon.String("Proposal"), "value": canon.Number(10)},
		canon.Object{"opportunity": canon.Object{"amount": canon.Number(75000)}},
	)

	ok, err := Evaluate(cond("opportunity.amount", canon.OpGreaterThan, canon.Number(50000)), ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Evaluate(cond("opportunity.stage", canon.OpEquals, canon.String("Proposal")), ctx)
	require.NoError(t, err)
	assert.True(t, ok, "primary fields survive the merge")
}

func TestEvaluate_Pure(t *testing.T) {
	ctx := defaultTestContext()
	before, err := canon.MarshalCanonical(ctx.Fields())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = Evaluate(cond("days_since_last_contact", canon.OpGreaterThan, canon.Number(30)), ctx)
		_, _ = Evaluate(cond("opportunity.owner", canon.OpExists, nil), ctx)
	}

	after, err := canon.MarshalCanonical(ctx.Fields())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}
