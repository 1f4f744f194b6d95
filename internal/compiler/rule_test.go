package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/testutil"
)

const defaultRulesCUE = `
rule: rule_1: {
	name:        "Follow-up needed"
	description: "No contact with an open opportunity in over 30 days"
	priority:    "high"
	base_score:     80
	score_modifier: 10
	conditions: [
		{field: "opportunity.stage", operator: "not_equals", value: "Closed Won"},
		{field: "opportunity.stage", operator: "not_equals", value: "Closed Lost"},
		{field: "days_since_last_contact", operator: "greater_than", value: 30},
	]
	actions: [{type: "email", priority: 2}, {type: "call", priority: 1}]
}

rule: rule_2: {
	name:        "Document viewed"
	description: "A shared document was viewed repeatedly this week"
	priority:    "medium"
	base_score:     60
	score_modifier: 5
	conditions: [
		{field: "document.view_count", operator: "greater_than", value: 2},
		{field: "document.days_since_shared", operator: "less_than", value: 7},
	]
	actions: [{type: "email", priority: 1}, {type: "call", priority: 2}]
}

rule: rule_3: {
	name:        "High-value opportunity aging"
	description: "Large, likely deal stuck in its stage for over two weeks"
	priority:    "high"
	base_score:     85
	score_modifier: 15
	conditions: [
		{field: "opportunity.amount", operator: "greater_than", value: 50000},
		{field: "opportunity.days_in_stage", operator: "greater_than", value: 14},
		{field: "opportunity.probability", operator: "greater_than", value: 50},
	]
	actions: [{type: "call", priority: 1}, {type: "meeting", priority: 2}]
}
`

func TestCompileStringDefaultRules(t *testing.T) {
	set, errs := CompileString("rules.cue", defaultRulesCUE, LoadModeCollectAll)
	require.Empty(t, errs)

	assert.Equal(t, testutil.DefaultRules(), set.Rules, "actions are sorted by rank at load")
	assert.Equal(t, canon.MustRuleSetHash(set.Rules), set.Hash)
	assert.Zero(t, set.FileCount)
}

func TestCompileRuleOperands(t *testing.T) {
	v := cuecontext.New().CompileString(`
		rule: "rule-x": {
			name: "Operands"
			priority: "low"
			entity_kinds: ["lead"]
			conditions: [
				{field: "lead.status", operator: "in", value: ["Open", "Working"]},
				{field: "lead.email", operator: "exists", value: true},
				{field: "lead.score", operator: "greater_than_or_equal", value: 2.5},
				{field: "lead.owner", operator: "equals", value: null},
				{field: "lead.meta", operator: "equals", value: {tier: "gold", seats: 3}},
			]
			actions: [{type: "email", priority: 1}]
		}
	`)
	require.NoError(t, v.Err())

	rule, err := CompileRule(v.LookupPath(cue.ParsePath(`rule."rule-x"`)))
	require.NoError(t, err)

	assert.Equal(t, "rule-x", rule.ID)
	assert.Equal(t, []canon.Kind{canon.KindLead}, rule.EntityKinds)
	assert.Equal(t, canon.Array{canon.String("Open"), canon.String("Working")}, rule.Conditions[0].Value)
	assert.Equal(t, canon.Bool(true), rule.Conditions[1].Value)
	assert.Equal(t, canon.Number(2.5), rule.Conditions[2].Value)
	assert.Equal(t, canon.Null{}, rule.Conditions[3].Value)
	assert.Equal(t, canon.Object{"tier": canon.String("gold"), "seats": canon.Number(3)}, rule.Conditions[4].Value)
	assert.Empty(t, Validate(rule))
}

func TestCompileRuleMissingValueIsNull(t *testing.T) {
	v := cuecontext.New().CompileString(`
		rule: r: conditions: [{field: "lead.email", operator: "equals"}]
	`)
	rule, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r")))
	require.NoError(t, err)
	assert.Equal(t, canon.Null{}, rule.Conditions[0].Value)
}

func TestCompileRuleWrongShape(t *testing.T) {
	v := cuecontext.New().CompileString(`
		rule: r: {
			name: "Bad"
			base_score: "eighty"
		}
	`, cue.Filename("bad.cue"))

	_, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r")))
	require.Error(t, err)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "base_score", ce.Field)
}

func TestCompileRuleIncompleteOperand(t *testing.T) {
	v := cuecontext.New().CompileString(`
		rule: r: conditions: [{field: "lead.email", operator: "equals", value: string}]
	`)
	_, err := CompileRule(v.LookupPath(cue.ParsePath("rule.r")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "concrete")
}

func TestCompileStringRejectsEmptyConditions(t *testing.T) {
	_, errs := CompileString("rules.cue", `
		rule: always: {
			name: "Always"
			priority: "low"
			conditions: []
			actions: [{type: "email", priority: 1}]
		}
	`, LoadModeCollectAll)

	require.Len(t, errs, 1)
	var ce *ConfigurationError
	require.True(t, errors.As(errs[0], &ce))
	assert.Equal(t, ErrNoConditions, ce.Code)
	assert.Equal(t, "always", ce.RuleID)
	assert.True(t, ce.Pos.IsValid(), "errors carry the rule position")
}

func TestCompileStringNegativeScores(t *testing.T) {
	set, errs := CompileString("rules.cue", `
		rule: closed_lost_penalty: {
			name: "Closed lost"
			priority: "low"
			base_score: -5
			score_modifier: -10.5
			conditions: [{field: "opportunity.stage", operator: "equals", value: "Closed Lost"}]
			actions: [{type: "email", priority: 1}]
		}
	`, LoadModeCollectAll)

	require.Empty(t, errs)
	require.Len(t, set.Rules, 1)
	assert.Equal(t, -5.0, set.Rules[0].BaseScore)
	assert.Equal(t, -10.5, set.Rules[0].ScoreModifier)
}

func TestCompileStringLoadModes(t *testing.T) {
	src := `
		rule: a: {name: "A", priority: "urgent", conditions: [{field: "x", operator: "equals", value: 1}], actions: [{type: "call", priority: 1}]}
		rule: b: {name: "B", priority: "low", conditions: [{field: "x", operator: "near", value: 1}], actions: [{type: "call", priority: 1}]}
	`
	set, errs := CompileString("rules.cue", src, LoadModeFailFast)
	assert.Nil(t, set)
	assert.Len(t, errs, 1)

	set, errs = CompileString("rules.cue", src, LoadModeCollectAll)
	assert.Nil(t, set)
	require.Len(t, errs, 2)
	assert.True(t, IsConfiguration(errs[0]))
	assert.Contains(t, errs[1].Error(), ErrUnknownOperator)
}

func TestCompileStringErrors(t *testing.T) {
	tests := map[string]string{
		"syntax":   `rule: r: {`,
		"no rules": `other: 1`,
		"empty":    `rule: {}`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			set, errs := CompileString("rules.cue", src, LoadModeCollectAll)
			assert.Nil(t, set)
			require.NotEmpty(t, errs)
			assert.True(t, IsConfiguration(errs[0]), "%v", errs[0])
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.cue"), []byte("package rules\n"+defaultRulesCUE), 0o644))

	set, errs := LoadDir(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Len(t, set.Rules, 3)
	assert.Equal(t, 1, set.FileCount)
	assert.Equal(t, "rule_1", set.Rules[0].ID)
}

func TestLoadDirErrors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), ErrLoadFailed)

	_, errs = LoadDir(t.TempDir(), LoadModeCollectAll)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no CUE files")
}
