package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crmsignal/internal/adapter"
	"github.com/roach88/crmsignal/internal/canon"
	"github.com/roach88/crmsignal/internal/compiler"
	"github.com/roach88/crmsignal/internal/engine"
	"github.com/roach88/crmsignal/internal/logging"
	"github.com/roach88/crmsignal/internal/store"
	"github.com/roach88/crmsignal/internal/testutil"
)

const testFixtures = `
connections:
  - id: conn_sf
    user_id: user-1
    provider: salesforce
    records:
      opportunity:
        - Id: SF_OPP_001
          StageName: Proposal
          Amount: 95000
          Probability: 70
          LastModifiedDate: "2025-02-15T09:00:00Z"
          LastStageChangeDate: "2025-03-10T09:00:00Z"
          ContactIds: [SF_C_001]
        - Id: SF_OPP_002
          StageName: Closed Won
          Amount: 20000
          LastModifiedDate: "2025-01-01T09:00:00Z"
      contact:
        - {Id: SF_C_001, LastActivityDate: "2025-02-20"}
  - id: conn_down
    user_id: user-1
    provider: hubspot
    fail: "503 service unavailable"
  - id: conn_other
    user_id: user-2
    provider: zoho
`

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fixtures, err := adapter.ParseFixtures([]byte(testFixtures))
	require.NoError(t, err)

	svc, err := New(Config{
		Store:    st,
		Fixtures: fixtures,
		Rules:    testutil.DefaultRules(),
		IDs:      engine.NewFixedIDs("run-1", "run-2", "run-3"),
		Clock:    testutil.NewFixedClock(testutil.DefaultNow),
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return svc, st
}

func signalTypes(signals []canon.Signal) []string {
	var out []string
	for _, s := range signals {
		out = append(out, s.Type)
	}
	return out
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGenerate_FromFixtures(t *testing.T) {
	svc, _ := newTestService(t)

	gen, err := svc.Generate(context.Background(), GenerateRequest{UserID: "user-1"})
	require.NoError(t, err)

	// SF_OPP_001: 40 days since contact, 22 days in stage, amount 95000, probability 70.
	assert.Equal(t, []string{"rule_3:opportunity", "rule_1:opportunity"}, signalTypes(gen.Signals))
	assert.Equal(t, 100.0, gen.Signals[0].Score)
	assert.Equal(t, 90.0, gen.Signals[1].Score)
	assert.Empty(t, gen.Signals[0].ID, "unsaved signals have no id")
	assert.Nil(t, gen.Run)

	require.Len(t, gen.Errors, 1)
	assert.Equal(t, "conn_down", gen.Errors[0].ConnectionID)
	assert.ErrorIs(t, gen.Errors[0].Err, adapter.ErrConnectionUnavailable)
	assert.Equal(t, 2, gen.Stats.Connections)
	assert.Equal(t, 1, gen.Stats.FailedConnections)
}

func TestGenerate_Filter(t *testing.T) {
	svc, _ := newTestService(t)

	gen, err := svc.Generate(context.Background(), GenerateRequest{
		UserID: "user-1",
		Filter: engine.Filter{Type: "rule_1:opportunity"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rule_1:opportunity"}, signalTypes(gen.Signals))

	gen, err = svc.Generate(context.Background(), GenerateRequest{
		UserID: "user-1",
		Filter: engine.Filter{Priority: canon.PriorityMedium},
	})
	require.NoError(t, err)
	assert.Empty(t, gen.Signals)
}

func TestGenerate_SaveRecordsRun(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, GenerateRequest{UserID: "user-1", Save: true})
	require.NoError(t, err)
	require.NotNil(t, gen.Run)
	assert.Equal(t, "run-1", gen.Run.ID)
	for _, s := range gen.Signals {
		assert.NotEmpty(t, s.ID)
	}
	assert.Equal(t, canon.MustRuleSetHash(testutil.DefaultRules()), gen.Run.RuleSetHash)
	assert.Equal(t, 2, gen.Run.Signals)
	assert.Equal(t, 1, gen.Run.FailedConnections)

	// Saving again stores nothing new.
	_, err = svc.Generate(ctx, GenerateRequest{UserID: "user-1", Save: true})
	require.NoError(t, err)
	listed, err := svc.Signals(ctx, "user-1", store.SignalQuery{})
	require.NoError(t, err)
	assert.Equal(t, gen.Signals, listed)

	runs, err := st.Runs(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, []string{runs[0].ID, runs[1].ID})
}

func TestGenerate_StoredRulesWin(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	hash, err := svc.ImportRules(ctx, "user-1", []canon.Rule{testutil.FollowUpRule()})
	require.NoError(t, err)
	assert.Equal(t, canon.MustRuleSetHash([]canon.Rule{testutil.FollowUpRule()}), hash)

	gen, err := svc.Generate(ctx, GenerateRequest{UserID: "user-1", Save: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"rule_1:opportunity"}, signalTypes(gen.Signals))
	assert.Equal(t, hash, gen.Run.RuleSetHash)

	stored, err := st.Rules(ctx, "user-1", canon.Connection{})
	require.NoError(t, err)
	assert.Equal(t, []canon.Rule{testutil.FollowUpRule()}, stored)
}

func TestImportRules_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ImportRules(ctx, "user-1", nil)
	assert.Error(t, err)

	bad := testutil.FollowUpRule()
	bad.Conditions = nil
	_, err = svc.ImportRules(ctx, "user-1", []canon.Rule{bad})
	require.Error(t, err)
	assert.True(t, compiler.IsConfiguration(err))

	// The directory set still applies.
	gen, err := svc.Generate(ctx, GenerateRequest{UserID: "user-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, gen.Signals)
}

func TestGenerate_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Generate(context.Background(), GenerateRequest{UserID: "nobody"})
	assert.ErrorIs(t, err, ErrNoConnections)

	_, err = svc.Generate(context.Background(), GenerateRequest{})
	assert.ErrorIs(t, err, engine.ErrMissingUser)
	assert.True(t, engine.IsAggregation(err))
}

func TestConnect(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	got, err := svc.Connect(ctx, ConnectRequest{
		UserID:      "user-3",
		Provider:    "HubSpot",
		Credentials: adapter.Credentials{"apiKey": "k"},
		Settings:    map[string]string{"portal": "42"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hubspot", got.Connection.Provider)
	assert.Equal(t, got.Result.Token, got.Connection.Token)
	assert.Regexp(t, `^conn_[0-9a-f]{12}$`, got.Connection.ID)
	assert.Equal(t, testutil.DefaultNow, got.Connection.CreatedAt)

	stored, err := st.Connection(ctx, got.Connection.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Connection, stored)

	// A fresh connection has no records: generation succeeds with nothing.
	gen, err := svc.Generate(ctx, GenerateRequest{UserID: "user-3"})
	require.NoError(t, err)
	assert.Empty(t, gen.Signals)
	assert.Equal(t, 1, gen.Stats.Connections)
}

func TestConnect_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Connect(ctx, ConnectRequest{UserID: "u", Provider: "dynamics"})
	assert.ErrorIs(t, err, adapter.ErrUnsupportedProvider)

	_, err = svc.Connect(ctx, ConnectRequest{UserID: "u", Provider: "zoho", Credentials: adapter.Credentials{"clientId": "x"}})
	assert.ErrorIs(t, err, adapter.ErrInvalidCredentials)

	_, err = svc.Connect(ctx, ConnectRequest{Provider: "pipedrive", Credentials: adapter.Credentials{"apiToken": "t"}})
	assert.ErrorIs(t, err, engine.ErrMissingUser)
}

func TestExplain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	got, err := svc.Explain(ctx, "user-1", "rule_1")
	require.NoError(t, err)
	require.Len(t, got, 2, "one per opportunity; the failed connection is skipped")

	assert.Equal(t, "SF_OPP_001", got[0].Entity.ID)
	assert.True(t, got[0].Matched)
	require.Len(t, got[0].Outcomes, 3)
	assert.Equal(t, canon.Number(40), got[0].Outcomes[2].Actual)

	assert.Equal(t, "SF_OPP_002", got[1].Entity.ID)
	assert.False(t, got[1].Matched)
	assert.False(t, got[1].Outcomes[0].Matched, "Closed Won fails the first condition")

	_, err = svc.Explain(ctx, "user-1", "rule_9")
	assert.ErrorIs(t, err, ErrUnknownRule)

	_, err = svc.Explain(ctx, "nobody", "rule_1")
	assert.ErrorIs(t, err, ErrNoConnections)
}

func TestConnectionChain_Shadowing(t *testing.T) {
	first := testutil.NewConnectionRepo(testutil.Connection("u", "a", "zoho"))
	second := testutil.NewConnectionRepo(
		testutil.Connection("u", "a", "hubspot"),
		testutil.Connection("u", "b", "pipedrive"),
	)
	got, err := connectionChain{first, second}.Connections(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "zoho", got[0].Provider)
	assert.Equal(t, "b", got[1].ID)
}
