package adapter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crmsignal/internal/canon"
)

const testFixtures = `
connections:
  - id: conn_sf
    user_id: user-1
    provider: Salesforce
    records:
      lead:
        - Id: SF_L_001
          FirstName: Jane
          LastName: Smith
          Company: Acme Inc
          Email: jane@acme.com
          Phone: 555-1234
          Status: Open
          CreatedDate: "2025-03-15T10:30:00Z"
        - Id: SF_L_002
          FirstName: Bob
          LastName: Johnson
          Company: Tech Corp
          Status: Contacted
          CreatedDate: "2025-03-12T14:45:00Z"
      opportunity:
        - Id: SF_OPP_001
          Name: Acme - New Software
          StageName: Proposal
          Amount: 95000
          CloseDate: "2025-06-30"
          Probability: 70
          AccountId: SF_ACC_001
          AccountName: Acme Inc
          OwnerId: SF_USER_001
          OwnerName: John Doe
          LastModifiedDate: "2025-03-15T10:30:00Z"
          ContactIds: [SF_C_001]
      task:
        - Id: SF_T_001
          Subject: Send pricing
          Status: Open
          WhatId: SF_OPP_001
  - id: conn_hs
    user_id: user-1
    provider: hubspot
    records:
      opportunity:
        - id: "9001"
          properties:
            dealname: Globex renewal
            dealstage: contractsent
            amount: "120000.50"
            closedate: "2025-07-15T00:00:00Z"
            hs_deal_stage_probability: "0.8"
            hubspot_owner_id: "77"
          associations:
            contacts: [{id: "501"}, {id: "502"}]
            companies: [{id: "300"}]
      engagement:
        - id: "e1"
          properties:
            hs_engagement_type: CALL
            hs_timestamp: "1741600000000"
          associations:
            deals: ["9001"]
  - id: conn_zoho
    user_id: user-2
    provider: zoho
    records:
      opportunity:
        - id: "z1"
          Deal_Name: Initech rollout
          Stage: Negotiation/Review
          Amount: 64000
          Closing_Date: "2025-05-01"
          Probability: 60
          Account_Name: {id: "za1", name: Initech}
          Owner: {id: "zu1", name: Peter Gibbons}
          Modified_Time: "2025-03-01T09:00:00+05:30"
  - id: conn_pd
    user_id: user-2
    provider: pipedrive
    records:
      opportunity:
        - id: 42
          title: Umbrella pilot
          stage_id: 3
          value: 30000
          expected_close_date: "2025-08-01"
          org_id: {value: 9, name: Umbrella Corp}
          user_id: {id: 5, name: Alice}
          update_time: "2025-03-10 12:00:00"
          person_id: {value: 12}
      contact:
        - id: 12
          first_name: Albert
          last_name: Wesker
          email:
            - {value: old@umbrella.com, primary: false}
            - {value: albert@umbrella.com, primary: true}
  - id: conn_down
    user_id: user-3
    provider: salesforce
    fail: "503 service unavailable"
`

func loadTestFixtures(t *testing.T) *FixtureSource {
	t.Helper()
	src, err := ParseFixtures([]byte(testFixtures))
	require.NoError(t, err)
	return src
}

func conn(src *FixtureSource, id string) canon.Connection {
	for _, c := range src.All() {
		if c.ID == id {
			return c
		}
	}
	panic("no fixture connection " + id)
}

func TestRegistry_LookupCaseInsensitive(t *testing.T) {
	reg := DefaultRegistry(NewFixtureSource(), Options{})

	for _, name := range []string{"salesforce", "Salesforce", " HUBSPOT ", "zoho", "Pipedrive"} {
		a, err := reg.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(name)), a.Provider())
	}
	assert.Equal(t, []string{"hubspot", "pipedrive", "salesforce", "zoho"}, reg.Providers())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := DefaultRegistry(NewFixtureSource(), Options{}).Lookup("dynamics")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewZoho(NewFixtureSource(), Options{})))
	assert.Error(t, reg.Register(NewZoho(NewFixtureSource(), Options{})))
}

func TestSupportedKinds(t *testing.T) {
	src := NewFixtureSource()
	assert.Equal(t, []canon.Kind{canon.KindLead, canon.KindOpportunity, canon.KindContact, canon.KindTask, canon.KindDocument},
		NewSalesforce(src, Options{}).SupportedKinds())
	assert.Equal(t, []canon.Kind{canon.KindLead, canon.KindOpportunity, canon.KindContact, canon.KindEngagement},
		NewHubspot(src, Options{}).SupportedKinds())
	assert.Equal(t, []canon.Kind{canon.KindLead, canon.KindOpportunity, canon.KindContact},
		NewZoho(src, Options{}).SupportedKinds())
	assert.Equal(t, []canon.Kind{canon.KindLead, canon.KindOpportunity, canon.KindContact},
		NewPipedrive(src, Options{}).SupportedKinds())
}

func TestValidateCredentials(t *testing.T) {
	src := NewFixtureSource()
	tests := []struct {
		name    string
		adapter CrmAdapter
		creds   Credentials
		missing []string
	}{
		{"salesforce ok", NewSalesforce(src, Options{}), Credentials{"clientId": "a", "clientSecret": "b", "refreshToken": "c"}, nil},
		{"salesforce missing", NewSalesforce(src, Options{}), Credentials{"clientId": "a"}, []string{"clientSecret", "refreshToken"}},
		{"hubspot ok", NewHubspot(src, Options{}), Credentials{"apiKey": "k"}, nil},
		{"hubspot blank", NewHubspot(src, Options{}), Credentials{"apiKey": "  "}, []string{"apiKey"}},
		{"zoho missing", NewZoho(src, Options{}), Credentials{}, []string{"clientId", "clientSecret", "refreshToken"}},
		{"pipedrive ok", NewPipedrive(src, Options{}), Credentials{"apiToken": "t"}, nil},
		{"pipedrive wrong key", NewPipedrive(src, Options{}), Credentials{"apiKey": "t"}, []string{"apiToken"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.adapter.ValidateCredentials(tt.creds)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			var ce *CredentialError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.missing, ce.Missing)
		})
	}
}

func TestConnect(t *testing.T) {
	a := NewHubspot(NewFixtureSource(), Options{})

	res, err := a.Connect(context.Background(), Credentials{"apiKey": "k", "organization": "Globex"})
	require.NoError(t, err)
	assert.Equal(t, "hubspot", res.Provider)
	assert.True(t, strings.HasPrefix(res.Token, "hs_"), res.Token)
	assert.Equal(t, "HubSpot User", res.User.Name)
	assert.Equal(t, "Globex", res.Organization.Name)
	assert.NotEmpty(t, res.Organization.ID)

	again, err := a.Connect(context.Background(), Credentials{"apiKey": "k"})
	require.NoError(t, err)
	assert.NotEqual(t, res.Token, again.Token, "tokens are unique per connect")

	_, err = a.Connect(context.Background(), Credentials{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSalesforceNormalization(t *testing.T) {
	src := loadTestFixtures(t)
	sf := NewSalesforce(src, Options{})

	leads, err := sf.FetchEntities(context.Background(), conn(src, "conn_sf"), canon.KindLead, Filter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)

	jane := leads[0]
	assert.Equal(t, "SF_L_001", jane.ID)
	assert.Equal(t, canon.KindLead, jane.Kind)
	assert.Equal(t, canon.Source{Type: "salesforce", EntityType: canon.KindLead, ID: "SF_L_001"}, jane.Source)
	assert.Equal(t, canon.String("Jane Smith"), jane.Fields["fullName"])
	assert.Equal(t, canon.String("Acme Inc"), jane.Fields["company"])
	assert.Equal(t, canon.String("Open"), jane.Fields["status"])
	assert.Equal(t, canon.NewTime(time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC)), jane.Fields["createdAt"])

	opps, err := sf.FetchEntities(context.Background(), conn(src, "conn_sf"), canon.KindOpportunity, Filter{})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	opp := opps[0].Fields
	assert.Equal(t, canon.String("Proposal"), opp["stage"])
	assert.Equal(t, canon.Number(95000), opp["value"])
	assert.Equal(t, canon.Number(70), opp["probability"])
	assert.Equal(t, canon.Object{"id": canon.String("SF_ACC_001"), "name": canon.String("Acme Inc")}, opp["account"])
	assert.Equal(t, canon.Object{"id": canon.String("SF_USER_001"), "name": canon.String("John Doe")}, opp["owner"])
	assert.Equal(t, canon.Array{canon.String("SF_C_001")}, opp["contactIds"])
	assert.NotContains(t, opp, "stageChangedAt", "absent vendor fields stay absent")
}

func TestHubspotNormalization(t *testing.T) {
	src := loadTestFixtures(t)
	hs := NewHubspot(src, Options{})

	deals, err := hs.FetchEntities(context.Background(), conn(src, "conn_hs"), canon.KindOpportunity, Filter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0].Fields
	assert.Equal(t, "9001", deals[0].ID)
	assert.Equal(t, canon.String("Globex renewal"), d["name"])
	assert.Equal(t, canon.String("contractsent"), d["stage"])
	assert.Equal(t, canon.Number(120000.5), d["value"])
	assert.InDelta(t, 80, float64(d["probability"].(canon.Number)), 1e-9)
	assert.Equal(t, canon.Object{"id": canon.String("300")}, d["account"])
	assert.Equal(t, canon.Array{canon.String("501"), canon.String("502")}, d["contactIds"])

	engagements, err := hs.FetchEntities(context.Background(), conn(src, "conn_hs"), canon.KindEngagement, Filter{})
	require.NoError(t, err)
	require.Len(t, engagements, 1)
	assert.Equal(t, canon.NewTime(time.UnixMilli(1741600000000)), engagements[0].Fields["occurredAt"])
	assert.Equal(t, canon.Array{canon.String("9001")}, engagements[0].Fields["opportunityIds"])
}

func TestZohoNormalization(t *testing.T) {
	src := loadTestFixtures(t)
	deals, err := NewZoho(src, Options{}).FetchEntities(context.Background(), conn(src, "conn_zoho"), canon.KindOpportunity, Filter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0].Fields
	assert.Equal(t, canon.String("Negotiation/Review"), d["stage"])
	assert.Equal(t, canon.Number(64000), d["value"])
	assert.Equal(t, canon.Object{"id": canon.String("za1"), "name": canon.String("Initech")}, d["account"])
	assert.Equal(t, canon.NewTime(time.Date(2025, 3, 1, 3, 30, 0, 0, time.UTC)), d["updatedAt"])
}

func TestPipedriveNormalization(t *testing.T) {
	src := loadTestFixtures(t)
	pd := NewPipedrive(src, Options{})

	deals, err := pd.FetchEntities(context.Background(), conn(src, "conn_pd"), canon.KindOpportunity, Filter{})
	require.NoError(t, err)
	require.Len(t, deals, 1)

	d := deals[0].Fields
	assert.Equal(t, "42", deals[0].ID)
	assert.Equal(t, canon.String("Umbrella pilot"), d["name"])
	assert.Equal(t, canon.String("3"), d["stage"])
	assert.Equal(t, canon.Number(30000), d["value"])
	assert.Equal(t, canon.Object{"id": canon.String("9"), "name": canon.String("Umbrella Corp")}, d["account"])
	assert.Equal(t, canon.Array{canon.String("12")}, d["contactIds"])

	people, err := pd.FetchEntities(context.Background(), conn(src, "conn_pd"), canon.KindContact, Filter{})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, canon.String("albert@umbrella.com"), people[0].Fields["email"])
	assert.Equal(t, canon.String("Albert Wesker"), people[0].Fields["fullName"])
}

func TestFetchEntities_Filter(t *testing.T) {
	src := loadTestFixtures(t)
	sf := NewSalesforce(src, Options{})
	c := conn(src, "conn_sf")

	open, err := sf.FetchEntities(context.Background(), c, canon.KindLead, Filter{Status: "open"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "SF_L_001", open[0].ID)

	recent, err := sf.FetchEntities(context.Background(), c, canon.KindLead, Filter{Since: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "SF_L_001", recent[0].ID)

	limited, err := sf.FetchEntities(context.Background(), c, canon.KindLead, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFetchEntities_Errors(t *testing.T) {
	src := loadTestFixtures(t)

	_, err := NewZoho(src, Options{}).FetchEntities(context.Background(), conn(src, "conn_zoho"), canon.KindTask, Filter{})
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = NewSalesforce(src, Options{}).FetchEntities(context.Background(), conn(src, "conn_down"), canon.KindLead, Filter{})
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
	assert.Contains(t, err.Error(), "503")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewSalesforce(src, Options{RatePerSecond: 1}).FetchEntities(ctx, conn(src, "conn_sf"), canon.KindLead, Filter{})
	assert.Error(t, err)
}

func TestFetchEntities_MissingID(t *testing.T) {
	src := NewFixtureSource()
	c := canon.Connection{ID: "c", UserID: "u", Provider: "salesforce"}
	require.NoError(t, src.Add(c, map[canon.Kind][]map[string]any{
		canon.KindLead: {{"FirstName": "NoId"}},
	}))
	_, err := NewSalesforce(src, Options{}).FetchEntities(context.Background(), c, canon.KindLead, Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingID)
}

func TestFixtureSource_Connections(t *testing.T) {
	src := loadTestFixtures(t)

	conns, err := src.Connections(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, conns, 2)
	assert.Equal(t, "conn_sf", conns[0].ID)
	assert.Equal(t, "salesforce", conns[0].Provider, "providers are lower-cased")
	assert.Equal(t, "conn_hs", conns[1].ID)

	none, err := src.Connections(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFixtureSource_Merge(t *testing.T) {
	src := loadTestFixtures(t)
	extra, err := ParseFixtures([]byte(`
connections:
  - {id: conn_extra, user_id: user-1, provider: ZOHO}
`))
	require.NoError(t, err)
	require.NoError(t, src.Merge(extra))

	conns, err := src.Connections(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, conns, 3)
	assert.Equal(t, "conn_extra", conns[2].ID)
	assert.Equal(t, "zoho", conns[2].Provider)

	assert.ErrorContains(t, src.Merge(extra), `duplicate connection id "conn_extra"`)
}

func TestParseFixtures_Invalid(t *testing.T) {
	tests := map[string]string{
		"duplicate id": `
connections:
  - {id: a, user_id: u, provider: zoho}
  - {id: a, user_id: u, provider: zoho}
`,
		"unknown kind": `
connections:
  - id: a
    user_id: u
    provider: zoho
    records:
      invoice: [{id: "1"}]
`,
		"missing provider": `
connections:
  - {id: a, user_id: u}
`,
		"not yaml": "connections: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixtures([]byte(doc))
			assert.Error(t, err)
		})
	}
}
