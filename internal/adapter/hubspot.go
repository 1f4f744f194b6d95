package adapter

import (
	"github.com/roach88/crmsignal/internal/canon"
)

// Hubspot normalizes HubSpot CRM v3 objects: an "id" plus a "properties"
// map of strings, with associations alongside.
type Hubspot struct {
	*Base
}

// NewHubspot creates the HubSpot adapter.
func NewHubspot(source RecordSource, opts Options) *Hubspot {
	return &Hubspot{Base: newBase(variant{
		provider:    "hubspot",
		displayName: "HubSpot",
		tokenPrefix: "hs",
		required:    []string{"apiKey"},
		scopes:      []string{"contacts", "deals", "tickets"},
		normalizers: map[canon.Kind]normalizeFunc{
			canon.KindLead:        hubspotLead,
			canon.KindOpportunity: hubspotDeal,
			canon.KindContact:     hubspotContact,
			canon.KindEngagement:  hubspotEngagement,
		},
	}, source, opts)}
}

func hubspotLead(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("properties.firstname"), r.str("properties.lastname")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("company", r.str("properties.company"))
	f.set("email", r.str("properties.email"))
	f.set("phone", r.str("properties.phone"))
	f.set("status", r.str("properties.hs_lead_status"))
	f.set("createdAt", r.instant("properties.createdate"))
	f.set("updatedAt", r.instant("properties.lastmodifieddate"))
	f.set("lastContactedAt", r.instant("properties.notes_last_contacted"))
	return id, f.object(), nil
}

func hubspotDeal(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("name", r.str("properties.dealname"))
	f.set("stage", r.str("properties.dealstage"))
	f.set("value", r.num("properties.amount"))
	f.set("closeDate", r.instant("properties.closedate"))
	// Deal stage probability is a 0..1 fraction.
	if p, ok := r.num("properties.hs_deal_stage_probability").(canon.Number); ok {
		f.set("probability", canon.Number(float64(p)*100))
	}
	f.ref("account", firstID(r.ids("associations.companies")), nil)
	f.ref("owner", r.str("properties.hubspot_owner_id"), nil)
	f.set("updatedAt", r.instant("properties.hs_lastmodifieddate"))
	f.set("stageChangedAt", r.instant("properties.hs_date_entered_current_stage"))
	f.set("createdAt", r.instant("properties.createdate"))
	f.set("contactIds", r.ids("associations.contacts"))
	return id, f.object(), nil
}

func hubspotContact(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("properties.firstname"), r.str("properties.lastname")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("email", r.str("properties.email"))
	f.set("phone", r.str("properties.phone"))
	f.set("accountId", r.str("properties.associatedcompanyid"))
	f.set("lastContactedAt", r.instant("properties.notes_last_contacted"))
	f.set("opportunityIds", r.ids("associations.deals"))
	f.set("leadIds", r.ids("associations.leads"))
	return id, f.object(), nil
}

func hubspotEngagement(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("type", r.str("properties.hs_engagement_type"))
	f.set("occurredAt", r.instant("properties.hs_timestamp"))
	f.set("opportunityIds", r.ids("associations.deals"))
	f.set("contactIds", r.ids("associations.contacts"))
	f.set("leadIds", r.ids("associations.leads"))
	return id, f.object(), nil
}

func firstID(v canon.Value) canon.Value {
	if arr, ok := v.(canon.Array); ok && len(arr) > 0 {
		return arr[0]
	}
	return nil
}
