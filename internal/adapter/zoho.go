package adapter

import (
	"github.com/roach88/crmsignal/internal/canon"
)

// Zoho normalizes Zoho CRM v2 module records (Snake_Case fields, lookups
// as {id, name} objects).
type Zoho struct {
	*Base
}

// NewZoho creates the Zoho adapter.
func NewZoho(source RecordSource, opts Options) *Zoho {
	return &Zoho{Base: newBase(variant{
		provider:    "zoho",
		displayName: "Zoho",
		tokenPrefix: "zoho",
		required:    []string{"clientId", "clientSecret", "refreshToken"},
		scopes:      []string{"ZohoCRM.modules.ALL"},
		normalizers: map[canon.Kind]normalizeFunc{
			canon.KindLead:        zohoLead,
			canon.KindOpportunity: zohoDeal,
			canon.KindContact:     zohoContact,
		},
	}, source, opts)}
}

func zohoLead(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("First_Name"), r.str("Last_Name")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("company", r.str("Company"))
	f.set("email", r.str("Email"))
	f.set("phone", r.str("Phone"))
	f.set("status", r.str("Lead_Status"))
	f.set("createdAt", r.instant("Created_Time"))
	f.set("updatedAt", r.instant("Modified_Time"))
	f.set("lastContactedAt", r.instant("Last_Activity_Time"))
	return id, f.object(), nil
}

func zohoDeal(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("name", r.str("Deal_Name"))
	f.set("stage", r.str("Stage"))
	f.set("value", r.num("Amount"))
	f.set("closeDate", r.instant("Closing_Date"))
	f.set("probability", r.num("Probability"))
	f.ref("account", r.str("Account_Name.id"), r.str("Account_Name.name"))
	f.ref("owner", r.str("Owner.id"), r.str("Owner.name"))
	f.set("updatedAt", r.instant("Modified_Time"))
	f.set("stageChangedAt", r.instant("Stage_Modified_Time"))
	f.set("createdAt", r.instant("Created_Time"))
	f.set("contactIds", r.ids("Contact_Name.id"))
	return id, f.object(), nil
}

func zohoContact(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("First_Name"), r.str("Last_Name")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("email", r.str("Email"))
	f.set("phone", r.str("Phone"))
	f.set("accountId", r.str("Account_Name.id"))
	f.set("lastContactedAt", r.instant("Last_Activity_Time"))
	f.set("opportunityIds", r.ids("Deals"))
	return id, f.object(), nil
}
