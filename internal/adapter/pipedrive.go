package adapter

import (
	"github.com/roach88/crmsignal/internal/canon"
)

// Pipedrive normalizes Pipedrive v1 records (snake_case fields, numeric
// ids, relations as {value, name} objects).
type Pipedrive struct {
	*Base
}

// NewPipedrive creates the Pipedrive adapter.
func NewPipedrive(source RecordSource, opts Options) *Pipedrive {
	return &Pipedrive{Base: newBase(variant{
		provider:    "pipedrive",
		displayName: "Pipedrive",
		tokenPrefix: "pd",
		required:    []string{"apiToken"},
		scopes:      []string{"deals:read", "contacts:read", "leads:read"},
		normalizers: map[canon.Kind]normalizeFunc{
			canon.KindLead:        pipedriveLead,
			canon.KindOpportunity: pipedriveDeal,
			canon.KindContact:     pipedrivePerson,
		},
	}, source, opts)}
}

func pipedriveLead(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("first_name"), r.str("last_name")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	if _, ok := f["fullName"]; !ok {
		f.set("fullName", r.str("title"))
	}
	f.set("company", r.str("organization_name"))
	f.set("email", r.str("email"))
	f.set("phone", r.str("phone"))
	f.set("status", r.str("label"))
	f.set("createdAt", r.instant("add_time"))
	f.set("updatedAt", r.instant("update_time"))
	f.set("lastContactedAt", r.instant("last_activity_date"))
	return id, f.object(), nil
}

func pipedriveDeal(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("name", r.str("title"))
	// Stage names are configured per pipeline; fall back to the stage id.
	stage := r.str("stage_name")
	if stage == nil {
		stage = r.str("stage_id")
	}
	f.set("stage", stage)
	f.set("value", r.num("value"))
	f.set("closeDate", r.instant("expected_close_date"))
	f.set("probability", r.num("probability"))
	f.ref("account", r.str("org_id.value"), r.str("org_id.name"))
	f.ref("owner", r.str("user_id.id"), r.str("user_id.name"))
	f.set("updatedAt", r.instant("update_time"))
	f.set("stageChangedAt", r.instant("stage_change_time"))
	f.set("createdAt", r.instant("add_time"))
	f.set("contactIds", r.ids("person_id.value"))
	return id, f.object(), nil
}

func pipedrivePerson(r record) (string, canon.Object, error) {
	id, err := r.requireID("id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("first_name"), r.str("last_name")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("email", primaryValue(r, "email"))
	f.set("phone", primaryValue(r, "phone"))
	f.set("accountId", r.str("org_id.value"))
	f.set("lastContactedAt", r.instant("last_activity_date"))
	f.set("opportunityIds", r.ids("deal_ids"))
	return id, f.object(), nil
}

// primaryValue reads Pipedrive multi-value fields:
// [{value: "a@x.com", primary: true}, ...] or a plain string.
func primaryValue(r record, key string) canon.Value {
	v, ok := r.get(key)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return r.str(key)
	}
	var first canon.Value
	for _, elem := range list {
		m, ok := asMap(elem)
		if !ok {
			continue
		}
		s := scalarString(m["value"])
		if s == "" {
			continue
		}
		if primary, _ := m["primary"].(bool); primary {
			return canon.String(s)
		}
		if first == nil {
			first = canon.String(s)
		}
	}
	return first
}
