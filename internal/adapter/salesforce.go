package adapter

import (
	"github.com/roach88/crmsignal/internal/canon"
)

// Salesforce normalizes Salesforce REST records (PascalCase fields).
type Salesforce struct {
	*Base
}

// NewSalesforce creates the Salesforce adapter.
func NewSalesforce(source RecordSource, opts Options) *Salesforce {
	return &Salesforce{Base: newBase(variant{
		provider:    "salesforce",
		displayName: "Salesforce",
		tokenPrefix: "sf",
		required:    []string{"clientId", "clientSecret", "refreshToken"},
		scopes:      []string{"read", "write", "api"},
		normalizers: map[canon.Kind]normalizeFunc{
			canon.KindLead:        salesforceLead,
			canon.KindOpportunity: salesforceOpportunity,
			canon.KindContact:     salesforceContact,
			canon.KindTask:        salesforceTask,
			canon.KindDocument:    salesforceDocument,
		},
	}, source, opts)}
}

func salesforceLead(r record) (string, canon.Object, error) {
	id, err := r.requireID("Id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("FirstName"), r.str("LastName")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("company", r.str("Company"))
	f.set("email", r.str("Email"))
	f.set("phone", r.str("Phone"))
	f.set("status", r.str("Status"))
	f.set("createdAt", r.instant("CreatedDate"))
	f.set("updatedAt", r.instant("LastModifiedDate"))
	f.set("lastContactedAt", r.instant("LastActivityDate"))
	return id, f.object(), nil
}

func salesforceOpportunity(r record) (string, canon.Object, error) {
	id, err := r.requireID("Id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("name", r.str("Name"))
	f.set("stage", r.str("StageName"))
	f.set("value", r.num("Amount"))
	f.set("closeDate", r.instant("CloseDate"))
	f.set("probability", r.num("Probability"))
	f.ref("account", r.str("AccountId"), r.str("AccountName"))
	f.ref("owner", r.str("OwnerId"), r.str("OwnerName"))
	f.set("updatedAt", r.instant("LastModifiedDate"))
	f.set("stageChangedAt", r.instant("LastStageChangeDate"))
	f.set("createdAt", r.instant("CreatedDate"))
	f.set("contactIds", r.ids("ContactIds"))
	return id, f.object(), nil
}

func salesforceContact(r record) (string, canon.Object, error) {
	id, err := r.requireID("Id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	first, last := r.str("FirstName"), r.str("LastName")
	f.set("firstName", first)
	f.set("lastName", last)
	f.fullName(first, last)
	f.set("email", r.str("Email"))
	f.set("phone", r.str("Phone"))
	f.set("accountId", r.str("AccountId"))
	f.set("lastContactedAt", r.instant("LastActivityDate"))
	f.set("opportunityIds", r.ids("OpportunityIds"))
	f.set("leadIds", r.ids("LeadIds"))
	return id, f.object(), nil
}

func salesforceTask(r record) (string, canon.Object, error) {
	id, err := r.requireID("Id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("subject", r.str("Subject"))
	f.set("status", r.str("Status"))
	f.set("dueDate", r.instant("ActivityDate"))
	f.set("whatId", r.str("WhatId"))
	f.set("whoId", r.str("WhoId"))
	f.set("completedAt", r.instant("CompletedDateTime"))
	return id, f.object(), nil
}

func salesforceDocument(r record) (string, canon.Object, error) {
	id, err := r.requireID("Id")
	if err != nil {
		return "", nil, err
	}
	f := fields{}
	f.set("name", r.str("Title"))
	f.set("opportunityId", r.str("OpportunityId"))
	f.set("leadId", r.str("LeadId"))
	f.set("sharedAt", r.instant("SharedDate"))
	f.set("viewCount", r.num("ViewCount"))
	return id, f.object(), nil
}
