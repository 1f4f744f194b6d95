package derive

import (
	"math"
	"strings"
	"time"

	"github.com/roach88/crmsignal/internal/canon"
)

// Derived field names.
const (
	FieldDaysSinceLastContact = "days_since_last_contact"
	FieldOpenTaskCount        = "open_task_count"
	FieldDaysInStage          = "days_in_stage"
	FieldAmount               = "amount"
	FieldDaysToClose          = "days_to_close"
	FieldViewCount            = "view_count"
	FieldDaysSinceShared      = "days_since_shared"
)

// links lists, per primary kind and related kind, the fields on the related
// entity that may point back at the primary.
var links = map[canon.Kind]map[canon.Kind][]string{
	canon.KindOpportunity: {
		canon.KindContact:    {"opportunityIds"},
		canon.KindEngagement: {"opportunityIds"},
		canon.KindTask:       {"whatId", "opportunityIds"},
		canon.KindDocument:   {"opportunityId"},
	},
	canon.KindLead: {
		canon.KindContact:    {"leadIds"},
		canon.KindEngagement: {"leadIds"},
		canon.KindTask:       {"whoId", "leadIds"},
		canon.KindDocument:   {"leadId"},
	},
}

// relatedTo selects the entities of pool attached to primary, preserving
// pool order. An opportunity's own contactIds also link contacts.
func relatedTo(primary canon.Entity, pool []canon.Entity) []canon.Entity {
	byKind := links[primary.Kind]
	var out []canon.Entity
	for _, e := range pool {
		switch {
		case e.References(primary.ID, byKind[e.Kind]...):
			out = append(out, e)
		case e.Kind == canon.KindContact && primary.References(e.ID, "contactIds"):
			out = append(out, e)
		}
	}
	return out
}

// Fields computes the derived fields of a context. countTasks reports
// whether the provider exposes tasks at all; without them open_task_count
// is left out.
func Fields(primary canon.Entity, related []canon.Entity, now time.Time, countTasks bool) canon.Object {
	derived := canon.Object{}

	if last, ok := lastContact(primary, related); ok {
		derived[FieldDaysSinceLastContact] = canon.Number(daysSince(last, now))
	}
	if countTasks {
		derived[FieldOpenTaskCount] = canon.Number(openTasks(related))
	}
	if primary.Kind == canon.KindOpportunity {
		if opp := opportunityFields(primary, now); len(opp) > 0 {
			derived[string(canon.KindOpportunity)] = opp
		}
	}
	if doc := documentFields(related, now); len(doc) > 0 {
		derived[string(canon.KindDocument)] = doc
	}
	return derived
}

// lastContact is the latest touch on the primary: contacts' lastContactedAt,
// engagements' occurredAt, completed tasks' completedAt and the primary's
// own lastContactedAt. Without any, it falls back to updatedAt then
// createdAt.
func lastContact(primary canon.Entity, related []canon.Entity) (time.Time, bool) {
	var latest time.Time
	found := false
	consider := func(t time.Time, ok bool) {
		if ok && (!found || t.After(latest)) {
			latest, found = t, true
		}
	}

	consider(primary.TimeField("lastContactedAt"))
	for _, e := range related {
		switch e.Kind {
		case canon.KindContact:
			consider(e.TimeField("lastContactedAt"))
		case canon.KindEngagement:
			consider(e.TimeField("occurredAt"))
		case canon.KindTask:
			if completed(e) {
				consider(e.TimeField("completedAt"))
			}
		}
	}
	if found {
		return latest, true
	}
	if t, ok := primary.TimeField("updatedAt"); ok {
		return t, true
	}
	return primary.TimeField("createdAt")
}

var doneStatuses = map[string]bool{"completed": true, "closed": true, "done": true}

func completed(task canon.Entity) bool {
	if _, ok := task.TimeField("completedAt"); ok {
		return true
	}
	status, _ := task.StringField("status")
	return doneStatuses[strings.ToLower(strings.TrimSpace(status))]
}

func openTasks(related []canon.Entity) int {
	n := 0
	for _, e := range related {
		if e.Kind == canon.KindTask && !completed(e) {
			n++
		}
	}
	return n
}

func opportunityFields(opp canon.Entity, now time.Time) canon.Object {
	out := canon.Object{}
	if v, err := opp.Field("value"); err == nil {
		if n, ok := canon.AsNumber(v); ok {
			out[FieldAmount] = canon.Number(n)
		}
	}
	if t, ok := opp.TimeField("stageChangedAt"); ok {
		out[FieldDaysInStage] = canon.Number(daysSince(t, now))
	} else if t, ok := opp.TimeField("updatedAt"); ok {
		out[FieldDaysInStage] = canon.Number(daysSince(t, now))
	}
	if t, ok := opp.TimeField("closeDate"); ok {
		out[FieldDaysToClose] = canon.Number(daysBetween(now, t))
	}
	return out
}

// documentFields describes the most recently shared related document.
func documentFields(related []canon.Entity, now time.Time) canon.Object {
	var (
		latest   canon.Entity
		sharedAt time.Time
		found    bool
	)
	for _, e := range related {
		if e.Kind != canon.KindDocument {
			continue
		}
		t, ok := e.TimeField("sharedAt")
		if !ok {
			continue
		}
		if !found || t.After(sharedAt) {
			latest, sharedAt, found = e, t, true
		}
	}
	if !found {
		return nil
	}
	out := canon.Object{FieldDaysSinceShared: canon.Number(daysSince(sharedAt, now))}
	views := 0.0
	if v, err := latest.Field("viewCount"); err == nil {
		if n, ok := canon.AsNumber(v); ok {
			views = n
		}
	}
	out[FieldViewCount] = canon.Number(views)
	return out
}

// daysSince counts whole days elapsed from t to now, never negative.
func daysSince(t, now time.Time) int {
	return max(0, daysBetween(t, now))
}

// daysBetween counts whole days from a to b, negative when b precedes a.
func daysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}
