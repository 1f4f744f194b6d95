package canon

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a canonical entity type.
type Kind string

const (
	KindLead        Kind = "lead"
	KindOpportunity Kind = "opportunity"
	KindContact     Kind = "contact"
	KindTask        Kind = "task"
	KindEngagement  Kind = "engagement"
	KindDocument    Kind = "document"
)

// Kinds lists every known kind in schema order.
var Kinds = []Kind{KindLead, KindOpportunity, KindContact, KindTask, KindEngagement, KindDocument}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// IsKind reports whether s names a known kind.
func IsKind(s string) bool {
	_, err := ParseKind(s)
	return err == nil && s == strings.ToLower(s)
}

// Source is the immutable provenance of a normalized entity.
type Source struct {
	Type       string `json:"type"`       // provider, e.g. "salesforce"
	EntityType Kind   `json:"entityType"` // canonical kind
	ID         string `json:"id"`         // vendor record id
}

// Object renders the source as a field object.
func (s Source) Object() Object {
	return Object{
		"type":       String(s.Type),
		"entityType": String(s.EntityType),
		"id":         String(s.ID),
	}
}

// Entity is a vendor-agnostic normalized CRM record.
// Fields never contains "id" or "source"; those live on the struct.
type Entity struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Fields Object `json:"fields"`
	Source Source `json:"source"`
}

// NewEntity builds an entity, stripping reserved keys from fields.
func NewEntity(kind Kind, id string, fields Object, src Source) Entity {
	f := fields.Clone()
	if f == nil {
		f = Object{}
	}
	delete(f, "id")
	delete(f, "source")
	return Entity{ID: id, Kind: kind, Fields: f, Source: src}
}

// Object returns a fresh object with fields, id and source. Callers may
// mutate the result without affecting the entity.
func (e Entity) Object() Object {
	obj := e.Fields.Clone()
	if obj == nil {
		obj = Object{}
	}
	obj["id"] = String(e.ID)
	obj["source"] = e.Source.Object()
	return obj
}

// Field resolves a dot-path inside the entity's own fields.
func (e Entity) Field(path string) (Value, error) {
	return Resolve(e.Object(), path)
}

// TimeField returns a time-valued field, or ok=false when it is absent or
// not a date.
func (e Entity) TimeField(path string) (time.Time, bool) {
	v, err := e.Field(path)
	if err != nil {
		return time.Time{}, false
	}
	return AsTime(v)
}

// StringField returns a string-valued field.
func (e Entity) StringField(path string) (string, bool) {
	v, err := e.Field(path)
	if err != nil {
		return "", false
	}
	return AsString(v)
}

// References reports whether the entity points at id through any of the
// given reference fields. A field may hold a string or an array of strings.
func (e Entity) References(id string, fields ...string) bool {
	for _, f := range fields {
		v, err := e.Field(f)
		if err != nil {
			continue
		}
		switch val := v.(type) {
		case String:
			if string(val) == id {
				return true
			}
		case Array:
			for _, elem := range val {
				if s, ok := elem.(String); ok && string(s) == id {
					return true
				}
			}
		}
	}
	return false
}

// Connection is a user's link to one CRM.
type Connection struct {
	ID        string            `json:"id" yaml:"id"`
	UserID    string            `json:"userId" yaml:"user_id"`
	Provider  string            `json:"provider" yaml:"provider"`
	Token     string            `json:"-" yaml:"token"`
	Settings  map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
	CreatedAt time.Time         `json:"createdAt" yaml:"created_at"`
}

// Validate checks the descriptor fields the engine depends on.
func (c Connection) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("connection id is required")
	}
	if strings.TrimSpace(c.Provider) == "" {
		return fmt.Errorf("connection %s: provider is required", c.ID)
	}
	return nil
}

// Object exposes the connection to rule conditions. The token is never
// included.
func (c Connection) Object() Object {
	settings := make(Object, len(c.Settings))
	for k, v := range c.Settings {
		settings[k] = String(v)
	}
	return Object{
		"id":       String(c.ID),
		"provider": String(strings.ToLower(c.Provider)),
		"settings": settings,
	}
}
