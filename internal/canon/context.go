package canon

// Context is the unit a rule is evaluated against: one primary entity, the
// related entities used to compute derived fields, the owning connection,
// and the derived fields themselves.
//
// A Context is built once (see package derive) and is read-only afterwards.
// Fields caches the merged mapping; use NewContext so the cache is filled.
type Context struct {
	Primary    Entity
	Related    []Entity
	Connection Connection
	Derived    Object

	fields Object
}

// NewContext assembles a context and materializes its field mapping.
func NewContext(primary Entity, related []Entity, conn Connection, derived Object) Context {
	c := Context{
		Primary:    primary,
		Related:    related,
		Connection: conn,
		Derived:    derived.Clone(),
	}
	c.fields = c.buildFields()
	return c
}

// Fields returns the merged field mapping rule conditions resolve against:
//
//	{<primary kind>: {...primary fields, id, source}, connection: {...}}
//
// deep-merged with Derived. Derived values win on collision.
// The returned object must not be mutated.
func (c Context) Fields() Object {
	if c.fields != nil {
		return c.fields
	}
	return c.buildFields()
}

func (c Context) buildFields() Object {
	base := Object{
		string(c.Primary.Kind): c.Primary.Object(),
		"connection":           c.Connection.Object(),
	}
	return Merge(base, c.Derived)
}

// RelatedOfKind returns related entities of the given kind in input order.
func (c Context) RelatedOfKind(kind Kind) []Entity {
	var out []Entity
	for _, e := range c.Related {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Ref returns the reference a signal produced from this context carries.
func (c Context) Ref() EntityRef {
	return EntityRef{
		Kind:         c.Primary.Kind,
		ID:           c.Primary.ID,
		ConnectionID: c.Connection.ID,
		Provider:     c.Connection.Provider,
	}
}
