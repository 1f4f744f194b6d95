package adapter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/crmsignal/internal/canon"
)

var errMissingID = errors.New("record has no id")

// record is a decoded vendor record. Accessors take dot-paths
// ("properties.dealname") and return nil when the value is absent, so
// absent vendor fields stay absent in the canonical entity.
type record map[string]any

func (r record) get(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case record:
		return map[string]any(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// id reads an identifier, accepting strings and integral numbers.
func (r record) id(path string) (string, bool) {
	v, ok := r.get(path)
	if !ok {
		return "", false
	}
	s := scalarString(v)
	return s, s != ""
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

func (r record) requireID(path string) (string, error) {
	id, ok := r.id(path)
	if !ok {
		return "", fmt.Errorf("%w (field %s)", errMissingID, path)
	}
	return id, nil
}

func (r record) str(path string) canon.Value {
	v, ok := r.get(path)
	if !ok {
		return nil
	}
	if s := scalarString(v); s != "" {
		return canon.String(s)
	}
	return nil
}

// num reads a number. Numeric strings are accepted; HubSpot returns all
// properties as strings.
func (r record) num(path string) canon.Value {
	v, ok := r.get(path)
	if !ok {
		return nil
	}
	cv, err := canon.FromAny(v)
	if err != nil {
		return nil
	}
	if n, ok := canon.AsNumber(cv); ok {
		return canon.Number(n)
	}
	return nil
}

// instant reads an instant from a date string, a YAML timestamp or epoch
// milliseconds.
func (r record) instant(path string) canon.Value {
	v, ok := r.get(path)
	if !ok {
		return nil
	}
	switch val := v.(type) {
	case time.Time:
		return canon.NewTime(val)
	case string:
		if t, ok := canon.ParseTime(val); ok {
			return canon.NewTime(t)
		}
		if ms, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return canon.NewTime(time.UnixMilli(ms))
		}
	case int:
		return canon.NewTime(time.UnixMilli(int64(val)))
	case int64:
		return canon.NewTime(time.UnixMilli(val))
	case float64:
		return canon.NewTime(time.UnixMilli(int64(val)))
	}
	return nil
}

// ids reads a list of identifiers from an array of scalars or of objects
// carrying an "id" key.
func (r record) ids(path string) canon.Value {
	v, ok := r.get(path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		if s := scalarString(v); s != "" {
			return canon.Array{canon.String(s)}
		}
		return nil
	}
	out := make(canon.Array, 0, len(list))
	for _, elem := range list {
		if m, ok := asMap(elem); ok {
			if s := scalarString(m["id"]); s != "" {
				out = append(out, canon.String(s))
			}
			continue
		}
		if s := scalarString(elem); s != "" {
			out = append(out, canon.String(s))
		}
	}
	return out
}

// fields accumulates canonical fields, skipping absent values.
type fields canon.Object

func (f fields) set(key string, v canon.Value) {
	if v == nil {
		return
	}
	if obj, ok := v.(canon.Object); ok && len(obj) == 0 {
		return
	}
	f[key] = v
}

func (f fields) ref(key string, id, name canon.Value) {
	obj := canon.Object{}
	if id != nil {
		obj["id"] = id
	}
	if name != nil {
		obj["name"] = name
	}
	f.set(key, obj)
}

func (f fields) fullName(first, last canon.Value) {
	var parts []string
	for _, v := range []canon.Value{first, last} {
		if s, ok := v.(canon.String); ok && s != "" {
			parts = append(parts, string(s))
		}
	}
	if len(parts) > 0 {
		f["fullName"] = canon.String(strings.Join(parts, " "))
	}
}

func (f fields) object() canon.Object {
	return canon.Object(f)
}
