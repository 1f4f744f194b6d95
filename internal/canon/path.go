package canon

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrPathNotFound is matched (via errors.Is) by every PathError caused by
// a missing key or index.
var ErrPathNotFound = errors.New("path not found")

// PathError reports why a dot-path could not be resolved.
type PathError struct {
	// Path is the full dot-path that was requested.
	Path string

	// Segment is the segment at which resolution stopped.
	Segment string

	// Missing is true when the segment does not exist. False means the
	// path tried to descend into a scalar or used a malformed index.
	Missing bool

	// Found is the type of the value at the failing step.
	Found string
}

func (e *PathError) Error() string {
	if e.Missing {
		return fmt.Sprintf("field %q: segment %q not found", e.Path, e.Segment)
	}
	return fmt.Sprintf("field %q: cannot resolve segment %q in %s", e.Path, e.Segment, e.Found)
}

// Unwrap returns ErrPathNotFound for missing segments.
func (e *PathError) Unwrap() error {
	if e.Missing {
		return ErrPathNotFound
	}
	return nil
}

// SplitPath splits a dot-path into segments, rejecting empty segments.
func SplitPath(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty field path")
	}
	segs := strings.Split(path, ".")
	for i, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("field path %q has empty segment at position %d", path, i)
		}
	}
	return segs, nil
}

// Resolve walks a dot-path through root. Objects are traversed by key and
// arrays by zero-based index ("contacts.0.email"). A present Null is
// returned as Null, never as an error; only absence is an error.
func Resolve(root Object, path string) (Value, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	var cur Value = root
	for _, seg := range segs {
		switch node := cur.(type) {
		case Object:
			next, ok := node[seg]
			if !ok {
				return nil, &PathError{Path: path, Segment: seg, Missing: true, Found: "object"}
			}
			cur = next
		case Array:
			idx, convErr := strconv.Atoi(seg)
			if convErr != nil {
				return nil, &PathError{Path: path, Segment: seg, Found: "array"}
			}
			if idx < 0 || idx >= len(node) {
				return nil, &PathError{Path: path, Segment: seg, Missing: true, Found: "array"}
			}
			cur = node[idx]
		default:
			return nil, &PathError{Path: path, Segment: seg, Found: TypeName(cur)}
		}
	}
	return cur, nil
}

// SetPath returns a copy of root with value stored at path, creating
// intermediate objects as needed. Existing scalars on the way are replaced.
func SetPath(root Object, path string, value Value) (Object, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	overlay := Object{}
	node := overlay
	for _, seg := range segs[:len(segs)-1] {
		child := Object{}
		node[seg] = child
		node = child
	}
	node[segs[len(segs)-1]] = value
	return Merge(root, overlay), nil
}
