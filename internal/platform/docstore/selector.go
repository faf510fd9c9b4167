package docstore

import (
	"reflect"
	"sort"
	"strings"
)

// Flatten rewrites nested selector objects into dotted leaf paths.
func Flatten(sel Selector) map[string]interface{} {
	out := make(map[string]interface{}, len(sel))
	flattenInto(out, "", map[string]interface{}(sel))
	return out
}

func flattenInto(out map[string]interface{}, prefix string, m map[string]interface{}) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := asMap(v); ok && len(nested) > 0 {
			flattenInto(out, path, nested)
			continue
		}
		out[path] = v
	}
}

// Expand is the inverse of Flatten: dotted paths become nested objects.
func Expand(flat map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for _, path := range sortedKeys(flat) {
		setPath(out, path, flat[path])
	}
	return out
}

// Matches reports whether every selector leaf equals the document value at
// the same path. An empty selector matches everything.
func Matches(doc Document, sel Selector) bool {
	for path, want := range Flatten(sel) {
		got, ok := lookup(map[string]interface{}(doc), path)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// Project keeps only the listed dotted paths. No fields means the whole
// document.
func Project(doc Document, fields []string) Document {
	if len(fields) == 0 {
		return doc.Clone()
	}
	out := Document{}
	for _, f := range fields {
		if v, ok := lookup(map[string]interface{}(doc), f); ok {
			setPath(out, f, cloneValue(v))
		}
	}
	return out
}

func lookup(m map[string]interface{}, path string) (interface{}, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := m[head]
	if !ok {
		return nil, false
	}
	if !nested {
		return v, true
	}
	child, ok := asMap(v)
	if !ok {
		return nil, false
	}
	return lookup(child, rest)
}

func setPath(m map[string]interface{}, path string, v interface{}) {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		m[head] = v
		return
	}
	child, ok := asMap(m[head])
	if !ok {
		child = make(map[string]interface{})
		m[head] = child
	}
	setPath(child, rest, v)
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Document:
		return map[string]interface{}(t), true
	case Selector:
		return map[string]interface{}(t), true
	default:
		return nil, false
	}
}

func cloneValue(v interface{}) interface{} {
	if m, ok := asMap(v); ok {
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[k] = cloneValue(val)
		}
		return out
	}
	if s, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(s))
		for i, val := range s {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}

func valuesEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
