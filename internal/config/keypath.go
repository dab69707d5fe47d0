package config

import (
	"reflect"
	"strings"
)

// blockedKeys never appear in a config path.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dotted key such as "gateway.auth.mode" into
// segments. Empty and blocked segments are rejected.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		switch {
		case p == "":
			return nil, &ConfigError{Message: "config path contains empty segment"}
		case blockedKeys[p]:
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// KnownPath reports whether path names a field of Config or a section
// containing fields, using the yaml keys.
func KnownPath(path []string) bool {
	t := reflect.TypeFor[Config]()
	for _, key := range path {
		if t.Kind() != reflect.Struct {
			return false
		}
		f, ok := fieldByYAMLKey(t, key)
		if !ok {
			return false
		}
		t = f.Type
	}
	return true
}

func fieldByYAMLKey(t reflect.Type, key string) (reflect.StructField, bool) {
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == key {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

// GetValueAtPath returns the value at path in a decoded YAML document.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	parent, ok := walk(root, path, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// SetValueAtPath stores value at path, creating or replacing intermediate
// sections as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	parent, _ := walk(root, path, true)
	parent[path[len(path)-1]] = value
}

// UnsetValueAtPath deletes the value at path and reports whether it was
// present.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	parent, ok := walk(root, path, false)
	if !ok {
		return false
	}
	last := path[len(path)-1]
	if _, ok := parent[last]; !ok {
		return false
	}
	delete(parent, last)
	return true
}

// walk returns the map holding the last segment of path. With create set,
// missing or non-map sections are replaced by empty maps.
func walk(root map[string]any, path []string, create bool) (map[string]any, bool) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			if !create {
				return nil, false
			}
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	return current, true
}
