package model

import (
	"errors"
	"fmt"
)

// Decoding errors.
var (
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidField   = errors.New("invalid field type")
	ErrInvalidPayload = errors.New("invalid value change payload")
)

func fieldError(sentinel error, key string, want string, got any) error {
	if sentinel == ErrMissingField {
		return fmt.Errorf("%w: %q", sentinel, key)
	}
	return fmt.Errorf("%w: %q is %T, want %s", sentinel, key, got, want)
}

// requireString returns m[key], which must be a non-empty string.
func requireString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fieldError(ErrMissingField, key, "", nil)
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(ErrInvalidField, key, "string", v)
	}
	if s == "" {
		return "", fieldError(ErrMissingField, key, "", nil)
	}
	return s, nil
}

// optionalString returns m[key] or "" when the key is absent or null.
func optionalString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(ErrInvalidField, key, "string", v)
	}
	return s, nil
}

func optionalStringPtr(m map[string]any, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fieldError(ErrInvalidField, key, "string", v)
	}
	return &s, nil
}

func optionalBool(m map[string]any, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fieldError(ErrInvalidField, key, "bool", v)
	}
	return b, nil
}

// optionalInt accepts any JSON number without a fractional part.
func optionalInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, fieldError(ErrInvalidField, key, "integer", v)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	}
	return 0, fieldError(ErrInvalidField, key, "integer", v)
}

func optionalObject(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	o, ok := v.(map[string]any)
	if !ok {
		return nil, fieldError(ErrInvalidField, key, "object", v)
	}
	return o, nil
}

func optionalStrings(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fieldError(ErrInvalidField, key, "array of strings", v)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fieldError(ErrInvalidField, key, "array", v)
}
