package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// VQT is a value with its quality flag and timestamp.
type VQT struct {
	Value     any    `json:"value"`
	Quality   string `json:"quality,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// VQTFromMap builds a VQT from a decoded JSON object. All keys are optional.
func VQTFromMap(m map[string]any) (VQT, error) {
	var v VQT
	var err error
	v.Value = m["value"]
	if v.Quality, err = optionalString(m, "quality"); err != nil {
		return VQT{}, err
	}
	if v.Timestamp, err = optionalString(m, "timestamp"); err != nil {
		return VQT{}, err
	}
	return v, nil
}

// Time parses the timestamp as RFC 3339.
func (v VQT) Time() (time.Time, error) {
	if v.Timestamp == "" {
		return time.Time{}, errors.New("vqt has no timestamp")
	}
	return time.Parse(time.RFC3339Nano, v.Timestamp)
}

// LastKnownValue is the value of an element as returned by a value or
// history read. Children holds the values of child elements when the read
// used a max depth greater than one.
type LastKnownValue struct {
	ElementID string
	Data      []VQT
	Children  map[string]LastKnownValue
}

// LastKnownValueFromMap builds a LastKnownValue from one entry of a value
// response. Keys other than "data" whose value is an object are children.
func LastKnownValueFromMap(elementID string, m map[string]any) (LastKnownValue, error) {
	lkv := LastKnownValue{ElementID: elementID}
	for key, raw := range m {
		if key == "data" {
			data, err := vqtsFromAny(elementID, raw)
			if err != nil {
				return LastKnownValue{}, err
			}
			lkv.Data = data
			continue
		}
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		c, err := LastKnownValueFromMap(key, child)
		if err != nil {
			return LastKnownValue{}, err
		}
		if lkv.Children == nil {
			lkv.Children = make(map[string]LastKnownValue)
		}
		lkv.Children[key] = c
	}
	return lkv, nil
}

// Latest returns the most recent VQT.
func (l LastKnownValue) Latest() (VQT, bool) {
	if len(l.Data) == 0 {
		return VQT{}, false
	}
	return l.Data[len(l.Data)-1], true
}

func vqtsFromAny(elementID string, raw any) ([]VQT, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: data is %T, want array", ErrInvalidField, elementID, raw)
	}
	out := make([]VQT, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s: vqt is %T, want object", ErrInvalidField, elementID, item)
		}
		v, err := VQTFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", elementID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ValueChange is one element's update from a subscription stream.
//
// Data is in the order the server sent it, oldest first. Children appear in
// frame order. A ValueChange is not modified after decoding.
type ValueChange struct {
	ElementID string
	Data      []VQT
	Children  []ValueChange
}

// Latest returns the most recent VQT.
func (c ValueChange) Latest() (VQT, bool) {
	if len(c.Data) == 0 {
		return VQT{}, false
	}
	return c.Data[len(c.Data)-1], true
}

// ParseValueChanges decodes a stream data payload. The payload is either an
// object mapping elementId to a value entry, or an array of such objects.
// An empty object yields no changes. Any structural error rejects the whole
// payload.
func ParseValueChanges(data []byte) ([]ValueChange, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var changes []ValueChange
	switch tok {
	case json.Delim('{'):
		changes, err = decodeChangeObject(dec)
		if err != nil {
			return nil, err
		}
	case json.Delim('['):
		for dec.More() {
			if err := expectDelim(dec, '{'); err != nil {
				return nil, err
			}
			batch, err := decodeChangeObject(dec)
			if err != nil {
				return nil, err
			}
			changes = append(changes, batch...)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: payload must be an object or array", ErrInvalidPayload)
	}

	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload", ErrInvalidPayload)
	}
	return changes, nil
}

// decodeChangeObject reads members up to and including the closing brace.
// The opening brace must already be consumed.
func decodeChangeObject(dec *json.Decoder) ([]ValueChange, error) {
	var out []ValueChange
	for dec.More() {
		id, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, id, err)
		}
		vc, err := valueChangeFromRaw(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, vc)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func valueChangeFromRaw(id string, raw json.RawMessage) (ValueChange, error) {
	if !isObject(raw) {
		return ValueChange{}, fmt.Errorf("%w: %s: entry is not an object", ErrInvalidPayload, id)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return ValueChange{}, err
	}

	vc := ValueChange{ElementID: id}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return ValueChange{}, err
		}
		var member json.RawMessage
		if err := dec.Decode(&member); err != nil {
			return ValueChange{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidPayload, id, key, err)
		}
		if key == "data" {
			var items any
			if err := json.Unmarshal(member, &items); err != nil {
				return ValueChange{}, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, id, err)
			}
			data, err := vqtsFromAny(id, items)
			if err != nil {
				return ValueChange{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			vc.Data = data
			continue
		}
		// Non-object members are metadata, not child elements.
		if !isObject(member) {
			continue
		}
		child, err := valueChangeFromRaw(key, member)
		if err != nil {
			return ValueChange{}, err
		}
		vc.Children = append(vc.Children, child)
	}
	return vc, nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, got %v", ErrInvalidPayload, tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrInvalidPayload, want, tok)
	}
	return nil
}

func isObject(raw []byte) bool {
	raw = bytes.TrimLeft(raw, " \t\r\n")
	return len(raw) > 0 && raw[0] == '{'
}
