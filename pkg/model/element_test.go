package model

import (
	"errors"
	"testing"
)

func TestNamespaceFromMap(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		ns, err := NamespaceFromMap(map[string]any{
			"uri":         "http://i3x.org/test",
			"displayName": "Test",
		})
		if err != nil {
			t.Fatalf("NamespaceFromMap failed: %v", err)
		}
		if ns.URI != "http://i3x.org/test" {
			t.Errorf("expected uri http://i3x.org/test, got %s", ns.URI)
		}
		if ns.DisplayName != "Test" {
			t.Errorf("expected display name Test, got %s", ns.DisplayName)
		}
	})

	t.Run("DisplayNameOptional", func(t *testing.T) {
		ns, err := NamespaceFromMap(map[string]any{"uri": "urn:x"})
		if err != nil {
			t.Fatalf("NamespaceFromMap failed: %v", err)
		}
		if ns.DisplayName != "" {
			t.Errorf("expected empty display name, got %q", ns.DisplayName)
		}
	})

	t.Run("MissingURI", func(t *testing.T) {
		_, err := NamespaceFromMap(map[string]any{"displayName": "Test"})
		if !errors.Is(err, ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}
	})

	t.Run("WrongType", func(t *testing.T) {
		_, err := NamespaceFromMap(map[string]any{"uri": 42.0})
		if !errors.Is(err, ErrInvalidField) {
			t.Errorf("expected ErrInvalidField, got %v", err)
		}
	})
}

func TestObjectTypeFromMap(t *testing.T) {
	ot, err := ObjectTypeFromMap(map[string]any{
		"elementId":    "pump-type",
		"displayName":  "Pump",
		"namespaceUri": "urn:plant",
		"schema":       map[string]any{"type": "object"},
	})
	if err != nil {
		t.Fatalf("ObjectTypeFromMap failed: %v", err)
	}
	if ot.ElementID != "pump-type" || ot.NamespaceURI != "urn:plant" {
		t.Errorf("unexpected object type %+v", ot)
	}
	if ot.Schema["type"] != "object" {
		t.Errorf("expected schema to be kept, got %v", ot.Schema)
	}

	_, err = ObjectTypeFromMap(map[string]any{"elementId": "x", "schema": "nope"})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for string schema, got %v", err)
	}
}

func TestRelationshipTypeFromMap(t *testing.T) {
	rt, err := RelationshipTypeFromMap(map[string]any{
		"elementId": "HasChild",
		"reverseOf": "HasParent",
	})
	if err != nil {
		t.Fatalf("RelationshipTypeFromMap failed: %v", err)
	}
	if rt.ReverseOf != "HasParent" {
		t.Errorf("expected reverseOf HasParent, got %s", rt.ReverseOf)
	}

	if _, err := RelationshipTypeFromMap(map[string]any{}); !errors.Is(err, ErrMissingField) {
		t.Errorf("expected ErrMissingField, got %v", err)
	}
}

func TestObjectInstanceFromMap(t *testing.T) {
	t.Run("WithParent", func(t *testing.T) {
		obj, err := ObjectInstanceFromMap(map[string]any{
			"elementId":     "pump-1/temp",
			"typeId":        "sensor",
			"parentId":      "pump-1",
			"isComposition": true,
		})
		if err != nil {
			t.Fatalf("ObjectInstanceFromMap failed: %v", err)
		}
		parent, ok := obj.Parent()
		if !ok || parent != "pump-1" {
			t.Errorf("expected parent pump-1, got %q (set=%v)", parent, ok)
		}
		if !obj.IsComposition {
			t.Error("expected isComposition=true")
		}
	})

	t.Run("NullParent", func(t *testing.T) {
		obj, err := ObjectInstanceFromMap(map[string]any{
			"elementId": "pump-1",
			"parentId":  nil,
		})
		if err != nil {
			t.Fatalf("ObjectInstanceFromMap failed: %v", err)
		}
		if _, ok := obj.Parent(); ok {
			t.Error("expected no parent")
		}
	})

	t.Run("BadComposition", func(t *testing.T) {
		_, err := ObjectInstanceFromMap(map[string]any{
			"elementId":     "pump-1",
			"isComposition": "yes",
		})
		if !errors.Is(err, ErrInvalidField) {
			t.Errorf("expected ErrInvalidField, got %v", err)
		}
	})
}

func TestSubscriptionInfoFromMap(t *testing.T) {
	info, err := SubscriptionInfoFromMap(map[string]any{
		"subscriptionId": "sub-1",
		"created":        "2025-01-01T00:00:00Z",
		"isStreaming":    true,
		"queuedUpdates":  3.0,
		"objects":        []any{"e1", "e2"},
	})
	if err != nil {
		t.Fatalf("SubscriptionInfoFromMap failed: %v", err)
	}
	if info.QueuedUpdates != 3 {
		t.Errorf("expected 3 queued updates, got %d", info.QueuedUpdates)
	}
	if len(info.Objects) != 2 || info.Objects[1] != "e2" {
		t.Errorf("unexpected objects %v", info.Objects)
	}

	_, err = SubscriptionInfoFromMap(map[string]any{"subscriptionId": "s", "queuedUpdates": 1.5})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField for fractional count, got %v", err)
	}
}

func TestDeleteResultFromMap(t *testing.T) {
	res, err := DeleteResultFromMap(map[string]any{
		"message":      "ok",
		"unsubscribed": []any{"sub-1"},
		"not_found":    []any{},
	})
	if err != nil {
		t.Fatalf("DeleteResultFromMap failed: %v", err)
	}
	if len(res.Unsubscribed) != 1 || res.Unsubscribed[0] != "sub-1" {
		t.Errorf("unexpected unsubscribed %v", res.Unsubscribed)
	}
	if len(res.NotFound) != 0 {
		t.Errorf("expected no not_found entries, got %v", res.NotFound)
	}
}

func TestUpdateResultFromMap(t *testing.T) {
	res, err := UpdateResultFromMap("temp", map[string]any{"success": false, "message": "read-only"})
	if err != nil {
		t.Fatalf("UpdateResultFromMap failed: %v", err)
	}
	if res.Success {
		t.Error("expected success=false")
	}
	if res.ElementID != "temp" || res.Message != "read-only" {
		t.Errorf("unexpected result %+v", res)
	}

	res, err = UpdateResultFromMap("temp", map[string]any{})
	if err != nil {
		t.Fatalf("UpdateResultFromMap failed: %v", err)
	}
	if !res.Success {
		t.Error("expected success when the server omits the flag")
	}
}
