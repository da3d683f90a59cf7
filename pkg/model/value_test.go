package model

import (
	"errors"
	"testing"
)

func TestVQTTime(t *testing.T) {
	v := VQT{Value: 1.0, Timestamp: "2025-03-01T12:00:00.5Z"}
	ts, err := v.Time()
	if err != nil {
		t.Fatalf("Time failed: %v", err)
	}
	if ts.Nanosecond() != 500000000 {
		t.Errorf("expected half a second, got %d ns", ts.Nanosecond())
	}

	if _, err := (VQT{}).Time(); err == nil {
		t.Error("expected error for missing timestamp")
	}
}

func TestLastKnownValueFromMap(t *testing.T) {
	lkv, err := LastKnownValueFromMap("pump-1", map[string]any{
		"data": []any{
			map[string]any{"value": 72.5, "quality": "Good", "timestamp": "2025-01-01T00:00:00Z"},
		},
		"pump-1/temp": map[string]any{
			"data": []any{map[string]any{"value": 20.0}},
		},
		"isComposition": true,
	})
	if err != nil {
		t.Fatalf("LastKnownValueFromMap failed: %v", err)
	}

	latest, ok := lkv.Latest()
	if !ok || latest.Value != 72.5 || latest.Quality != "Good" {
		t.Errorf("unexpected latest value %+v", latest)
	}
	if len(lkv.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(lkv.Children))
	}
	child := lkv.Children["pump-1/temp"]
	if child.ElementID != "pump-1/temp" || len(child.Data) != 1 {
		t.Errorf("unexpected child %+v", child)
	}

	_, err = LastKnownValueFromMap("x", map[string]any{"data": "bad"})
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("expected ErrInvalidField, got %v", err)
	}
}

func TestParseValueChanges(t *testing.T) {
	t.Run("SingleObjectKeepsOrder", func(t *testing.T) {
		payload := `{"zeta":{"data":[{"value":1}]},"alpha":{"data":[{"value":2}]},"mid":{"data":[]}}`
		changes, err := ParseValueChanges([]byte(payload))
		if err != nil {
			t.Fatalf("ParseValueChanges failed: %v", err)
		}
		want := []string{"zeta", "alpha", "mid"}
		if len(changes) != len(want) {
			t.Fatalf("expected %d changes, got %d", len(want), len(changes))
		}
		for i, id := range want {
			if changes[i].ElementID != id {
				t.Errorf("change %d: expected %s, got %s", i, id, changes[i].ElementID)
			}
		}
	})

	t.Run("Array", func(t *testing.T) {
		payload := `[{"e1":{"data":[{"value":1}]}},{"e2":{"data":[{"value":2}]}}]`
		changes, err := ParseValueChanges([]byte(payload))
		if err != nil {
			t.Fatalf("ParseValueChanges failed: %v", err)
		}
		if len(changes) != 2 || changes[0].ElementID != "e1" || changes[1].ElementID != "e2" {
			t.Errorf("unexpected changes %+v", changes)
		}
	})

	t.Run("DataKeepsServerOrder", func(t *testing.T) {
		payload := `{"e1":{"data":[{"value":1,"timestamp":"t1"},{"value":2,"timestamp":"t2"},{"value":3,"timestamp":"t3"}]}}`
		changes, err := ParseValueChanges([]byte(payload))
		if err != nil {
			t.Fatalf("ParseValueChanges failed: %v", err)
		}
		data := changes[0].Data
		if len(data) != 3 || data[0].Timestamp != "t1" || data[2].Timestamp != "t3" {
			t.Errorf("unexpected data order %+v", data)
		}
		latest, _ := changes[0].Latest()
		if latest.Value != 3.0 {
			t.Errorf("expected latest value 3, got %v", latest.Value)
		}
	})

	t.Run("Children", func(t *testing.T) {
		payload := `{"pump":{"data":[{"value":"on"}],"pump/b":{"data":[{"value":2}]},"pump/a":{"data":[{"value":1}]},"note":"x"}}`
		changes, err := ParseValueChanges([]byte(payload))
		if err != nil {
			t.Fatalf("ParseValueChanges failed: %v", err)
		}
		children := changes[0].Children
		if len(children) != 2 {
			t.Fatalf("expected 2 children, got %d", len(children))
		}
		if children[0].ElementID != "pump/b" || children[1].ElementID != "pump/a" {
			t.Errorf("children out of frame order: %s, %s", children[0].ElementID, children[1].ElementID)
		}
	})

	t.Run("EmptyObject", func(t *testing.T) {
		changes, err := ParseValueChanges([]byte(`{}`))
		if err != nil {
			t.Fatalf("ParseValueChanges failed: %v", err)
		}
		if len(changes) != 0 {
			t.Errorf("expected no changes, got %d", len(changes))
		}
	})

	malformed := []struct {
		name    string
		payload string
	}{
		{"NotJSON", `{"e1":`},
		{"Scalar", `42`},
		{"EntryNotObject", `{"e1":[1,2]}`},
		{"DataNotArray", `{"e1":{"data":{"value":1}}}`},
		{"VQTNotObject", `{"e1":{"data":[1]}}`},
		{"ArrayOfScalars", `["e1"]`},
		{"TrailingData", `{"e1":{"data":[]}} {}`},
		{"BadQuality", `{"e1":{"data":[{"value":1,"quality":5}]}}`},
		{"BadChild", `{"e1":{"e1/c":{"data":"x"}}}`},
		{"Empty", ``},
	}
	for _, tt := range malformed {
		t.Run("Malformed"+tt.name, func(t *testing.T) {
			changes, err := ParseValueChanges([]byte(tt.payload))
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("expected ErrInvalidPayload, got %v", err)
			}
			if changes != nil {
				t.Errorf("expected no partial result, got %+v", changes)
			}
		})
	}
}
