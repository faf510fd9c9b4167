package docstore

import (
	"reflect"
	"testing"
)

func TestFlatten_NestedAndDottedAreEquivalent(t *testing.T) {
	nested := Flatten(Selector{"patient": map[string]interface{}{"_id": "p1"}})
	dotted := Flatten(Selector{"patient._id": "p1"})

	if !reflect.DeepEqual(nested, dotted) {
		t.Fatalf("expected %v == %v", nested, dotted)
	}
	if nested["patient._id"] != "p1" {
		t.Errorf("expected patient._id leaf, got %v", nested)
	}
}

func TestExpand(t *testing.T) {
	got := Expand(map[string]interface{}{"patient._id": "p1", "patient.gender": "f", "cid": "c"})
	want := map[string]interface{}{
		"cid": "c",
		"patient": map[string]interface{}{
			"_id":    "p1",
			"gender": "f",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expand() = %v, want %v", got, want)
	}
}

func TestMatches(t *testing.T) {
	doc := Document{
		"_id":  "t1",
		"cid":  "10",
		"size": float64(12),
		"patient": map[string]interface{}{
			"_id":        "p1",
			"doctor_uid": "D1",
		},
	}

	tests := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"empty selector", Selector{}, true},
		{"top level", Selector{"cid": "10"}, true},
		{"top level mismatch", Selector{"cid": "11"}, false},
		{"dotted path", Selector{"patient._id": "p1"}, true},
		{"nested object", Selector{"patient": map[string]interface{}{"_id": "p1"}}, true},
		{"nested partial mismatch", Selector{"patient": map[string]interface{}{"_id": "p1", "doctor_uid": "D2"}}, false},
		{"missing field", Selector{"cured": "cured"}, false},
		{"int against float", Selector{"size": 12}, true},
		{"path through scalar", Selector{"cid.x": "10"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(doc, tt.sel); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProject(t *testing.T) {
	doc := Document{
		"_id":   "t1",
		"_rev":  "1-abc",
		"cid":   "10",
		"cured": "cured",
		"patient": map[string]interface{}{
			"_id":    "p1",
			"birth":  "2000-01-01",
			"gender": "f",
			"name":   "A",
		},
	}

	got := Project(doc, []string{"cid", "patient._id", "patient.gender", "absent"})
	want := Document{
		"cid": "10",
		"patient": map[string]interface{}{
			"_id":    "p1",
			"gender": "f",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Project() = %v, want %v", got, want)
	}

	all := Project(doc, nil)
	if !reflect.DeepEqual(all, doc) {
		t.Errorf("Project(nil) should return whole document")
	}
	all["cid"] = "changed"
	if doc["cid"] != "10" {
		t.Error("Project must not alias the source document")
	}
}

func TestNextRev(t *testing.T) {
	first := NextRev("")
	if first[:2] != "1-" {
		t.Errorf("expected first revision to start with 1-, got %s", first)
	}
	second := NextRev(first)
	if second[:2] != "2-" {
		t.Errorf("expected second revision to start with 2-, got %s", second)
	}
}

func TestNewID_HasNoDashes(t *testing.T) {
	id := NewID()
	if len(id) != 32 {
		t.Errorf("expected 32 characters, got %d (%s)", len(id), id)
	}
	for _, r := range id {
		if r == '-' {
			t.Fatalf("id must not contain dashes: %s", id)
		}
	}
}
