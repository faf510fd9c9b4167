package treatment

import "testing"

func TestCureStatus_Valid(t *testing.T) {
	for _, s := range CureStatuses {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	for _, s := range []CureStatus{"", "Cured", "healed", "treatment"} {
		if s.Valid() {
			t.Errorf("%q should be invalid", s)
		}
	}
}

func TestCureStatusList(t *testing.T) {
	want := "cured, in treatment, incurable, no return"
	if got := CureStatusList(); got != want {
		t.Errorf("CureStatusList() = %q, want %q", got, want)
	}
}

func TestObjectKeyRoundTrip(t *testing.T) {
	key := ObjectKey("4f2a9c", "D1")
	if key != "4f2a9c-D1" {
		t.Fatalf("unexpected key %q", key)
	}
	if got := PatientIDFromKey(key); got != "4f2a9c" {
		t.Errorf("PatientIDFromKey() = %q", got)
	}
	if got := PatientIDFromKey(ObjectKey("p1", "doc-with-dash")); got != "p1" {
		t.Errorf("doctor uid dashes must not leak into the patient id, got %q", got)
	}
}

func TestNewFileTreatment(t *testing.T) {
	f := NewFileTreatment("p1", 42)
	if f.Name != "p1.txt" || f.Size != 42 || f.MimeType != "text/plain" || f.Extension != ".txt" {
		t.Errorf("unexpected file treatment %+v", f)
	}
}

func TestNormalizeCured(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"cured":        "cured",
		"treatment":    "in treatment",
		"in treatment": "in treatment",
		"in_treatment": "in treatment",
		"no return":    "no return",
	}
	for in, want := range tests {
		if got := NormalizeCured(in); got != want {
			t.Errorf("NormalizeCured(%q) = %q, want %q", in, got, want)
		}
	}
}
