package logging

import (
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestFields_Component(t *testing.T) {
	fields := NewFields().Component("consensus")
	if fields["component"] != "consensus" {
		t.Errorf("Component() = %v, want %v", fields["component"], "consensus")
	}
}

func TestFields_Resource(t *testing.T) {
	fields := NewFields().Resource("incident", "inc-1")
	if fields["resource_type"] != "incident" {
		t.Errorf("resource_type = %v, want incident", fields["resource_type"])
	}
	if fields["resource_name"] != "inc-1" {
		t.Errorf("resource_name = %v, want inc-1", fields["resource_name"])
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("incident", "")
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	fields := NewFields().Duration(150 * time.Millisecond)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("duration_ms = %v, want 150", fields["duration_ms"])
	}
}

func TestFields_Zap_Deterministic(t *testing.T) {
	fields := NewFields().Component("x").Operation("y").IncidentID("inc-1")
	a := fields.Zap()
	b := fields.Zap()
	if len(a) != len(b) || len(a) != 3 {
		t.Fatalf("expected 3 stable fields, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			t.Errorf("field order not stable at %d: %s vs %s", i, a[i].Key, b[i].Key)
		}
	}
}
