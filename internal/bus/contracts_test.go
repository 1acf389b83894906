package bus

import (
	"errors"
	"testing"

	"github.com/promptforge/backend/internal/shared/errs"
	"github.com/promptforge/backend/internal/shared/types"
)

func TestContractRegisterAndGet(t *testing.T) {
	r := NewContractRegistry(nil)

	c := types.Contract{
		EventType: "doc.created",
		SourceApp: "docs",
		Payload: types.Schema{
			"doc_id": {Type: types.FieldString, Required: true},
		},
	}
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("doc.created")
	if !ok {
		t.Fatal("Expected contract to be registered")
	}
	if got.SourceApp != "docs" {
		t.Errorf("Expected source 'docs', got %q", got.SourceApp)
	}
}

func TestContractRegisterEmptyEventType(t *testing.T) {
	r := NewContractRegistry(nil)
	if err := r.Register(types.Contract{}); err == nil {
		t.Error("Expected error for empty event type")
	}
}

func TestContractOverwrite(t *testing.T) {
	r := NewContractRegistry(nil)

	r.Register(types.Contract{EventType: "x", SourceApp: "first"})
	if err := r.Register(types.Contract{EventType: "x", SourceApp: "second"}); err != nil {
		t.Fatalf("Re-registration should not error: %v", err)
	}

	got, _ := r.Get("x")
	if got.SourceApp != "second" {
		t.Errorf("Expected last registration to win, got %q", got.SourceApp)
	}
}

func TestContractListSorted(t *testing.T) {
	r := NewContractRegistry(nil)
	r.Register(types.Contract{EventType: "b"})
	r.Register(types.Contract{EventType: "a"})
	r.Register(types.Contract{EventType: "c"})

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 contracts, got %d", len(list))
	}
	if list[0].EventType != "a" || list[2].EventType != "c" {
		t.Errorf("Expected sorted order, got %v", list)
	}
}

func TestValidateSchemaMissingRequired(t *testing.T) {
	schema := types.Schema{
		"name": {Type: types.FieldString, Required: true},
	}
	err := ValidateSchema("e", schema, map[string]interface{}{})
	if !errors.Is(err, errs.ErrContractViolation) {
		t.Errorf("Expected contract violation, got %v", err)
	}
}

func TestValidateSchemaOptionalAbsent(t *testing.T) {
	schema := types.Schema{
		"note": {Type: types.FieldString, Required: false},
	}
	if err := ValidateSchema("e", schema, map[string]interface{}{}); err != nil {
		t.Errorf("Optional absent field should validate, got %v", err)
	}
}

func TestValidateSchemaTypeMismatch(t *testing.T) {
	schema := types.Schema{
		"count": {Type: types.FieldInteger, Required: true},
	}
	err := ValidateSchema("e", schema, map[string]interface{}{"count": "three"})
	if !errors.Is(err, errs.ErrContractViolation) {
		t.Errorf("Expected contract violation, got %v", err)
	}
}

func TestValidateSchemaJSONNumbers(t *testing.T) {
	schema := types.Schema{
		"count": {Type: types.FieldInteger, Required: true},
		"ratio": {Type: types.FieldNumber, Required: true},
	}
	// Decoded JSON delivers every number as float64.
	data := map[string]interface{}{
		"count": float64(3),
		"ratio": float64(0.5),
	}
	if err := ValidateSchema("e", schema, data); err != nil {
		t.Errorf("Whole float64 should satisfy integer, got %v", err)
	}

	err := ValidateSchema("e", schema, map[string]interface{}{
		"count": float64(3.5),
		"ratio": float64(1),
	})
	if !errors.Is(err, errs.ErrContractViolation) {
		t.Errorf("Fractional float64 should fail integer, got %v", err)
	}
}

func TestValidateSchemaExtraFieldsAllowed(t *testing.T) {
	schema := types.Schema{
		"name": {Type: types.FieldString, Required: true},
	}
	data := map[string]interface{}{
		"name":  "x",
		"extra": 42,
	}
	if err := ValidateSchema("e", schema, data); err != nil {
		t.Errorf("Undeclared fields should be allowed, got %v", err)
	}
}

func TestValidatePublishUncontracted(t *testing.T) {
	r := NewContractRegistry(nil)
	if err := r.ValidatePublish("anything", map[string]interface{}{"x": 1}); err != nil {
		t.Errorf("Uncontracted event should validate, got %v", err)
	}
}
