package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/promptforge/backend/internal/bus"
	"github.com/promptforge/backend/internal/service"
	"github.com/promptforge/backend/internal/shared/types"
)

func newTestApp(t *testing.T) (*App, *bus.Bus) {
	t.Helper()
	eventBus := bus.New(bus.NewContractRegistry(nil), nil)
	services := service.NewRegistry()
	if err := services.Register(service.NameBus, eventBus); err != nil {
		t.Fatal(err)
	}

	instance, err := New(types.AppManifest{ID: "prompts"}, services)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return instance.(*App), eventBus
}

func TestNewRequiresBus(t *testing.T) {
	_, err := New(types.AppManifest{ID: "prompts"}, service.NewRegistry())
	if err == nil {
		t.Error("Expected error without bus service")
	}
}

func TestRenderSubstitution(t *testing.T) {
	a, _ := newTestApp(t)

	out, err := a.Render("greeting", map[string]interface{}{
		"name":    "Ada",
		"product": "PromptForge",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "Hello Ada, welcome to PromptForge." {
		t.Errorf("Unexpected render output: %q", out)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	a, _ := newTestApp(t)
	if _, err := a.Render("ghost", nil); err == nil {
		t.Error("Expected error for unknown template")
	}
}

func TestRenderLeavesUnboundMarkers(t *testing.T) {
	a, _ := newTestApp(t)
	out, err := a.Render("greeting", map[string]interface{}{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out != "Hello Ada, welcome to {{product}}." {
		t.Errorf("Expected unbound marker preserved, got %q", out)
	}
}

func TestHandleRenderPublishesResult(t *testing.T) {
	a, eventBus := newTestApp(t)

	got := make(chan map[string]interface{}, 1)
	eventBus.Subscribe(EventRendered, func(ctx context.Context, data map[string]interface{}) (interface{}, error) {
		got <- data
		return nil, nil
	}, "test")

	result, err := a.handleRender(context.Background(), map[string]interface{}{
		"template_id": "greeting",
		"variables": map[string]interface{}{
			"name":    "Bo",
			"product": "X",
		},
	})
	if err != nil {
		t.Fatalf("handleRender failed: %v", err)
	}
	if result.(map[string]interface{})["output"] != "Hello Bo, welcome to X." {
		t.Errorf("Unexpected handler result: %v", result)
	}

	select {
	case data := <-got:
		if data["template_id"] != "greeting" {
			t.Errorf("Unexpected published payload: %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Rendered event never published")
	}
}

func TestBatchRenderJob(t *testing.T) {
	a, _ := newTestApp(t)

	job := &types.Job{
		Payload: map[string]interface{}{
			"template_id": "greeting",
			"variable_sets": []interface{}{
				map[string]interface{}{"name": "A", "product": "P"},
				map[string]interface{}{"name": "B", "product": "P"},
			},
		},
	}

	result, err := a.handleBatchRender(context.Background(), job)
	if err != nil {
		t.Fatalf("Batch render failed: %v", err)
	}
	out := result.(map[string]interface{})
	if out["count"] != 2 {
		t.Errorf("Expected 2 outputs, got %v", out["count"])
	}
}

func TestDeclaresAllFeatures(t *testing.T) {
	a, _ := newTestApp(t)
	for _, feature := range []string{
		types.FeatureContracts, types.FeatureSubscriptions,
		types.FeatureJobs, types.FeatureRouter, types.FeatureTools,
	} {
		if !a.Declares(feature) {
			t.Errorf("Expected %s declared", feature)
		}
	}
	if a.Declares("telepathy") {
		t.Error("Unexpected feature declared")
	}
}

func TestContractValidatesOwnEvents(t *testing.T) {
	a, _ := newTestApp(t)
	contracts := a.Contracts()
	if len(contracts) != 1 || contracts[0].EventType != EventRendered {
		t.Fatalf("Unexpected contracts: %v", contracts)
	}

	schema := contracts[0].Payload
	err := bus.ValidateSchema(EventRendered, schema, map[string]interface{}{
		"template_id": "greeting",
		"output":      "hi",
	})
	if err != nil {
		t.Errorf("Valid payload rejected: %v", err)
	}
	if bus.ValidateSchema(EventRendered, schema, map[string]interface{}{}) == nil {
		t.Error("Empty payload should violate the contract")
	}
}
