package services_test

import (
	"context"
	"testing"

	"github.com/mblakley/soccer-cam/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithGroupID(ctx, "2024.05.01-10.00.00")
	ctx = services.WithStage(ctx, "combining")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.GroupIDFromContext(ctx); !ok || id != "2024.05.01-10.00.00" {
		t.Fatalf("unexpected group id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "combining" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithGroupID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.GroupIDFromContext(ctx); ok {
		t.Fatal("expected no group value")
	}
}
