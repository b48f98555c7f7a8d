package sync

import (
	"context"
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

// TestBreakerPassesThroughSuccess verifies results and rejections flow
// through an untripped breaker unchanged.
func TestBreakerPassesThroughSuccess(t *testing.T) {
	remote := newFakeRemote()
	client := NewBreakerClient(remote)

	result, err := client.SaveWorkout(context.Background(), &WorkoutBatch{})
	if err != nil {
		t.Fatalf("SaveWorkout failed: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected success, got %+v", result)
	}

	remote.itemResult = &RemoteResult{Success: false, Error: "bad payload"}
	result, err = client.Insert(context.Background(), EntityTypeTemplate, "t1", nil)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if result.Success || result.Error != "bad payload" {
		t.Errorf("Expected rejection passed through, got %+v", result)
	}
}

// TestBreakerOpensOnTransportFailures verifies the circuit opens after the
// failure threshold and then refuses calls without touching the remote.
func TestBreakerOpensOnTransportFailures(t *testing.T) {
	remote := newFakeRemote()
	remote.saveErr = errors.New("connection refused")
	remote.saveResult = nil
	client := NewBreakerClient(remote)

	for i := 0; i < 10; i++ {
		if _, err := client.SaveWorkout(context.Background(), &WorkoutBatch{}); err == nil {
			t.Fatalf("Call %d: expected transport error", i)
		}
	}

	callsBefore := len(remote.batches)
	_, err := client.SaveWorkout(context.Background(), &WorkoutBatch{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Expected ErrOpenState, got %v", err)
	}
	if len(remote.batches) != callsBefore {
		t.Errorf("Open breaker must not reach the remote")
	}
}

// TestBreakerIgnoresRejections verifies application rejections never trip the
// circuit.
func TestBreakerIgnoresRejections(t *testing.T) {
	remote := newFakeRemote()
	remote.itemResult = &RemoteResult{Success: false, Error: "validation failed"}
	client := NewBreakerClient(remote)

	for i := 0; i < 20; i++ {
		if _, err := client.Update(context.Background(), EntityTypeSession, "s1", nil); err != nil {
			t.Fatalf("Call %d: rejection must not trip the breaker: %v", i, err)
		}
	}
}

// TestBreakerGetLastModified verifies the typed passthrough for the
// timestamp lookup.
func TestBreakerGetLastModified(t *testing.T) {
	remote := newFakeRemote()
	remote.lastModified["session/s1"] = 42_000
	client := NewBreakerClient(remote)

	ms, err := client.GetLastModified(context.Background(), EntityTypeSession, "s1")
	if err != nil {
		t.Fatalf("GetLastModified failed: %v", err)
	}
	if ms == nil || *ms != 42_000 {
		t.Errorf("Expected 42000, got %v", ms)
	}

	ms, err = client.GetLastModified(context.Background(), EntityTypeSession, "missing")
	if err != nil {
		t.Fatalf("GetLastModified failed: %v", err)
	}
	if ms != nil {
		t.Errorf("Expected nil for missing record, got %d", *ms)
	}
}
