package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/ir"
)

func TestDetectOnce_NoDrift(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["a-1"] = map[string]any{"triggers": "x"}
	store := testStore(&ir.StateRecord{
		Name: "a", Kind: "null_resource", Provider: "null", ID: "a-1",
		Properties: map[string]any{"triggers": "x"},
	})

	detector := NewDetector(testEngine(fake), store)
	events, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetectOnce_ReportsChangedFields(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["asg-1"] = map[string]any{"minSize": 2, "maxSize": 10}
	store := testStore(&ir.StateRecord{
		Name: "asg", Kind: "aws:AutoScaling.AutoScalingGroup", Provider: "aws", ID: "asg-1",
		Properties: map[string]any{"minSize": 4, "maxSize": 10},
	})

	detector := NewDetector(testEngine(fake), store)
	events, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "asg", ev.Address)
	assert.False(t, ev.Missing)
	require.Len(t, ev.Fields, 1)
	assert.Equal(t, "minSize", ev.Fields[0].Path)
	assert.Equal(t, 4, ev.Fields[0].Stored)
	assert.Equal(t, 2, ev.Fields[0].Live)
}

func TestDetectOnce_ReportsMissingResources(t *testing.T) {
	fake := newFakeProvider()
	store := testStore(&ir.StateRecord{
		Name: "gone", Kind: "null_resource", Provider: "null", ID: "gone-1",
		Properties: map[string]any{"triggers": "x"},
	})

	detector := NewDetector(testEngine(fake), store)
	events, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Missing)
}

func TestDetectOnce_IgnoresUnmanagedProperties(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["a-1"] = map[string]any{"triggers": "x", "providerInternal": "whatever"}
	store := testStore(&ir.StateRecord{
		Name: "a", Kind: "null_resource", Provider: "null", ID: "a-1",
		Properties: map[string]any{"triggers": "x"},
	})

	detector := NewDetector(testEngine(fake), store)
	events, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events, "properties the template never managed are not drift")
}

func TestDetectOnce_UnloadableProviderDoesNotMaskDrift(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["asg-1"] = map[string]any{"minSize": 2}
	store := testStore(
		&ir.StateRecord{
			Name: "orphan", Kind: "custom_thing", Provider: "retired", ID: "o-1",
			Properties: map[string]any{"x": 1},
		},
		&ir.StateRecord{
			Name: "asg", Kind: "aws:AutoScaling.AutoScalingGroup", Provider: "aws", ID: "asg-1",
			Properties: map[string]any{"minSize": 4},
		},
	)

	detector := NewDetector(testEngine(fake), store)
	events, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)

	// The record whose provider cannot be loaded is skipped; drift on the
	// rest is still reported.
	require.Len(t, events, 1)
	assert.Equal(t, "asg", events[0].Address)
}

func TestDetectOnce_DoesNotMutateState(t *testing.T) {
	fake := newFakeProvider()
	store := testStore(&ir.StateRecord{
		Name: "gone", Kind: "null_resource", Provider: "null", ID: "gone-1",
	})

	detector := NewDetector(testEngine(fake), store)
	_, err := detector.DetectOnce(context.Background())
	require.NoError(t, err)

	_, ok := store.Get("gone")
	assert.True(t, ok, "detection must never rewrite state")
	assert.Empty(t, fake.callLog(), "detection must never call write operations")
}
