package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/ir"
	"github.com/stackr-io/stackr/internal/provider"
)

func TestApply_CreatesInDependencyOrder(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "base", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "x"}},
			{Name: "leaf", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"ref": ir.Ref("base")}},
		},
	}

	fake := newFakeProvider()
	e := testEngine(fake)
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	require.NoError(t, result.Err())
	assert.Equal(t, 2, result.Applied)

	calls := fake.callLog()
	require.Len(t, calls, 2)
	assert.Equal(t, "create base", calls[0])
	assert.Equal(t, "create leaf", calls[1])

	baseRec, ok := store.Get("base")
	require.True(t, ok)
	assert.NotEmpty(t, baseRec.ID)
	assert.Equal(t, "null_resource", baseRec.Kind)

	// The leaf's reference resolved to the base's live id.
	leafRec, ok := store.Get("leaf")
	require.True(t, ok)
	assert.Equal(t, baseRec.ID, leafRec.Properties["ref"])
	assert.Equal(t, []string{"base"}, leafRec.Dependencies)
}

func TestApply_FailureSkipsDependentsOnly(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "doomed", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "x"}},
			{Name: "child", Kind: "null_resource", Provider: "null", DependsOn: []string{"doomed"}},
			{Name: "grandchild", Kind: "null_resource", Provider: "null", DependsOn: []string{"child"}},
			{Name: "bystander", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "y"}},
		},
	}

	fake := newFakeProvider()
	fake.createErr["doomed"] = provider.Permanent("create", "null_resource", errors.New("boom"))
	e := testEngine(fake)
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Skipped)
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "doomed")

	// The independent resource still applied and recorded.
	_, ok := store.Get("bystander")
	assert.True(t, ok)
	_, ok = store.Get("doomed")
	assert.False(t, ok, "failed create must leave no record")
	_, ok = store.Get("child")
	assert.False(t, ok)
}

func TestApply_UpdateUsesPriorID(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["a-1"] = map[string]any{"minSize": 2}
	fake.status = "in-service"
	e := testEngine(fake)
	store := testStore(&ir.StateRecord{
		Name: "a", Kind: "aws:AutoScaling.AutoScalingGroup", Provider: "aws", ID: "a-1",
		Properties: map[string]any{"name": "a", "minSize": 2},
	})

	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "a", Kind: "aws:AutoScaling.AutoScalingGroup", Provider: "aws",
				Properties: map[string]any{"name": "a", "minSize": 4}},
		},
	}

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	require.NoError(t, result.Err())
	assert.Equal(t, []string{"update a-1"}, fake.callLog())

	rec, _ := store.Get("a")
	assert.Equal(t, "a-1", rec.ID)
	assert.Equal(t, float64(4), normalize(rec.Properties["minSize"]))
}

func TestApply_ReplaceCreatesBeforeDeleting(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["lt-old"] = map[string]any{"name": "lt-v1"}
	e := testEngine(fake)
	store := testStore(&ir.StateRecord{
		Name: "lt", Kind: "aws:EC2.LaunchTemplate", Provider: "aws", ID: "lt-old",
		Properties: map[string]any{"name": "lt-v1"},
	})

	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "lt", Kind: "aws:EC2.LaunchTemplate", Provider: "aws",
				Properties: map[string]any{"name": "lt-v2"}},
		},
	}

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	require.NoError(t, result.Err())

	calls := fake.callLog()
	require.Len(t, calls, 2)
	assert.Equal(t, "create lt", calls[0])
	assert.Equal(t, "delete lt-old", calls[1])

	// The record points at the replacement, not the deleted original.
	rec, ok := store.Get("lt")
	require.True(t, ok)
	assert.NotEqual(t, "lt-old", rec.ID)
}

func TestApply_DeleteRemovesRecord(t *testing.T) {
	fake := newFakeProvider()
	fake.resources["gone-1"] = map[string]any{}
	e := testEngine(fake)
	store := testStore(&ir.StateRecord{
		Name: "gone", Kind: "null_resource", Provider: "null", ID: "gone-1",
	})

	cs, err := e.PlanDestroy(context.Background(), store.Snapshot())
	require.NoError(t, err)
	require.Len(t, cs.Entries, 1)

	result := e.Apply(context.Background(), cs, store, nil)
	require.NoError(t, result.Err())
	assert.Equal(t, []string{"delete gone-1"}, fake.callLog())

	_, ok := store.Get("gone")
	assert.False(t, ok)
}

func TestApply_ResolvesOutputsAndExports(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "lb", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "x"}},
		},
		Outputs: map[string]any{"lbArn": ir.GetAttr("lb", "arn")},
		Exports: map[string]any{"lb-id": ir.Ref("lb")},
	}

	fake := newFakeProvider()
	e := testEngine(fake)
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	require.NoError(t, result.Err())

	snap := store.Snapshot()
	rec, _ := store.Get("lb")
	assert.Equal(t, "arn:fake:"+rec.ID, snap.Outputs["lbArn"])
	assert.Equal(t, rec.ID, snap.Exports["lb-id"])
	assert.Equal(t, cs.Metadata.TemplateHash, snap.TemplateHash)
}

func TestApply_TimeoutWhenNeverReady(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "asg", Kind: "aws:AutoScaling.AutoScalingGroup", Provider: "aws",
				Properties: map[string]any{"name": "workers", "minSize": 1}},
		},
	}

	fake := newFakeProvider()
	fake.status = "scaling" // never reaches in-service
	e := testEngine(fake)
	e.Timeout = 30 * time.Millisecond
	e.Retry = &RetryPolicy{MaxRetries: 0, BaseDelay: 2 * time.Millisecond, MaxDelay: 5 * time.Millisecond}
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	result := e.Apply(context.Background(), cs, store, nil)
	assert.Equal(t, 1, result.Failed)
	require.Error(t, result.Err())

	require.Len(t, result.Outcomes, 1)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, result.Outcomes[0].Err, &timeoutErr)
	assert.Equal(t, "asg", timeoutErr.Address)

	_, ok := store.Get("asg")
	assert.False(t, ok, "timed-out create must leave no record")
}

func TestApply_CancelledContextSkipsPending(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "a", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "x"}},
			{Name: "b", Kind: "null_resource", Provider: "null", DependsOn: []string{"a"}},
		},
	}

	fake := newFakeProvider()
	e := testEngine(fake)
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := e.Apply(ctx, cs, store, nil)
	assert.Zero(t, result.Applied)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, fake.callLog())
}

func TestApply_EventsReported(t *testing.T) {
	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "a", Kind: "null_resource", Provider: "null",
				Properties: map[string]any{"triggers": "x"}},
		},
	}

	fake := newFakeProvider()
	e := testEngine(fake)
	store := testStore()

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)

	var statuses []string
	result := e.Apply(context.Background(), cs, store, func(ev ApplyEvent) {
		statuses = append(statuses, ev.Status)
	})
	require.NoError(t, result.Err())
	assert.Equal(t, []string{"started", "completed"}, statuses)
}

func TestApply_NoOpEntriesAreNotExecuted(t *testing.T) {
	props := map[string]any{"triggers": "x"}
	fake := newFakeProvider()
	fake.resources["a-1"] = props
	e := testEngine(fake)
	store := testStore(&ir.StateRecord{
		Name: "a", Kind: "null_resource", Provider: "null", ID: "a-1", Properties: props,
	})

	cfg := &ir.Config{
		Stack: "test",
		Resources: []*ir.Resource{
			{Name: "a", Kind: "null_resource", Provider: "null", Properties: props},
		},
	}

	cs, err := e.Plan(context.Background(), cfg, store.Snapshot())
	require.NoError(t, err)
	require.True(t, cs.Empty())

	result := e.Apply(context.Background(), cs, store, nil)
	assert.Zero(t, result.Applied)
	assert.Empty(t, fake.callLog())
}
