package null

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackr-io/stackr/internal/provider"
)

func TestLifecycle(t *testing.T) {
	p := New()
	ctx := context.Background()

	res, err := p.Create(ctx, "null_resource", "gate", map[string]any{"triggers": map[string]any{"rev": "1"}})
	require.NoError(t, err)
	assert.Contains(t, res.ID, "null-gate-")
	assert.Equal(t, res.ID, res.Outputs["id"])

	obs, err := p.Describe(ctx, "null_resource", res.ID)
	require.NoError(t, err)
	assert.True(t, obs.Exists)
	assert.Equal(t, "active", obs.Status)

	_, err = p.Update(ctx, "null_resource", res.ID, map[string]any{"triggers": map[string]any{"rev": "2"}})
	require.NoError(t, err)

	obs, err = p.Describe(ctx, "null_resource", res.ID)
	require.NoError(t, err)
	triggers := obs.Properties["triggers"].(map[string]any)
	assert.Equal(t, "2", triggers["rev"])

	require.NoError(t, p.Delete(ctx, "null_resource", res.ID))
	obs, err = p.Describe(ctx, "null_resource", res.ID)
	require.NoError(t, err)
	assert.False(t, obs.Exists)
}

func TestCreate_UnsupportedKind(t *testing.T) {
	p := New()
	_, err := p.Create(context.Background(), "null_data_source", "x", nil)
	require.Error(t, err)
	assert.False(t, provider.IsTransient(err))
}

func TestUpdate_MissingResource(t *testing.T) {
	p := New()
	_, err := p.Update(context.Background(), "null_resource", "null-x-deadbeef", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDelete_MissingResourceIsIdempotent(t *testing.T) {
	p := New()
	assert.NoError(t, p.Delete(context.Background(), "null_resource", "null-x-deadbeef"))
}
