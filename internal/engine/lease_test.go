package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseTable_ConflictAndRelease(t *testing.T) {
	leases := newLeaseTable()
	require.NoError(t, leases.Acquire("web", "web (new)"))

	err := leases.Acquire("web", "web (old)")
	require.Error(t, err)
	var conflict *LeaseConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "web", conflict.Address)
	assert.Equal(t, "web (new)", conflict.Holder)

	// Leases are scoped per address.
	assert.NoError(t, leases.Acquire("db", "db"))

	leases.Release("web")
	assert.NoError(t, leases.Acquire("web", "web (old)"))
}
