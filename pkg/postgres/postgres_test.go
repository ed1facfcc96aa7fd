package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingMigrations(t *testing.T) {
	pending, err := pendingMigrations(map[string]bool{})
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ledger.sql", "002_segments.sql"}, pending)

	pending, err = pendingMigrations(map[string]bool{"001_ledger.sql": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"002_segments.sql"}, pending)
}
