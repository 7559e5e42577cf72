package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func createTestItem(t *testing.T, d DBTX, name, footprint string, qty int64) *domain.Item {
	t.Helper()
	item, err := NewItemStore(d).Create(context.Background(), &domain.Item{
		Name:      name,
		Footprint: footprint,
		TotalQty:  qty,
	})
	require.NoError(t, err)
	return item
}

func createTestUser(t *testing.T, d DBTX, username string, role domain.Role) *domain.User {
	t.Helper()
	u, err := NewUserStore(d).Create(context.Background(), username, "hash", username+" Full", role)
	require.NoError(t, err)
	return u
}

func TestIsUniqueViolation(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	createTestItem(t, d, "Resistor 10k", "0805", 0)
	_, err := NewItemStore(d).Create(ctx, &domain.Item{Name: "Resistor 10k", Footprint: "0805"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
	assert.False(t, IsUniqueViolation(nil))
}
