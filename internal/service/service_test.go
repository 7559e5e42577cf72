package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/store"
)

const testAdminPassword = "admin123"

// mockImageStore is a testify mock of imagestore.ImageStore.
type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) Save(ctx context.Context, mimeType string, r io.Reader) (string, error) {
	args := m.Called(ctx, mimeType, r)
	return args.String(0), args.Error(1)
}

func (m *mockImageStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.String(1), args.Error(2)
}

func (m *mockImageStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type testEnv struct {
	db        *sql.DB
	images    *mockImageStore
	inventory *InventoryService
	boms      *BOMService
	orders    *ServiceOrderService
	users     *UserService
	admin     domain.Principal
}

func newTestEnvWithDB(t *testing.T, d *sql.DB) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	images := &mockImageStore{}

	env := &testEnv{
		db:        d,
		images:    images,
		inventory: NewInventoryService(d, images, 5, logger),
		boms:      NewBOMService(d, logger),
		orders:    NewServiceOrderService(d, logger),
		users:     NewUserService(d, auth.NewTokens("test-secret", time.Hour), logger),
	}
	require.NoError(t, env.users.EnsureAdmin(context.Background(), testAdminPassword))

	admin, err := store.NewUserStore(d).GetByUsername(context.Background(), BootstrapAdmin)
	require.NoError(t, err)
	env.admin = domain.Principal{ID: admin.ID, Username: admin.Username, Role: admin.Role}

	t.Cleanup(func() { images.AssertExpectations(t) })
	return env
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return newTestEnvWithDB(t, d)
}

func strPtr(s string) *string { return &s }

// stockIn creates or restocks an item and returns its id.
func (e *testEnv) stockIn(t *testing.T, name, footprint string, qty int64) int64 {
	t.Helper()
	res, err := e.inventory.StockIn(context.Background(), e.admin, StockInRequest{
		Name:      name,
		Footprint: strPtr(footprint),
		Quantity:  qty,
	})
	require.NoError(t, err)
	return res.ItemID
}

func (e *testEnv) item(t *testing.T, id int64) *domain.Item {
	t.Helper()
	item, err := store.NewItemStore(e.db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (e *testEnv) history(t *testing.T, filter store.TransactionFilter) []*domain.TransactionEntry {
	t.Helper()
	entries, err := e.inventory.History(context.Background(), filter)
	require.NoError(t, err)
	return entries
}

// requireLedgerBalanced fails when any item's total disagrees with its log.
func (e *testEnv) requireLedgerBalanced(t *testing.T) {
	t.Helper()
	mismatches, err := e.inventory.VerifyLedger(context.Background())
	require.NoError(t, err)
	require.Empty(t, mismatches)
}
