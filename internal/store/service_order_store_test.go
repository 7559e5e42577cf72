package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/partsledger/internal/domain"
)

func newTestOrder(received time.Time) *domain.ServiceOrder {
	return &domain.ServiceOrder{
		ItemName:     "Amplifier",
		CustomerName: "Carol",
		Complaint:    "no sound",
		Status:       domain.StatusPending,
		Priority:     domain.PriorityMedium,
		DateReceived: received,
	}
}

func TestServiceOrderStoreCreateAndGet(t *testing.T) {
	d := openTestDB(t)
	orders := NewServiceOrderStore(d)
	ctx := context.Background()

	tech := createTestUser(t, d, "tech", domain.RoleUser)
	received := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	due := received.Add(72 * time.Hour)

	o := newTestOrder(received)
	o.DueDate = &due
	o.TechnicianID = &tech.ID
	o.CreatedBy = &tech.ID
	o.CostEstimate = decimal.NewNullDecimal(decimal.RequireFromString("149.90"))

	id, err := orders.Create(ctx, o)
	require.NoError(t, err)

	got, err := orders.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Amplifier", got.ItemName)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, domain.PriorityMedium, got.Priority)
	assert.True(t, got.DateReceived.Equal(received))
	require.NotNil(t, got.DueDate)
	assert.True(t, got.DueDate.Equal(due))
	assert.Nil(t, got.CompletedDate)
	assert.Equal(t, "tech", got.TechnicianName)
	assert.Equal(t, "tech", got.CreatedByName)
	require.True(t, got.CostEstimate.Valid)
	assert.True(t, got.CostEstimate.Decimal.Equal(decimal.RequireFromString("149.9")))

	missing, err := orders.GetByID(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestServiceOrderStoreList(t *testing.T) {
	d := openTestDB(t)
	orders := NewServiceOrderStore(d)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	first := newTestOrder(base)
	second := newTestOrder(base.Add(time.Hour))
	second.Status = domain.StatusInProgress
	second.Priority = domain.PriorityUrgent

	_, err := orders.Create(ctx, first)
	require.NoError(t, err)
	_, err = orders.Create(ctx, second)
	require.NoError(t, err)

	all, err := orders.List(ctx, ServiceOrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.StatusInProgress, all[0].Status, "newest first")
	assert.False(t, all[1].CostEstimate.Valid)

	pending, err := orders.List(ctx, ServiceOrderFilter{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	urgent, err := orders.List(ctx, ServiceOrderFilter{Priority: domain.PriorityUrgent})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.Equal(t, domain.PriorityUrgent, urgent[0].Priority)
}

func TestServiceOrderStoreUpdate(t *testing.T) {
	d := openTestDB(t)
	orders := NewServiceOrderStore(d)
	ctx := context.Background()

	id, err := orders.Create(ctx, newTestOrder(time.Now()))
	require.NoError(t, err)

	o, err := orders.GetByID(ctx, id)
	require.NoError(t, err)

	done := time.Date(2024, 4, 2, 12, 0, 0, 0, time.UTC)
	o.Status = domain.StatusCompleted
	o.Diagnosis = "blown fuse"
	o.CompletedDate = &done
	require.NoError(t, orders.Update(ctx, o))

	got, err := orders.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "blown fuse", got.Diagnosis)
	require.NotNil(t, got.CompletedDate)
	assert.True(t, got.CompletedDate.Equal(done))

	o.ID = 9999
	assert.Error(t, orders.Update(ctx, o))
}

func TestServiceOrderStoreParts(t *testing.T) {
	d := openTestDB(t)
	orders := NewServiceOrderStore(d)
	ctx := context.Background()

	fuse := createTestItem(t, d, "Fuse 1A", "", 10)
	id, err := orders.Create(ctx, newTestOrder(time.Now()))
	require.NoError(t, err)

	_, err = orders.AddPart(ctx, id, fuse.ID, 2, time.Now())
	require.NoError(t, err)

	parts, err := orders.ListParts(ctx, id)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "Fuse 1A", parts[0].ItemName)
	assert.EqualValues(t, 2, parts[0].Qty)

	n, err := orders.CountPartsByItem(ctx, fuse.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, orders.DeletePartsByItem(ctx, fuse.ID))
	n, err = orders.CountPartsByItem(ctx, fuse.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServiceOrderStoreDelete(t *testing.T) {
	d := openTestDB(t)
	orders := NewServiceOrderStore(d)
	ctx := context.Background()

	fuse := createTestItem(t, d, "Fuse 1A", "", 10)
	id, err := orders.Create(ctx, newTestOrder(time.Now()))
	require.NoError(t, err)
	_, err = orders.AddPart(ctx, id, fuse.ID, 1, time.Now())
	require.NoError(t, err)

	assert.Error(t, orders.Delete(ctx, id), "parts used must be removed first")

	require.NoError(t, orders.DeletePartsByOrder(ctx, id))
	require.NoError(t, orders.Delete(ctx, id))

	got, err := orders.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)
}
