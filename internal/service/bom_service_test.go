package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/store"
)

// widgetA builds the "Widget A" BOM: 2x Resistor 10k and 1x Capacitor 1uF,
// with 10 resistors and 3 capacitors in stock.
func widgetA(t *testing.T, env *testEnv) (bomID, resistor, capacitor int64) {
	t.Helper()
	resistor = env.stockIn(t, "Resistor 10k", "0805", 10)
	capacitor = env.stockIn(t, "Capacitor 1uF", "0805", 3)

	bom, err := env.boms.Create(context.Background(), env.admin, BOMRequest{
		Name: "Widget A",
		Lines: []domain.BOMLine{
			{ItemID: resistor, Qty: 2},
			{ItemID: capacitor, Qty: 1},
		},
	})
	require.NoError(t, err)
	return bom.ID, resistor, capacitor
}

func TestBOMCreate(t *testing.T) {
	env := newTestEnv(t)

	bomID, resistor, _ := widgetA(t, env)

	bom, err := env.boms.Get(context.Background(), bomID)
	require.NoError(t, err)
	assert.Equal(t, "Widget A", bom.Name)
	require.Len(t, bom.Items, 2)
	assert.Equal(t, resistor, bom.Items[0].ItemID)
	assert.Equal(t, "Resistor 10k", bom.Items[0].Name)
	assert.EqualValues(t, 10, bom.Items[0].CurrentStock)
	assert.EqualValues(t, 3, bom.MaxBuilds)
	require.NotNil(t, bom.CreatedBy)
	assert.Equal(t, env.admin.ID, *bom.CreatedBy)
}

func TestBOMCreate_MergesDuplicateLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	led := env.stockIn(t, "LED", "", 10)
	bolt := env.stockIn(t, "Bolt", "", 10)

	bom, err := env.boms.Create(ctx, env.admin, BOMRequest{
		Name: "Lamp",
		Lines: []domain.BOMLine{
			{ItemID: led, Qty: 1},
			{ItemID: bolt, Qty: 4},
			{ItemID: led, Qty: 2},
		},
	})
	require.NoError(t, err)
	require.Len(t, bom.Items, 2)
	assert.Equal(t, led, bom.Items[0].ItemID)
	assert.EqualValues(t, 3, bom.Items[0].Qty)
	assert.EqualValues(t, 2, bom.MaxBuilds)
}

func TestBOMCreate_DuplicateNameConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, resistor, _ := widgetA(t, env)

	_, err := env.boms.Create(ctx, env.admin, BOMRequest{
		Name:  "Widget A",
		Lines: []domain.BOMLine{{ItemID: resistor, Qty: 9}},
	})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	existing, err := env.boms.Get(ctx, bomID)
	require.NoError(t, err)
	assert.Len(t, existing.Items, 2, "existing BOM untouched")

	list, err := env.boms.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = env.boms.Create(ctx, env.admin, BOMRequest{Name: "widget a"})
	assert.NoError(t, err, "names differing only in case are distinct")
}

func TestBOMCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	led := env.stockIn(t, "LED", "", 10)

	var verr *domain.ValidationError
	_, err := env.boms.Create(ctx, env.admin, BOMRequest{Name: " "})
	assert.ErrorAs(t, err, &verr)

	_, err = env.boms.Create(ctx, env.admin, BOMRequest{Name: "X", Lines: []domain.BOMLine{{ItemID: led, Qty: 0}}})
	assert.ErrorAs(t, err, &verr)

	_, err = env.boms.Create(ctx, env.admin, BOMRequest{Name: "X", Lines: []domain.BOMLine{{ItemID: 0, Qty: 1}}})
	assert.ErrorAs(t, err, &verr)

	var nf *domain.NotFoundError
	_, err = env.boms.Create(ctx, env.admin, BOMRequest{Name: "X", Lines: []domain.BOMLine{{ItemID: 9999, Qty: 1}}})
	assert.ErrorAs(t, err, &nf)

	list, err := env.boms.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBOMUpdate_ReplacesLines(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, _, capacitor := widgetA(t, env)

	bom, err := env.boms.Update(ctx, env.admin, bomID, BOMRequest{
		Name:        "Widget A",
		Description: "rev B",
		Lines:       []domain.BOMLine{{ItemID: capacitor, Qty: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "rev B", bom.Description)
	require.Len(t, bom.Items, 1)
	assert.Equal(t, capacitor, bom.Items[0].ItemID)
	assert.EqualValues(t, 3, bom.Items[0].Qty)
	assert.Equal(t, 1, bom.LineCount)
}

func TestBOMUpdate_NameTakenByOther(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, _, _ := widgetA(t, env)
	_, err := env.boms.Create(ctx, env.admin, BOMRequest{Name: "Widget B"})
	require.NoError(t, err)

	_, err = env.boms.Update(ctx, env.admin, bomID, BOMRequest{Name: "Widget B"})
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)

	bom, err := env.boms.Get(ctx, bomID)
	require.NoError(t, err)
	assert.Equal(t, "Widget A", bom.Name)
	assert.Len(t, bom.Items, 2)

	var nf *domain.NotFoundError
	_, err = env.boms.Update(ctx, env.admin, 9999, BOMRequest{Name: "Z"})
	assert.ErrorAs(t, err, &nf)
}

func TestBOMExecute_Feasible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, resistor, capacitor := widgetA(t, env)

	res, err := env.boms.Execute(ctx, env.admin, bomID, "Batch 7", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Transactions)

	assert.EqualValues(t, 4, env.item(t, resistor).TotalQty)
	assert.Zero(t, env.item(t, capacitor).TotalQty)

	outs := env.history(t, store.TransactionFilter{Type: domain.TransactionOut})
	require.Len(t, outs, 2)
	for _, e := range outs {
		assert.Equal(t, "Batch 7", e.ProjectRef)
		assert.Equal(t, "BOM Execution: Widget A (x3)", e.Notes)
	}
	needed := map[int64]int64{}
	for _, e := range outs {
		needed[e.ItemID] = e.Qty
	}
	assert.Equal(t, map[int64]int64{resistor: 6, capacitor: 3}, needed)

	env.requireLedgerBalanced(t)
}

func TestBOMExecute_ShortfallIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, resistor, capacitor := widgetA(t, env)

	_, err := env.boms.Execute(ctx, env.admin, bomID, "Batch 8", 4)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	assert.Equal(t, "Capacitor 1uF", insufficient.Shortfalls[0].Name)
	assert.EqualValues(t, 4, insufficient.Shortfalls[0].Needed)
	assert.EqualValues(t, 3, insufficient.Shortfalls[0].Available)

	assert.EqualValues(t, 10, env.item(t, resistor).TotalQty)
	assert.EqualValues(t, 3, env.item(t, capacitor).TotalQty)
	assert.Empty(t, env.history(t, store.TransactionFilter{Type: domain.TransactionOut}))
}

func TestBOMExecute_ReportsEveryShortfall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, _, _ := widgetA(t, env)

	_, err := env.boms.Execute(ctx, env.admin, bomID, "Big batch", 6)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Len(t, insufficient.Shortfalls, 2)
	assert.Contains(t, err.Error(), "Resistor 10k (need 12, have 10)")
	assert.Contains(t, err.Error(), "Capacitor 1uF (need 6, have 3)")
}

func TestBOMExecute_MultiplierOverflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, resistor, capacitor := widgetA(t, env)

	// 2 resistors per board times 2^62 boards does not fit in an int64.
	_, err := env.boms.Execute(ctx, env.admin, bomID, "Runaway", 1<<62)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 2)
	needed := map[int64]int64{}
	for _, sf := range insufficient.Shortfalls {
		needed[sf.ItemID] = sf.Needed
	}
	assert.Equal(t, map[int64]int64{resistor: math.MaxInt64, capacitor: 1 << 62}, needed)

	assert.EqualValues(t, 10, env.item(t, resistor).TotalQty)
	assert.EqualValues(t, 3, env.item(t, capacitor).TotalQty)
	assert.Empty(t, env.history(t, store.TransactionFilter{Type: domain.TransactionOut}))
	env.requireLedgerBalanced(t)
}

func TestBOMExecute_ValidationOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, _, _ := widgetA(t, env)

	var verr *domain.ValidationError
	_, err := env.boms.Execute(ctx, env.admin, bomID, "", 0)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "project_name", verr.Field)

	_, err = env.boms.Execute(ctx, env.admin, bomID, "P", 0)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "multiplier", verr.Field)

	empty, err := env.boms.Create(ctx, env.admin, BOMRequest{Name: "Empty"})
	require.NoError(t, err)
	_, err = env.boms.Execute(ctx, env.admin, empty.ID, "P", 1)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Field)

	var nf *domain.NotFoundError
	_, err = env.boms.Execute(ctx, env.admin, 9999, "P", 1)
	assert.ErrorAs(t, err, &nf)
}

func TestBOMExecute_DanglingLineAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, resistor, capacitor := widgetA(t, env)

	// Simulate a row left behind by an older schema without foreign keys.
	_, err := env.db.ExecContext(ctx, `PRAGMA foreign_keys = OFF`)
	require.NoError(t, err)
	_, err = env.db.ExecContext(ctx, `DELETE FROM transactions WHERE item_id = ?`, capacitor)
	require.NoError(t, err)
	_, err = env.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, capacitor)
	require.NoError(t, err)
	_, err = env.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	bom, err := env.boms.Get(ctx, bomID)
	require.NoError(t, err)
	assert.Zero(t, bom.MaxBuilds)

	_, err = env.boms.Execute(ctx, env.admin, bomID, "P", 1)
	var insufficient *domain.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortfalls, 1)
	assert.True(t, insufficient.Shortfalls[0].Missing)
	assert.Equal(t, capacitor, insufficient.Shortfalls[0].ItemID)

	assert.EqualValues(t, 10, env.item(t, resistor).TotalQty)
}

func TestBOMDelete_KeepsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bomID, _, _ := widgetA(t, env)
	_, err := env.boms.Execute(ctx, env.admin, bomID, "Batch", 1)
	require.NoError(t, err)

	require.NoError(t, env.boms.Delete(ctx, env.admin, bomID))

	var nf *domain.NotFoundError
	_, err = env.boms.Get(ctx, bomID)
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, env.boms.Delete(ctx, env.admin, bomID), &nf)

	assert.Len(t, env.history(t, store.TransactionFilter{Type: domain.TransactionOut}), 2)
}
