package service

import (
	"context"
	"testing"

	"stockroom/internal/apperr"
	"stockroom/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAssignsDenseSequentialIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	for i, sku := range []string{"SKU-A", "SKU-B", "SKU-C"} {
		p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: sku, Name: "Item " + sku})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), p.SequentialID)
	}
}

func TestDeleteRecyclesSequentialID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	var ids []string
	for _, sku := range []string{"SKU-A", "SKU-B", "SKU-C"} {
		p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: sku, Name: "Item " + sku})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	require.NoError(t, f.products.Delete(ctx, actor, ids[1])) // frees 2

	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-D", Name: "Item D"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.SequentialID, "freed ID is reused before a fresh one")

	p, err = f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-E", Name: "Item E"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.SequentialID, "counter never moves backwards")
}

func TestDeleteRefusedWhileHandoversOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A", StockQuantity: 5})
	require.NoError(t, err)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{ProductID: p.ID, Quantity: 1})
	require.NoError(t, err)

	err = f.products.Delete(ctx, actor, p.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	// Once the handover reaches a terminal state the product can go.
	_, err = f.handovers.Reject(ctx, actor, h.ID, RejectHandoverRequest{Reason: "cancelled"})
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(ctx, actor, p.ID))
}

func TestCreateDuplicateSKUIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	_, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A"})
	require.NoError(t, err)

	_, err = f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A again"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	// The failed create must not burn or leak an ID: the next product gets 2.
	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-B", Name: "Item B"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.SequentialID)
}

func TestAdjustStockGuardsAgainstNegative(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A", StockQuantity: 3})
	require.NoError(t, err)

	_, err = f.products.AdjustStock(ctx, actor, p.ID, AdjustStockRequest{Delta: -5, Reason: "shrinkage"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))

	got, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity)

	got, err = f.products.AdjustStock(ctx, actor, p.ID, AdjustStockRequest{Delta: -3, Reason: "used up"})
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)

	_, err = f.products.AdjustStock(ctx, actor, p.ID, AdjustStockRequest{Delta: 0})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestAdjustStockWritesMovements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A", StockQuantity: 5})
	require.NoError(t, err)

	_, err = f.products.AdjustStock(ctx, actor, p.ID, AdjustStockRequest{Delta: 10, Reason: "delivery"})
	require.NoError(t, err)
	_, err = f.products.AdjustStock(ctx, actor, p.ID, AdjustStockRequest{Delta: -2, Reason: "damaged"})
	require.NoError(t, err)

	movements, total, err := f.products.Movements(ctx, p.ID, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total, "initial stock plus two adjustments")
	require.Len(t, movements, 3)

	// Newest first.
	assert.Equal(t, model.MovementUsage, movements[0].MovementType)
	assert.Equal(t, 13, movements[0].StockAfter)
}

func TestUpdateKeepsSKUAndSequentialImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	p, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "Item A"})
	require.NoError(t, err)

	newName := "Renamed"
	minLevel := 4
	got, err := f.products.Update(ctx, actor, p.ID, UpdateProductRequest{Name: &newName, MinStockLevel: &minLevel})
	require.NoError(t, err)

	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 4, got.MinStockLevel)
	assert.Equal(t, "SKU-A", got.SKU)
	assert.Equal(t, p.SequentialID, got.SequentialID)
}

func TestSequenceSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	p1, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "A"})
	require.NoError(t, err)
	_, err = f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-B", Name: "B"})
	require.NoError(t, err)
	require.NoError(t, f.products.Delete(ctx, actor, p1.ID))

	snap, err := f.products.Sequence(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Counter)
	assert.Equal(t, int64(1), snap.RecycledCount)
	assert.Equal(t, int64(1), snap.NextFresh)
}

func TestListOrdersBySequentialID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()

	for _, sku := range []string{"SKU-C", "SKU-A", "SKU-B"} {
		_, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: sku, Name: "Item " + sku})
		require.NoError(t, err)
	}

	list, total, err := f.products.List(ctx, 1, 10, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 3)
	assert.Equal(t, int64(1), list[0].SequentialID)
	assert.Equal(t, int64(3), list[2].SequentialID)
}
