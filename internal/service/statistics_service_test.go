package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDashboardAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.manager.ID.String()
	stats := NewStatisticsService(f.db, f.alloc)

	p1, err := f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-A", Name: "A", StockQuantity: 10, MinStockLevel: 2})
	require.NoError(t, err)
	_, err = f.products.Create(ctx, actor, CreateProductRequest{SKU: "SKU-B", Name: "B", StockQuantity: 1, MinStockLevel: 5})
	require.NoError(t, err)

	_, err = f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{ProductID: p1.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = f.handovers.DirectHandover(ctx, actor, DirectHandoverRequest{
		ProductID:  p1.ID,
		EmployeeID: f.employee.ID.String(),
		Quantity:   3,
	})
	require.NoError(t, err)

	dashboard, err := stats.GetDashboard(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, dashboard.TotalProducts)
	assert.EqualValues(t, 8, dashboard.TotalStockUnits, "10-3 handed over, plus 1")
	assert.EqualValues(t, 1, dashboard.LowStockProducts)
	assert.EqualValues(t, 1, dashboard.PendingHandovers)
	assert.EqualValues(t, 1, dashboard.ActiveHandovers)
	assert.EqualValues(t, 3, dashboard.OutstandingUnits)
	assert.EqualValues(t, 2, dashboard.SequenceAllocator.Counter)

	require.Len(t, dashboard.TopMovedProducts, 1)
	assert.Equal(t, "SKU-A", dashboard.TopMovedProducts[0].ProductSKU)
	assert.EqualValues(t, 3, dashboard.TopMovedProducts[0].TotalHanded)
}
