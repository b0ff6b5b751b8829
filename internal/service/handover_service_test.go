package service

import (
	"context"
	"testing"

	"stockroom/internal/allocator"
	"stockroom/internal/apperr"
	"stockroom/internal/model"
	"stockroom/internal/repository"
	"stockroom/internal/testutil"
	"stockroom/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	handovers HandoverService
	products  ProductService
	alloc     *allocator.Service

	employee *model.User
	manager  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	log := logger.Nop()

	alloc, err := allocator.New(db, log)
	require.NoError(t, err)

	txManager := repository.NewTransactionManager(db)
	productRepo := repository.NewProductRepository(db)
	handoverRepo := repository.NewHandoverRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	return &fixture{
		db:        db,
		handovers: NewHandoverService(handoverRepo, productRepo, movementRepo, auditRepo, txManager, nil, log),
		products:  NewProductService(productRepo, handoverRepo, movementRepo, auditRepo, alloc, txManager, nil, log),
		alloc:     alloc,
		employee:  testutil.SeedUser(t, db, "employee", model.RoleEmployee),
		manager:   testutil.SeedUser(t, db, "manager", model.RoleManager),
	}
}

func (f *fixture) stockOf(t *testing.T, productID string) int {
	t.Helper()
	var product model.Product
	require.NoError(t, f.db.First(&product, "id = ?", productID).Error)
	return product.StockQuantity
}

func TestHandoverLifecycleConservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-1", 10)

	// Request does not touch stock.
	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
		Reason:    "site visit",
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverPending), h.Status)
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))

	// Approval debits.
	h, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverHandedOver), h.Status)
	assert.NotNil(t, h.HandedOverAt)
	assert.Equal(t, 7, f.stockOf(t, product.ID.String()))

	// Return credits the full quantity back.
	h, err = f.handovers.Return(ctx, f.employee.ID.String(), false, h.ID, ReturnHandoverRequest{Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverReturned), h.Status)
	assert.NotNil(t, h.ReturnedAt)
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))

	// Direct handover debits on creation.
	h, err = f.handovers.DirectHandover(ctx, f.manager.ID.String(), DirectHandoverRequest{
		ProductID:  product.ID.String(),
		EmployeeID: f.employee.ID.String(),
		Quantity:   4,
	})
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverHandedOver), h.Status)
	assert.Equal(t, 6, f.stockOf(t, product.ID.String()))

	// Deleting a handed_over record credits the outstanding units.
	require.NoError(t, f.handovers.Delete(ctx, f.manager.ID.String(), h.ID))
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))
}

func TestApproveTwiceDebitsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-2", 10)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	require.NoError(t, err)

	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.NoError(t, err)

	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	assert.Equal(t, 8, f.stockOf(t, product.ID.String()), "second approval must not debit again")
}

func TestApproveWithInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-3", 2)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  5,
	})
	require.NoError(t, err)

	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))

	assert.Equal(t, 2, f.stockOf(t, product.ID.String()))

	// The failed transaction rolled back the status flip too.
	got, err := f.handovers.GetByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverPending), got.Status)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-4", 5)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  1,
	})
	require.NoError(t, err)

	_, err = f.handovers.Reject(ctx, f.manager.ID.String(), h.ID, RejectHandoverRequest{Reason: "   "})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	h2, err := f.handovers.Reject(ctx, f.manager.ID.String(), h.ID, RejectHandoverRequest{Reason: "not needed"})
	require.NoError(t, err)
	assert.Equal(t, string(model.HandoverRejected), h2.Status)
	assert.Equal(t, "not needed", h2.RejectionReason)
	assert.Nil(t, h2.HandedOverAt)
	assert.Equal(t, 5, f.stockOf(t, product.ID.String()), "rejection never touches stock")
}

func TestRejectedHandoverCannotBeApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-5", 5)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  1,
	})
	require.NoError(t, err)

	_, err = f.handovers.Reject(ctx, f.manager.ID.String(), h.ID, RejectHandoverRequest{Reason: "no"})
	require.NoError(t, err)

	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestReturnMustMatchHandedQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-6", 10)

	h, err := f.handovers.DirectHandover(ctx, f.manager.ID.String(), DirectHandoverRequest{
		ProductID:  product.ID.String(),
		EmployeeID: f.employee.ID.String(),
		Quantity:   4,
	})
	require.NoError(t, err)

	_, err = f.handovers.Return(ctx, f.employee.ID.String(), false, h.ID, ReturnHandoverRequest{Quantity: 2})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, 6, f.stockOf(t, product.ID.String()))
}

func TestReturnByAnotherEmployeeIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-7", 10)
	other := testutil.SeedUser(t, f.db, "other", model.RoleEmployee)

	h, err := f.handovers.DirectHandover(ctx, f.manager.ID.String(), DirectHandoverRequest{
		ProductID:  product.ID.String(),
		EmployeeID: f.employee.ID.String(),
		Quantity:   1,
	})
	require.NoError(t, err)

	_, err = f.handovers.Return(ctx, other.ID.String(), false, h.ID, ReturnHandoverRequest{Quantity: 1})
	require.Error(t, err)

	// A manager may return on the employee's behalf.
	_, err = f.handovers.Return(ctx, f.manager.ID.String(), true, h.ID, ReturnHandoverRequest{Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))
}

func TestDeletePendingLeavesStockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-8", 10)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
	})
	require.NoError(t, err)

	require.NoError(t, f.handovers.Delete(ctx, f.manager.ID.String(), h.ID))
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))

	_, err = f.handovers.GetByID(ctx, h.ID)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestDeleteTerminalHandoversLeaveStockAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-12", 10)

	// returned: the credit already happened on return, delete must not repeat it.
	h, err := f.handovers.DirectHandover(ctx, f.manager.ID.String(), DirectHandoverRequest{
		ProductID:  product.ID.String(),
		EmployeeID: f.employee.ID.String(),
		Quantity:   3,
	})
	require.NoError(t, err)
	_, err = f.handovers.Return(ctx, f.employee.ID.String(), false, h.ID, ReturnHandoverRequest{Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 10, f.stockOf(t, product.ID.String()))

	require.NoError(t, f.handovers.Delete(ctx, f.manager.ID.String(), h.ID))
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))

	// rejected: nothing was ever debited, delete must not credit.
	h, err = f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  2,
	})
	require.NoError(t, err)
	_, err = f.handovers.Reject(ctx, f.manager.ID.String(), h.ID, RejectHandoverRequest{Reason: "not needed"})
	require.NoError(t, err)

	require.NoError(t, f.handovers.Delete(ctx, f.manager.ID.String(), h.ID))
	assert.Equal(t, 10, f.stockOf(t, product.ID.String()))
}

func TestMovementLedgerTracksEveryStockChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-9", 10)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: product.ID.String(),
		Quantity:  3,
	})
	require.NoError(t, err)
	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.NoError(t, err)
	_, err = f.handovers.Return(ctx, f.employee.ID.String(), false, h.ID, ReturnHandoverRequest{Quantity: 3})
	require.NoError(t, err)

	var movements []model.StockMovement
	require.NoError(t, f.db.Where("product_id = ?", product.ID).Order("created_at asc").Find(&movements).Error)
	require.Len(t, movements, 2)

	assert.Equal(t, model.MovementHandoverOut, movements[0].MovementType)
	assert.Equal(t, -3, movements[0].QuantityChanged)
	assert.Equal(t, 7, movements[0].StockAfter)

	assert.Equal(t, model.MovementReturnIn, movements[1].MovementType)
	assert.Equal(t, 3, movements[1].QuantityChanged)
	assert.Equal(t, 10, movements[1].StockAfter)
}

func TestListFiltersByStatusAndEmployee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-10", 20)
	other := testutil.SeedUser(t, f.db, "colleague", model.RoleEmployee)

	_, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{ProductID: product.ID.String(), Quantity: 1})
	require.NoError(t, err)
	h2, err := f.handovers.Request(ctx, other.ID.String(), RequestHandoverRequest{ProductID: product.ID.String(), Quantity: 2})
	require.NoError(t, err)
	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h2.ID, ApproveHandoverRequest{})
	require.NoError(t, err)

	pending, total, err := f.handovers.List(ctx, HandoverListFilter{Status: string(model.HandoverPending)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, pending, 1)
	assert.Equal(t, f.employee.ID.String(), pending[0].EmployeeID)

	mine, total, err := f.handovers.List(ctx, HandoverListFilter{EmployeeID: other.ID.String()})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, mine, 1)
	assert.Equal(t, string(model.HandoverHandedOver), mine[0].Status)

	_, _, err = f.handovers.List(ctx, HandoverListFilter{Status: "bogus"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestRequestUnknownProductIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{
		ProductID: "2b1f8a37-9c1e-4a51-93dc-000000000000",
		Quantity:  1,
	})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestAuditTrailWrittenForTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := testutil.SeedProduct(t, f.db, 1, "WIDGET-11", 10)

	h, err := f.handovers.Request(ctx, f.employee.ID.String(), RequestHandoverRequest{ProductID: product.ID.String(), Quantity: 2})
	require.NoError(t, err)
	_, err = f.handovers.Approve(ctx, f.manager.ID.String(), h.ID, ApproveHandoverRequest{})
	require.NoError(t, err)

	var actions []string
	require.NoError(t, f.db.Model(&model.AuditLog{}).Order("created_at asc").Pluck("action", &actions).Error)
	assert.Equal(t, []string{model.ActionRequestHandover, model.ActionApproveHandover}, actions)
}
