package service

import (
	"context"
	"testing"

	"stockroom/internal/apperr"
	"stockroom/internal/model"
	"stockroom/internal/repository"
	"stockroom/internal/testutil"
	"stockroom/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUserServiceWithDB(t *testing.T) (UserService, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	svc := NewUserService(
		repository.NewUserRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db),
		logger.Nop(),
	)
	return svc, db
}

func newUserService(t *testing.T) UserService {
	t.Helper()
	svc, _ := newUserServiceWithDB(t)
	return svc
}

func TestCreateUserAndLogin(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, CreateUserRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	user, err := svc.CreateUser(ctx, admin.ID.String(), CreateUserRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "secret123",
		Role:     model.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleEmployee, user.Role)
	assert.Contains(t, user.Permissions, model.PermHandoverRequest)
	assert.NotContains(t, user.Permissions, model.PermHandoverManage)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	_, err = svc.Login(ctx, LoginUserRequest{Email: "alice@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestCreateUserRejectsBadInput(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)
	actor := admin.ID.String()

	_, err = svc.CreateUser(ctx, actor, CreateUserRequest{
		Username: "bob", Email: "bob@example.com", Password: "secret123", Role: "superuser",
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateUser(ctx, actor, CreateUserRequest{
		Username: "bob", Email: "not-an-email", Password: "secret123", Role: model.RoleEmployee,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.CreateUser(ctx, actor, CreateUserRequest{
		Username: "root", Email: "other@example.com", Password: "secret123", Role: model.RoleEmployee,
	})
	assert.True(t, apperr.IsKind(err, apperr.KindConflict), "duplicate username")
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// The consumed token is gone.
	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	tokens, err := svc.Login(ctx, LoginUserRequest{Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, tokens.RefreshToken))

	_, err = svc.Refresh(ctx, tokens.RefreshToken)
	require.Error(t, err)
}

func TestEnsureAdminOnlyOnEmptyDatabase(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	_, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root2", Email: "root2@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestUpdateUserRoleAndConflicts(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)
	actor := admin.ID.String()

	alice, err := svc.CreateUser(ctx, actor, CreateUserRequest{Username: "alice", Email: "alice@example.com", Password: "secret123", Role: model.RoleEmployee})
	require.NoError(t, err)

	updated, err := svc.UpdateUser(ctx, actor, alice.ID.String(), UpdateUserRequest{Role: model.RoleManager})
	require.NoError(t, err)
	assert.Equal(t, model.RoleManager, updated.Role)
	assert.Contains(t, updated.Permissions, model.PermHandoverManage)

	_, err = svc.UpdateUser(ctx, actor, alice.ID.String(), UpdateUserRequest{Username: "root"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestCreateUserAuditCommitsWithInsert(t *testing.T) {
	svc, db := newUserServiceWithDB(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)
	actor := admin.ID.String()

	alice, err := svc.CreateUser(ctx, actor, CreateUserRequest{Username: "alice", Email: "alice@example.com", Password: "secret123", Role: model.RoleEmployee})
	require.NoError(t, err)

	var entry model.AuditLog
	require.NoError(t, db.First(&entry, "action = ?", model.ActionCreateUser).Error)
	assert.Equal(t, alice.ID.String(), entry.EntityID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, actor, entry.UserID.String())

	// A failed create leaves no half-committed audit row behind.
	_, err = svc.CreateUser(ctx, actor, CreateUserRequest{Username: "alice", Email: "alice2@example.com", Password: "secret123", Role: model.RoleEmployee})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Where("action = ?", model.ActionCreateUser).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeleteUser(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, CreateUserRequest{Username: "root", Email: "root@example.com", Password: "secret123"})
	require.NoError(t, err)
	actor := admin.ID.String()

	alice, err := svc.CreateUser(ctx, actor, CreateUserRequest{Username: "alice", Email: "alice@example.com", Password: "secret123", Role: model.RoleEmployee})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteUser(ctx, actor, alice.ID.String()))

	_, err = svc.GetUserByID(ctx, alice.ID.String())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	err = svc.DeleteUser(ctx, actor, alice.ID.String())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
