package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"upkeep/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func dbErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

// --- SiteRepository Tests ---

func TestSiteRepository_Create_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSiteRepository(db)

	site := &types.Site{
		ID:             "site_test1",
		OrganizationID: "org_1",
		Name:           "Plant 7",
		CreatedAt:      time.Now().UTC(),
	}

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Create(context.Background(), site)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestSiteRepository_Create_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSiteRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Create(context.Background(), &types.Site{ID: "site_1", OrganizationID: "org_1", Name: "x"})
	assert.Equal(t, types.ErrCodeInternalDB, dbErrCode(t, err))
}

func TestSiteRepository_Exists(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSiteRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*(dest[0].(*bool)) = true
			return nil
		}})

	exists, err := repo.Exists(context.Background(), "org_1", "site_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSiteRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewSiteRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(context.Background(), "org_1", "site_missing")
	assert.Equal(t, types.ErrCodeNotFoundSite, dbErrCode(t, err))
}

func TestAssetRepository_Delete_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewAssetRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("DELETE 0"), nil)

	err := repo.Delete(context.Background(), "org_1", "ast_missing")
	assert.Equal(t, types.ErrCodeNotFoundAsset, dbErrCode(t, err))
}

// --- InviteRepository Tests ---

func TestInviteRepository_Create_DuplicateEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewInviteRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &types.UserInvite{
		ID:             "inv_1",
		OrganizationID: "org_1",
		Email:          "tech@example.com",
		Role:           types.RoleMember,
		ExpiresAt:      time.Now().Add(14 * 24 * time.Hour),
	})
	assert.Equal(t, types.ErrCodeConflictDuplicate, dbErrCode(t, err))
}

// --- Helper Tests ---

func TestNilIfEmpty(t *testing.T) {
	assert.Nil(t, nilIfEmpty(""))
	require.NotNil(t, nilIfEmpty("dep_1"))
	assert.Equal(t, "dep_1", *nilIfEmpty("dep_1"))
}

func TestNilIfZeroTime(t *testing.T) {
	assert.Nil(t, nilIfZeroTime(time.Time{}))
	now := time.Now().UTC()
	require.NotNil(t, nilIfZeroTime(now))
	assert.Equal(t, now, *nilIfZeroTime(now))
}
