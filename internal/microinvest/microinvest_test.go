package microinvest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributor.app/internal/auth"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

func viewer(externalID int64, level int) auth.PrincipalWithMapping {
	return auth.PrincipalWithMapping{
		Principal: auth.Principal{Account: &auth.Account{ID: 1}},
		Mapping:   &auth.IdentityMapping{ID: 1, AccountID: 1, ExternalID: externalID, UserLevel: level},
		UserLevel: level,
	}
}

func TestLookupUser(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()

	mock.ExpectQuery("FROM dbo.Users WHERE ID = @id").
		WithArgs(sql.Named("id", int64(7))).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Name", "UserLevel"}).AddRow(7, "Cashier", 3))
	u, err := c.LookupUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, auth.ExternalUser{ID: 7, Name: "Cashier", UserLevel: 3}, u)

	mock.ExpectQuery("FROM dbo.Users").
		WithArgs(sql.Named("id", int64(8))).
		WillReturnError(sql.ErrNoRows)
	_, err = c.LookupUser(ctx, 8)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	mock.ExpectQuery("FROM dbo.Users").WillReturnError(errors.New("login failed for user 'sa'"))
	_, err = c.LookupUser(ctx, 9)
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrNotFound)
}

var productCols = []string{"ID", "Code", "bar_code", "catalog", "name", "measure", "PriceIn", "price_out",
	"MinQtty", "NormalQtty", "GroupID", "Deleted"}

func TestListProductsFiltersAndPaging(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`g.Name LIKE @name AND g.Code = @code ORDER BY g.ID OFFSET @offset`).
		WithArgs(sql.Named("name", "%milk%"), sql.Named("code", "M1"), sql.Named("offset", 10), sql.Named("page_size", 5)).
		WillReturnRows(sqlmock.NewRows(productCols).
			AddRow(1, "M1", "4870001", nil, "Milk", "l", 310.5, 450.0, 1.0, 10.0, 4, false).
			AddRow(2, "M1", nil, nil, "Milk 2", nil, nil, nil, nil, nil, nil, true))

	products, err := c.ListProducts(context.Background(), ProductFilter{Name: "milk", Code: "M1", Page: 3, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "4870001", products[0].BarCode)
	require.NotNil(t, products[0].PriceIn)
	assert.InDelta(t, 310.5, *products[0].PriceIn, 0.001)
	assert.Nil(t, products[1].PriceIn)
	assert.True(t, products[1].Deleted)
}

func TestProductFilterNormalize(t *testing.T) {
	f, err := ProductFilter{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 20, f.PageSize)

	_, err = ProductFilter{PageSize: maxPageSize + 1}.Normalize()
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
	_, err = ProductFilter{Page: -1}.Normalize()
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestMaskProducts(t *testing.T) {
	price := 10.0
	fresh := func() []Product { return []Product{{ID: 1, PriceIn: &price}} }

	assert.Nil(t, MaskProducts(fresh(), viewer(7, 0))[0].PriceIn)
	assert.Nil(t, MaskProducts(fresh(), viewer(7, 1))[0].PriceIn)
	assert.NotNil(t, MaskProducts(fresh(), viewer(7, 3))[0].PriceIn)
	assert.Nil(t, MaskProducts(fresh(), nil)[0].PriceIn)
}

func TestOperationFilterValidate(t *testing.T) {
	_, err := OperationFilter{}.Validate()
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	_, err = OperationFilter{GoodName: "Milk", StartDate: "2025-02-01", EndDate: "2025-01-01"}.Validate()
	assert.ErrorIs(t, err, auth.ErrInvalidRange)

	_, err = OperationFilter{GoodName: "Milk", StartDate: "01/02/2025"}.Validate()
	assert.ErrorIs(t, err, auth.ErrInvalidInput)

	f, err := OperationFilter{PartnerName: "Acme"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, 50, f.Limit)
}

func TestOperationFilterScope(t *testing.T) {
	other := int64(99)
	f := OperationFilter{UserID: &other, GoodName: "Milk"}

	scoped := f.Scope(viewer(7, 0))
	assert.Nil(t, scoped.UserID)
	require.NotNil(t, scoped.ownerID)
	assert.Equal(t, int64(7), *scoped.ownerID)

	elevated := f.Scope(viewer(8, 3))
	assert.Nil(t, elevated.ownerID)
	require.NotNil(t, elevated.UserID)
	assert.Equal(t, other, *elevated.UserID)
}

var operationCols = []string{"ID", "OperType", "BG", "Date", "Qtty", "UserID", "user_name", "PartnerID",
	"Company", "GoodID", "good_name", "PriceOut", "PriceIn"}

func TestListOperationsScopedToOwner(t *testing.T) {
	c, mock := newMockClient(t)
	when := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	other := int64(99)

	mock.ExpectQuery(`AND o.UserID = @owner_id AND g.Name = @good_name AND o.Date >= @start_date ORDER BY o.Date DESC`).
		WithArgs(sql.Named("owner_id", int64(7)), sql.Named("good_name", "Milk"), sql.Named("start_date", "2025-01-01"),
			sql.Named("offset", 0), sql.Named("limit", 50)).
		WillReturnRows(sqlmock.NewRows(operationCols).
			AddRow(100, 2, "Sale", when, 3.0, 7, "Cashier", 5, "Acme", 1, "Milk", 450.0, 310.0))

	f := OperationFilter{UserID: &other, GoodName: "Milk", StartDate: "2025-01-01"}.Scope(viewer(7, 0))
	ops, err := c.ListOperations(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, int64(7), ops[0].UserID)
	assert.Equal(t, "Sale", ops[0].Name)

	masked := MaskOperations(ops, viewer(7, 0))
	assert.Nil(t, masked[0].PriceIn)
	assert.NotNil(t, masked[0].PriceOut)
}

func TestListOperationsRejectsBeforeQuery(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.ListOperations(context.Background(), OperationFilter{StartDate: "2025-01-01"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

func TestGetOperationOwnership(t *testing.T) {
	c, mock := newMockClient(t)
	ctx := context.Background()
	when := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(operationCols).
			AddRow(100, 2, "Sale", when, 3.0, 8, "Manager", 5, "Acme", 1, "Milk", 450.0, 310.0)
	}

	mock.ExpectQuery(`WHERE o.ID = @id`).WithArgs(sql.Named("id", int64(100))).WillReturnRows(row())
	_, err := c.GetOperation(ctx, 100, viewer(7, 0))
	assert.ErrorIs(t, err, auth.ErrForbidden)

	mock.ExpectQuery(`WHERE o.ID = @id`).WithArgs(sql.Named("id", int64(100))).WillReturnRows(row())
	op, err := c.GetOperation(ctx, 100, viewer(9, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(8), op.UserID)

	mock.ExpectQuery(`WHERE o.ID = @id`).WithArgs(sql.Named("id", int64(101))).WillReturnRows(sqlmock.NewRows(operationCols))
	_, err = c.GetOperation(ctx, 101, viewer(9, 3))
	assert.ErrorIs(t, err, auth.ErrNotFound)
}
