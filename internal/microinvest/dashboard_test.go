package microinvest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distributor.app/internal/auth"
)

func TestDashboardWindow(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name     string
		q        DashboardQuery
		from, to time.Time
		err      error
	}{
		{name: "default week", q: DashboardQuery{}, from: now.AddDate(0, 0, -7), to: now},
		{name: "quarter", q: DashboardQuery{Period: PeriodQuarter}, from: now.AddDate(0, 0, -90), to: now},
		{name: "year", q: DashboardQuery{Period: PeriodYear}, from: now.AddDate(0, 0, -365), to: now},
		{
			name: "custom covers the end day",
			q:    DashboardQuery{Period: PeriodCustom, StartDate: "2025-01-01", EndDate: "2025-01-31"},
			from: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{name: "custom without end", q: DashboardQuery{Period: PeriodCustom, StartDate: "2025-01-01"}, err: auth.ErrInvalidInput},
		{name: "unknown period", q: DashboardQuery{Period: "2w"}, err: auth.ErrInvalidInput},
		{name: "reversed range", q: DashboardQuery{Period: PeriodCustom, StartDate: "2025-02-01", EndDate: "2025-01-01"}, err: auth.ErrInvalidRange},
		{name: "bad date", q: DashboardQuery{StartDate: "1/1/2025"}, err: auth.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to, err := tc.q.Window(now)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.from.Equal(from), "from %s", from)
			assert.True(t, tc.to.Equal(to), "to %s", to)
		})
	}
}

func TestDashboardQueryScope(t *testing.T) {
	scoped := DashboardQuery{}.Scope(viewer(7, 0))
	owner, ok := scoped.Owner()
	require.True(t, ok)
	assert.Equal(t, int64(7), owner)

	_, ok = scoped.Scope(viewer(8, 3)).Owner()
	assert.False(t, ok)
}

func TestDashboardScopedAggregates(t *testing.T) {
	c, mock := newMockClient(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	from := now.AddDate(0, 0, -7)
	args := []driver.Value{sql.Named("oper_type", operTypeSale), sql.Named("start_date", from), sql.Named("end_date", now),
		sql.Named("owner_id", int64(7))}
	scopedWhere := regexp.QuoteMeta(`AND o.OperType = @oper_type AND o.Date >= @start_date AND o.Date < @end_date AND o.UserID = @owner_id`)

	mock.ExpectQuery(`(?s)` + regexp.QuoteMeta(`SELECT COUNT(*), SUM(o.Qtty), SUM(o.PriceOut * o.Qtty)`) + `.*` + scopedWhere).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"count", "qtty", "revenue"}).AddRow(3, 6.0, 900.0))
	mock.ExpectQuery(`(?s)JOIN dbo.Partners t ON o.PartnerID = t.ID.*` + scopedWhere + `.*ORDER BY total DESC`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Company", "total"}).AddRow(5, "Acme", 600.0))
	mock.ExpectQuery(`JOIN dbo.Goods t ON o.GoodID = t.ID`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Name", "total"}))
	mock.ExpectQuery(scopedWhere + ` ORDER BY o.Date DESC OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY`).
		WithArgs(args...).
		WillReturnRows(sqlmock.NewRows(operationCols).
			AddRow(100, 2, "Sale", now.Add(-time.Hour), 2.0, 7, "Cashier", 5, "Acme", 1, "Milk", 300.0, 210.0))

	q := DashboardQuery{}.Scope(viewer(7, 0))
	d, err := c.Dashboard(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, PeriodWeek, d.Period)
	assert.Equal(t, int64(3), d.TotalSales)
	assert.InDelta(t, 6.0, d.TotalQuantity, 0.001)
	assert.InDelta(t, 900.0, d.TotalRevenue, 0.001)
	require.NotNil(t, d.TopPartner)
	assert.Equal(t, TopEntity{ID: 5, Name: "Acme", Value: 600}, *d.TopPartner)
	assert.Nil(t, d.TopGood, "no sales of any good yields no top good")
	require.Len(t, d.RecentOperations, 1)

	masked := MaskOperations(d.RecentOperations, viewer(7, 0))
	assert.Nil(t, masked[0].PriceIn)
}

func TestDashboardEmptyWindowForElevatedViewer(t *testing.T) {
	c, mock := newMockClient(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	from, to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	args := []driver.Value{sql.Named("oper_type", operTypeSale), sql.Named("start_date", from), sql.Named("end_date", to)}

	mock.ExpectQuery(`SELECT COUNT`).WithArgs(args...).
		WillReturnRows(sqlmock.NewRows([]string{"count", "qtty", "revenue"}).AddRow(0, nil, nil))
	mock.ExpectQuery(`JOIN dbo.Partners`).WithArgs(args...).WillReturnRows(sqlmock.NewRows([]string{"ID", "Company", "total"}))
	mock.ExpectQuery(`JOIN dbo.Goods`).WithArgs(args...).WillReturnRows(sqlmock.NewRows([]string{"ID", "Name", "total"}))
	mock.ExpectQuery(`ORDER BY o.Date DESC`).WithArgs(args...).WillReturnRows(sqlmock.NewRows(operationCols))

	q := DashboardQuery{Period: PeriodCustom, StartDate: "2025-01-01", EndDate: "2025-01-01"}.Scope(viewer(8, 3))
	d, err := c.Dashboard(context.Background(), q)
	require.NoError(t, err)
	assert.Zero(t, d.TotalSales)
	assert.Zero(t, d.TotalRevenue)
	assert.Nil(t, d.TopPartner)
	assert.NotNil(t, d.RecentOperations)
	assert.Empty(t, d.RecentOperations)
}

func TestDashboardRejectsBeforeQuery(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.Dashboard(context.Background(), DashboardQuery{Period: "forever"})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}
