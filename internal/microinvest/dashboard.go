package microinvest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"distributor.app/internal/auth"
)

// Dashboard periods.
const (
	PeriodWeek    = "7d"
	PeriodQuarter = "3m"
	PeriodYear    = "1y"
	PeriodCustom  = "custom"
)

const (
	operTypeSale = 2
	recentSales  = 5
)

// DashboardQuery selects the sales window summarised by Dashboard.
type DashboardQuery struct {
	Period    string
	StartDate string
	EndDate   string

	ownerID *int64
}

// Scope restricts q to the viewer's own sales unless the viewer is elevated.
func (q DashboardQuery) Scope(viewer auth.PrincipalWithMapping) DashboardQuery {
	if auth.IsElevatedExternalLevel(viewer.UserLevel) {
		q.ownerID = nil
		return q
	}
	own := viewer.ExternalID()
	q.ownerID = &own
	return q
}

// Owner reports the user id forced by Scope, if any.
func (q DashboardQuery) Owner() (int64, bool) {
	if q.ownerID == nil {
		return 0, false
	}
	return *q.ownerID, true
}

// Window returns the half-open [from, to) interval for q. Preset periods end
// at now; a custom period covers StartDate through the whole of EndDate.
func (q DashboardQuery) Window(now time.Time) (from, to time.Time, err error) {
	if err := auth.ValidateDateRange(q.StartDate, q.EndDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	switch q.Period {
	case "", PeriodWeek:
		return now.AddDate(0, 0, -7), now, nil
	case PeriodQuarter:
		return now.AddDate(0, 0, -90), now, nil
	case PeriodYear:
		return now.AddDate(0, 0, -365), now, nil
	case PeriodCustom:
		start, _ := auth.ParseDate(q.StartDate)
		end, _ := auth.ParseDate(q.EndDate)
		if start.IsZero() || end.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: custom period needs start_date and end_date", auth.ErrInvalidInput)
		}
		return start, end.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period must be one of 7d, 3m, 1y, custom", auth.ErrInvalidInput)
	}
}

// TopEntity is the best selling partner or good of a window.
type TopEntity struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Dashboard summarises sales over a window.
type Dashboard struct {
	Period           string      `json:"period"`
	From             time.Time   `json:"start_date"`
	To               time.Time   `json:"end_date"`
	TotalSales       int64       `json:"total_sales"`
	TotalQuantity    float64     `json:"total_quantity"`
	TotalRevenue     float64     `json:"total_revenue"`
	TopPartner       *TopEntity  `json:"top_partner"`
	TopGood          *TopEntity  `json:"top_good"`
	RecentOperations []Operation `json:"recent_operations"`
}

// Dashboard aggregates sales for q. Call Scope before passing a
// viewer-supplied query; cost prices of RecentOperations are not masked.
func (c *Client) Dashboard(ctx context.Context, q DashboardQuery) (Dashboard, error) {
	from, to, err := q.Window(c.now())
	if err != nil {
		return Dashboard{}, err
	}
	period := q.Period
	if period == "" {
		period = PeriodWeek
	}
	d := Dashboard{Period: period, From: from, To: to, RecentOperations: []Operation{}}

	where := ` AND o.OperType = @oper_type AND o.Date >= @start_date AND o.Date < @end_date`
	args := []any{sql.Named("oper_type", operTypeSale), sql.Named("start_date", from), sql.Named("end_date", to)}
	if q.ownerID != nil {
		where += ` AND o.UserID = @owner_id`
		args = append(args, sql.Named("owner_id", *q.ownerID))
	}

	var qtty, revenue sql.NullFloat64
	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(o.Qtty), SUM(o.PriceOut * o.Qtty) FROM dbo.Operations o WHERE 1 = 1`+where,
		args...).Scan(&d.TotalSales, &qtty, &revenue)
	if err != nil {
		return Dashboard{}, fmt.Errorf("microinvest: dashboard totals: %w", err)
	}
	d.TotalQuantity, d.TotalRevenue = qtty.Float64, revenue.Float64

	if d.TopPartner, err = c.top(ctx, "dbo.Partners", "o.PartnerID", "Company", where, args); err != nil {
		return Dashboard{}, err
	}
	if d.TopGood, err = c.top(ctx, "dbo.Goods", "o.GoodID", "Name", where, args); err != nil {
		return Dashboard{}, err
	}

	recent := strings.Replace(operationQuery, "WHERE ot.BG IS NOT NULL", "WHERE 1 = 1", 1) + where +
		fmt.Sprintf(` ORDER BY o.Date DESC OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY`, recentSales)
	rows, err := c.db.QueryContext(ctx, recent, args...)
	if err != nil {
		return Dashboard{}, fmt.Errorf("microinvest: dashboard recent sales: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return Dashboard{}, err
		}
		d.RecentOperations = append(d.RecentOperations, op)
	}
	if err := rows.Err(); err != nil {
		return Dashboard{}, fmt.Errorf("microinvest: dashboard recent sales: %w", err)
	}
	return d, nil
}

// top returns the entity of table with the highest revenue, or nil when the
// window has no sales.
func (c *Client) top(ctx context.Context, table, key, nameCol, where string, args []any) (*TopEntity, error) {
	query := fmt.Sprintf(`SELECT TOP 1 t.ID, t.%s, SUM(o.PriceOut * o.Qtty) AS total
FROM dbo.Operations o
JOIN %s t ON %s = t.ID
WHERE 1 = 1%s
GROUP BY t.ID, t.%s
ORDER BY total DESC`, nameCol, table, key, where, nameCol)
	var (
		e     TopEntity
		name  sql.NullString
		total sql.NullFloat64
	)
	err := c.db.QueryRowContext(ctx, query, args...).Scan(&e.ID, &name, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("microinvest: dashboard top %s: %w", table, err)
	}
	e.Name, e.Value = name.String, total.Float64
	return &e, nil
}
