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

// OperationFilter narrows an operation listing. At least one of the partner,
// good or operation-type filters must be set.
type OperationFilter struct {
	UserID      *int64
	PartnerID   *int64
	PartnerName string
	GoodID      *int64
	GoodName    string
	OperType    *int
	OperName    string
	StartDate   string
	EndDate     string
	Limit       int
	Offset      int

	// ownerID is forced by Scope for non-elevated viewers.
	ownerID *int64
}

// Scope restricts f to what viewer may see: non-elevated viewers only get
// their own operations and cannot pick another user.
func (f OperationFilter) Scope(viewer auth.PrincipalWithMapping) OperationFilter {
	if auth.IsElevatedExternalLevel(viewer.UserLevel) {
		f.ownerID = nil
		return f
	}
	own := viewer.ExternalID()
	f.ownerID = &own
	f.UserID = nil
	return f
}

// Owner reports the user id forced by Scope, if any.
func (f OperationFilter) Owner() (int64, bool) {
	if f.ownerID == nil {
		return 0, false
	}
	return *f.ownerID, true
}

// Validate applies defaults and checks the filter.
func (f OperationFilter) Validate() (OperationFilter, error) {
	if f.PartnerID == nil && f.PartnerName == "" && f.GoodID == nil && f.GoodName == "" &&
		f.OperType == nil && f.OperName == "" {
		return f, fmt.Errorf("%w: at least one query should be provided: partner_id, partner_name, good_id, good_name, oper_type, oper_name", auth.ErrInvalidInput)
	}
	if err := auth.ValidateDateRange(f.StartDate, f.EndDate); err != nil {
		return f, err
	}
	if f.Limit == 0 {
		f.Limit = 50
	}
	if f.Limit < 1 || f.Limit > 500 {
		return f, fmt.Errorf("%w: limit must be between 1 and 500", auth.ErrInvalidInput)
	}
	if f.Offset < 0 {
		return f, fmt.Errorf("%w: offset must be >= 0", auth.ErrInvalidInput)
	}
	return f, nil
}

// Operation is one sale, purchase or stock movement.
type Operation struct {
	ID          int64     `json:"operation_id"`
	Type        int       `json:"operation_type"`
	Name        string    `json:"operation_name"`
	Date        time.Time `json:"operation_date"`
	Qtty        float64   `json:"operation_qtty"`
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"user_name,omitempty"`
	PartnerID   int64     `json:"partner_id"`
	PartnerName string    `json:"partner_name,omitempty"`
	GoodID      int64     `json:"good_id"`
	GoodName    string    `json:"good_name,omitempty"`
	PriceOut    *float64  `json:"price_out,omitempty"`
	PriceIn     *float64  `json:"price_in,omitempty"`
}

const operationQuery = `
SELECT
	o.ID, o.OperType, ot.BG, o.Date, o.Qtty,
	o.UserID, u.Name, o.PartnerID, p.Company, o.GoodID, g.Name,
	o.PriceOut, o.PriceIn
FROM dbo.Operations o
LEFT JOIN dbo.Users u ON o.UserID = u.ID
LEFT JOIN dbo.Partners p ON o.PartnerID = p.ID
LEFT JOIN dbo.Goods g ON o.GoodID = g.ID
LEFT JOIN dbo.OperationType ot ON o.OperType = ot.ID
WHERE ot.BG IS NOT NULL`

// ListOperations returns operations matching f, newest first. Call Scope
// before passing a viewer-supplied filter.
func (c *Client) ListOperations(ctx context.Context, f OperationFilter) ([]Operation, error) {
	f, err := f.Validate()
	if err != nil {
		return nil, err
	}
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(operationQuery)
	add := func(clause, name string, v any) {
		q.WriteString(" AND " + clause + " @" + name)
		args = append(args, sql.Named(name, v))
	}
	if f.ownerID != nil {
		add("o.UserID =", "owner_id", *f.ownerID)
	}
	if f.UserID != nil {
		add("o.UserID =", "user_id", *f.UserID)
	}
	if f.PartnerID != nil {
		add("o.PartnerID =", "partner_id", *f.PartnerID)
	}
	if f.PartnerName != "" {
		add("p.Company =", "partner_name", f.PartnerName)
	}
	if f.GoodID != nil {
		add("o.GoodID =", "good_id", *f.GoodID)
	}
	if f.GoodName != "" {
		add("g.Name =", "good_name", f.GoodName)
	}
	if f.OperType != nil {
		add("o.OperType =", "oper_type", *f.OperType)
	}
	if f.OperName != "" {
		add("ot.BG =", "oper_name", f.OperName)
	}
	if f.StartDate != "" {
		add("o.Date >=", "start_date", f.StartDate)
	}
	if f.EndDate != "" {
		add("o.Date <=", "end_date", f.EndDate)
	}
	q.WriteString(` ORDER BY o.Date DESC OFFSET @offset ROWS FETCH NEXT @limit ROWS ONLY`)
	args = append(args, sql.Named("offset", f.Offset), sql.Named("limit", f.Limit))

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("microinvest: list operations: %w", err)
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("microinvest: list operations: %w", err)
	}
	return out, nil
}

// GetOperation returns one operation. Non-elevated viewers may only read
// their own operations.
func (c *Client) GetOperation(ctx context.Context, id int64, viewer auth.PrincipalWithMapping) (Operation, error) {
	row := c.db.QueryRowContext(ctx, strings.Replace(operationQuery, "WHERE ot.BG IS NOT NULL", "WHERE o.ID = @id", 1),
		sql.Named("id", id))
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Operation{}, fmt.Errorf("%w: operation %d not found", auth.ErrNotFound, id)
	}
	if err != nil {
		return Operation{}, err
	}
	if !auth.IsElevatedExternalLevel(viewer.UserLevel) && op.UserID != viewer.ExternalID() {
		return Operation{}, fmt.Errorf("%w: you do not have permission to view this operation", auth.ErrForbidden)
	}
	return op, nil
}

// MaskOperations clears cost prices unless viewer may see them.
func MaskOperations(ops []Operation, viewer auth.CostPriceViewer) []Operation {
	if auth.CanViewCostPrice(viewer) {
		return ops
	}
	for i := range ops {
		ops[i].PriceIn = nil
	}
	return ops
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (Operation, error) {
	var (
		op                            Operation
		name, userName, partner, good sql.NullString
		userID, partnerID, goodID     sql.NullInt64
		qtty                          sql.NullFloat64
		priceOut, priceIn             sql.NullFloat64
	)
	if err := row.Scan(&op.ID, &op.Type, &name, &op.Date, &qtty,
		&userID, &userName, &partnerID, &partner, &goodID, &good,
		&priceOut, &priceIn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Operation{}, err
		}
		return Operation{}, fmt.Errorf("microinvest: scan operation: %w", err)
	}
	op.Name, op.UserName, op.PartnerName, op.GoodName = name.String, userName.String, partner.String, good.String
	op.UserID, op.PartnerID, op.GoodID = userID.Int64, partnerID.Int64, goodID.Int64
	op.Qtty = qtty.Float64
	op.PriceOut = floatPtr(priceOut)
	op.PriceIn = floatPtr(priceIn)
	return op, nil
}
