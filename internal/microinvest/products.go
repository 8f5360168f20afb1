package microinvest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"distributor.app/internal/auth"
)

const maxPageSize = 100

// ProductFilter narrows a product listing. Page is 1-based.
type ProductFilter struct {
	Name     string
	Code     string
	BarCode  string
	Page     int
	PageSize int
}

// Normalize applies defaults and rejects out-of-range paging.
func (f ProductFilter) Normalize() (ProductFilter, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = 20
	}
	if f.Page < 1 {
		return f, fmt.Errorf("%w: page must be >= 1", auth.ErrInvalidInput)
	}
	if f.PageSize < 1 || f.PageSize > maxPageSize {
		return f, fmt.Errorf("%w: page_size must be between 1 and %d", auth.ErrInvalidInput, maxPageSize)
	}
	return f, nil
}

// Product is one row of dbo.Goods. PriceIn is the cost price and is only
// populated for viewers allowed to see it.
type Product struct {
	ID         int64    `json:"product_id"`
	Code       string   `json:"code"`
	BarCode    string   `json:"bar_code,omitempty"`
	Catalog    string   `json:"catalog,omitempty"`
	Name       string   `json:"name"`
	Measure    string   `json:"measure,omitempty"`
	PriceIn    *float64 `json:"price_in,omitempty"`
	PriceOut   *float64 `json:"price_out,omitempty"`
	MinQtty    float64  `json:"min_qtty"`
	NormalQtty float64  `json:"normal_qtty"`
	GroupID    int64    `json:"group_id"`
	Deleted    bool     `json:"deleted"`
}

const productQuery = `
SELECT
	g.ID, g.Code,
	COALESCE(g.BarCode1, g.BarCode2, g.BarCode3),
	COALESCE(g.Catalog1, g.Catalog2, g.Catalog3),
	COALESCE(g.Name, g.Name2),
	COALESCE(g.Measure1, g.Measure2),
	g.PriceIn,
	ca.price_out,
	g.MinQtty, g.NormalQtty, g.GroupID, g.Deleted
FROM dbo.Goods g
OUTER APPLY (
	SELECT TOP 1 price_out
	FROM (VALUES (g.PriceOut1), (g.PriceOut2), (g.PriceOut3), (g.PriceOut4), (g.PriceOut5),
		(g.PriceOut6), (g.PriceOut7), (g.PriceOut8), (g.PriceOut9), (g.PriceOut10)) AS p(price_out)
	WHERE price_out > 0
	ORDER BY price_out
) ca
WHERE 1 = 1`

// ListProducts returns one page of products matching f.
func (c *Client) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(productQuery)
	if f.Name != "" {
		q.WriteString(` AND g.Name LIKE @name`)
		args = append(args, sql.Named("name", "%"+f.Name+"%"))
	}
	if f.Code != "" {
		q.WriteString(` AND g.Code = @code`)
		args = append(args, sql.Named("code", f.Code))
	}
	if f.BarCode != "" {
		q.WriteString(` AND COALESCE(g.BarCode1, g.BarCode2, g.BarCode3) = @barcode`)
		args = append(args, sql.Named("barcode", f.BarCode))
	}
	q.WriteString(` ORDER BY g.ID OFFSET @offset ROWS FETCH NEXT @page_size ROWS ONLY`)
	args = append(args,
		sql.Named("offset", (f.Page-1)*f.PageSize),
		sql.Named("page_size", f.PageSize),
	)

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("microinvest: list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var (
			p                               Product
			barCode, catalog, name, measure sql.NullString
			priceIn, priceOut               sql.NullFloat64
			minQtty, normalQtty             sql.NullFloat64
			groupID                         sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Code, &barCode, &catalog, &name, &measure,
			&priceIn, &priceOut, &minQtty, &normalQtty, &groupID, &p.Deleted); err != nil {
			return nil, fmt.Errorf("microinvest: scan product: %w", err)
		}
		p.BarCode, p.Catalog, p.Name, p.Measure = barCode.String, catalog.String, name.String, measure.String
		p.PriceIn = floatPtr(priceIn)
		p.PriceOut = floatPtr(priceOut)
		p.MinQtty, p.NormalQtty = minQtty.Float64, normalQtty.Float64
		p.GroupID = groupID.Int64
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("microinvest: list products: %w", err)
	}
	return out, nil
}

// MaskProducts clears cost prices unless viewer may see them.
func MaskProducts(products []Product, viewer auth.CostPriceViewer) []Product {
	if auth.CanViewCostPrice(viewer) {
		return products
	}
	for i := range products {
		products[i].PriceIn = nil
	}
	return products
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
