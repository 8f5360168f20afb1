package microinvest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"distributor.app/internal/auth"
)

// PartnerFilter narrows a partner listing. Text filters match substrings;
// TaxNo matches exactly. Page is 1-based.
type PartnerFilter struct {
	ID      *int64
	Company string
	MOL     string
	Phone   string
	TaxNo   string
	Page    int
	Limit   int
}

// Normalize applies defaults and rejects out-of-range paging.
func (f PartnerFilter) Normalize() (PartnerFilter, error) {
	if f.Page == 0 {
		f.Page = 1
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	if f.Page < 1 {
		return f, fmt.Errorf("%w: page must be >= 1", auth.ErrInvalidInput)
	}
	if f.Limit < 1 || f.Limit > maxPageSize {
		return f, fmt.Errorf("%w: limit must be between 1 and %d", auth.ErrInvalidInput, maxPageSize)
	}
	return f, nil
}

// Partner is one customer or supplier from dbo.Partners.
type Partner struct {
	ID          int64      `json:"partner_id"`
	Code        string     `json:"partner_code,omitempty"`
	Company     string     `json:"company,omitempty"`
	MOL         string     `json:"mol,omitempty"`
	City        string     `json:"city,omitempty"`
	Address     string     `json:"address,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	Fax         string     `json:"fax,omitempty"`
	Email       string     `json:"email,omitempty"`
	TaxNo       string     `json:"tax_no,omitempty"`
	Bulstat     string     `json:"bulstat,omitempty"`
	BankName    string     `json:"bank_name,omitempty"`
	BankCode    string     `json:"bank_code,omitempty"`
	BankAcct    string     `json:"bank_acct,omitempty"`
	PriceGroup  *int64     `json:"price_group,omitempty"`
	Discount    *float64   `json:"discount,omitempty"`
	Type        *int64     `json:"type,omitempty"`
	UserID      *int64     `json:"user_id,omitempty"`
	GroupID     *int64     `json:"group_id,omitempty"`
	UpdatedAt   *time.Time `json:"user_real_time,omitempty"`
	Deleted     bool       `json:"deleted"`
	CardNumber  string     `json:"card_number,omitempty"`
	Note        string     `json:"note,omitempty"`
	PaymentDays *int64     `json:"payment_days,omitempty"`
}

const partnerQuery = `
SELECT
	p.ID, p.Code,
	COALESCE(p.Company, p.Company2),
	COALESCE(p.MOL, p.MOL2),
	COALESCE(p.City, p.City2),
	COALESCE(p.Address, p.Address2),
	COALESCE(p.Phone, p.Phone2),
	p.Fax, p.eMail, p.TaxNo, p.Bulstat,
	p.BankName, p.BankCode, p.BankAcct,
	p.PriceGroup, p.Discount, p.Type, p.UserID, p.GroupID, p.UserRealTime,
	p.Deleted, p.CardNumber,
	COALESCE(p.Note1, p.Note2),
	p.PaymentDays
FROM dbo.Partners p
WHERE 1 = 1`

// ListPartners returns one page of partners matching f.
func (c *Client) ListPartners(ctx context.Context, f PartnerFilter) ([]Partner, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, err
	}
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(partnerQuery)
	if f.ID != nil {
		q.WriteString(` AND p.ID = @id`)
		args = append(args, sql.Named("id", *f.ID))
	}
	if f.Company != "" {
		q.WriteString(` AND p.Company LIKE @company`)
		args = append(args, sql.Named("company", "%"+f.Company+"%"))
	}
	if f.MOL != "" {
		q.WriteString(` AND p.MOL LIKE @mol`)
		args = append(args, sql.Named("mol", "%"+f.MOL+"%"))
	}
	if f.Phone != "" {
		q.WriteString(` AND p.Phone LIKE @phone`)
		args = append(args, sql.Named("phone", "%"+f.Phone+"%"))
	}
	if f.TaxNo != "" {
		q.WriteString(` AND p.TaxNo = @taxno`)
		args = append(args, sql.Named("taxno", f.TaxNo))
	}
	q.WriteString(` ORDER BY p.ID OFFSET @offset ROWS FETCH NEXT @limit ROWS ONLY`)
	args = append(args, sql.Named("offset", (f.Page-1)*f.Limit), sql.Named("limit", f.Limit))

	rows, err := c.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("microinvest: list partners: %w", err)
	}
	defer rows.Close()

	var out []Partner
	for rows.Next() {
		var (
			p                                             Partner
			code, company, mol, city, address, phone, fax sql.NullString
			email, taxNo, bulstat, bankName, bankCode     sql.NullString
			bankAcct, card, note                          sql.NullString
			priceGroup, typ, userID, groupID, paymentDays sql.NullInt64
			discount                                      sql.NullFloat64
			updated                                       sql.NullTime
			deleted                                       sql.NullBool
		)
		if err := rows.Scan(&p.ID, &code, &company, &mol, &city, &address, &phone,
			&fax, &email, &taxNo, &bulstat, &bankName, &bankCode, &bankAcct,
			&priceGroup, &discount, &typ, &userID, &groupID, &updated,
			&deleted, &card, &note, &paymentDays); err != nil {
			return nil, fmt.Errorf("microinvest: scan partner: %w", err)
		}
		p.Code, p.Company, p.MOL, p.City = code.String, company.String, mol.String, city.String
		p.Address, p.Phone, p.Fax, p.Email = address.String, phone.String, fax.String, email.String
		p.TaxNo, p.Bulstat = taxNo.String, bulstat.String
		p.BankName, p.BankCode, p.BankAcct = bankName.String, bankCode.String, bankAcct.String
		p.CardNumber, p.Note = card.String, note.String
		p.PriceGroup, p.Type = intPtr(priceGroup), intPtr(typ)
		p.UserID, p.GroupID, p.PaymentDays = intPtr(userID), intPtr(groupID), intPtr(paymentDays)
		p.Discount = floatPtr(discount)
		if updated.Valid {
			t := updated.Time
			p.UpdatedAt = &t
		}
		p.Deleted = deleted.Bool
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("microinvest: list partners: %w", err)
	}
	return out, nil
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
