package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fiscochiaro/fatture/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for invoices. It
// implements Store; a unique index on number backs up the service's
// single-writer discipline.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolation = "23505"

// Append inserts the invoice header and its lines in one transaction.
func (r *Repository) Append(ctx context.Context, inv Invoice) (Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO invoices (
				number, date, counterparty_name, counterparty_tax_id, counterparty_address,
				counterparty_postal_code, counterparty_city, counterparty_province,
				counterparty_recipient_code, counterparty_pec_email,
				net_total, vat_total, gross_total, status, external_id, pdf_ref,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, '', '', NOW(), NOW())
			RETURNING id, created_at, updated_at`

		if err := tx.QueryRow(ctx, query,
			inv.Number, inv.Date,
			inv.Counterparty.Name, inv.Counterparty.TaxID, inv.Counterparty.Address,
			inv.Counterparty.PostalCode, inv.Counterparty.City, inv.Counterparty.Province,
			inv.Counterparty.RecipientCode, inv.Counterparty.PECEmail,
			inv.NetTotal.StringFixed(2), inv.VATTotal.StringFixed(2), inv.GrossTotal.StringFixed(2),
			inv.Status,
		).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return err
		}

		for i, line := range inv.Lines {
			if _, err := tx.Exec(ctx, `
				INSERT INTO invoice_lines (invoice_id, position, description, quantity, unit_price, vat_rate)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				inv.ID, i, line.Description, line.Quantity.String(), line.UnitPrice.String(), int(line.VATRate),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Invoice{}, ErrDuplicateNumber
		}
		return Invoice{}, err
	}
	return inv, nil
}

// List returns all invoices with their lines, in insertion order.
func (r *Repository) List(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, number, date, counterparty_name, counterparty_tax_id, counterparty_address,
			counterparty_postal_code, counterparty_city, counterparty_province,
			counterparty_recipient_code, counterparty_pec_email,
			net_total::text, vat_total::text, gross_total::text,
			status, external_id, pdf_ref, created_at, updated_at
		FROM invoices ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	byID := make(map[int64]int)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		byID[inv.ID] = len(out)
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	lineRows, err := r.pool.Query(ctx, `
		SELECT invoice_id, description, quantity::text, unit_price::text, vat_rate
		FROM invoice_lines ORDER BY invoice_id, position`)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var invoiceID int64
		line, err := scanLine(lineRows, &invoiceID)
		if err != nil {
			return nil, err
		}
		if i, ok := byID[invoiceID]; ok {
			out[i].Lines = append(out[i].Lines, line)
		}
	}
	return out, lineRows.Err()
}

// Get returns one invoice by number.
func (r *Repository) Get(ctx context.Context, number string) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, number, date, counterparty_name, counterparty_tax_id, counterparty_address,
			counterparty_postal_code, counterparty_city, counterparty_province,
			counterparty_recipient_code, counterparty_pec_email,
			net_total::text, vat_total::text, gross_total::text,
			status, external_id, pdf_ref, created_at, updated_at
		FROM invoices WHERE number = $1`, number)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrInvoiceNotFound
	}
	if err != nil {
		return Invoice{}, err
	}

	lineRows, err := r.pool.Query(ctx, `
		SELECT invoice_id, description, quantity::text, unit_price::text, vat_rate
		FROM invoice_lines WHERE invoice_id = $1 ORDER BY position`, inv.ID)
	if err != nil {
		return Invoice{}, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var invoiceID int64
		line, err := scanLine(lineRows, &invoiceID)
		if err != nil {
			return Invoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, lineRows.Err()
}

// UpdateStatus sets the lifecycle state of an invoice.
func (r *Repository) UpdateStatus(ctx context.Context, number string, status InvoiceStatus) error {
	return r.exec(ctx, `UPDATE invoices SET status = $1, updated_at = NOW() WHERE number = $2`, status, number)
}

// SetExternalID records the gateway identifier once.
func (r *Repository) SetExternalID(ctx context.Context, number, externalID string) error {
	return r.exec(ctx, `UPDATE invoices SET external_id = $1, updated_at = NOW() WHERE number = $2`, externalID, number)
}

// SetPDFRef records the archived courtesy copy reference.
func (r *Repository) SetPDFRef(ctx context.Context, number, ref string) error {
	return r.exec(ctx, `UPDATE invoices SET pdf_ref = $1, updated_at = NOW() WHERE number = $2`, ref, number)
}

// Delete removes an invoice and its lines.
func (r *Repository) Delete(ctx context.Context, number string) error {
	return r.exec(ctx, `DELETE FROM invoices WHERE number = $1`, number)
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var netStr, vatStr, grossStr string
	if err := row.Scan(&inv.ID, &inv.Number, &inv.Date,
		&inv.Counterparty.Name, &inv.Counterparty.TaxID, &inv.Counterparty.Address,
		&inv.Counterparty.PostalCode, &inv.Counterparty.City, &inv.Counterparty.Province,
		&inv.Counterparty.RecipientCode, &inv.Counterparty.PECEmail,
		&netStr, &vatStr, &grossStr,
		&inv.Status, &inv.ExternalID, &inv.PDFRef, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	var err error
	if inv.NetTotal, err = decimal.NewFromString(netStr); err != nil {
		return Invoice{}, err
	}
	if inv.VATTotal, err = decimal.NewFromString(vatStr); err != nil {
		return Invoice{}, err
	}
	if inv.GrossTotal, err = decimal.NewFromString(grossStr); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func scanLine(row pgx.Row, invoiceID *int64) (LineItem, error) {
	var line LineItem
	var qtyStr, priceStr string
	var rate int
	if err := row.Scan(invoiceID, &line.Description, &qtyStr, &priceStr, &rate); err != nil {
		return LineItem{}, err
	}
	var err error
	if line.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
		return LineItem{}, err
	}
	if line.UnitPrice, err = decimal.NewFromString(priceStr); err != nil {
		return LineItem{}, err
	}
	line.VATRate = VATRate(rate)
	return line, nil
}

var _ Store = (*Repository)(nil)
