package contacts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed directory.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, c Contact) (Contact, error) {
	query := `
		INSERT INTO contacts (name, tax_id, address, postal_code, city, province, recipient_code, pec_email, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (name) DO UPDATE SET
			tax_id = EXCLUDED.tax_id,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city,
			province = EXCLUDED.province,
			recipient_code = EXCLUDED.recipient_code,
			pec_email = EXCLUDED.pec_email,
			kind = EXCLUDED.kind,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at, updated_at`

	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		c.Name, c.TaxID, c.Address, c.PostalCode, c.City, c.Province,
		c.RecipientCode, c.PECEmail, c.Kind, now,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, kind Kind) ([]Contact, error) {
	query := `SELECT id, name, tax_id, address, postal_code, city, province, recipient_code, pec_email, kind, created_at, updated_at
		FROM contacts`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.PostalCode, &c.City,
			&c.Province, &c.RecipientCode, &c.PECEmail, &c.Kind, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, name string) (Contact, error) {
	query := `SELECT id, name, tax_id, address, postal_code, city, province, recipient_code, pec_email, kind, created_at, updated_at
		FROM contacts WHERE name = $1`
	var c Contact
	err := r.db.QueryRow(ctx, query, name).Scan(&c.ID, &c.Name, &c.TaxID, &c.Address, &c.PostalCode,
		&c.City, &c.Province, &c.RecipientCode, &c.PECEmail, &c.Kind, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	return c, err
}

func (r *repository) Delete(ctx context.Context, name string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM contacts WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
