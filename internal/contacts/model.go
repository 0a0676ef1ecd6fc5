package contacts

import "time"

// Kind distinguishes directory entries.
type Kind string

const (
	KindClient   Kind = "CLIENT"
	KindSupplier Kind = "SUPPLIER"
)

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindClient || k == KindSupplier
}

// Contact is a directory entry. The name is the identity: saving a contact
// whose name already exists overwrites its address and tax fields.
type Contact struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	TaxID         string    `json:"tax_id"`
	Address       string    `json:"address"`
	PostalCode    string    `json:"postal_code"`
	City          string    `json:"city"`
	Province      string    `json:"province"`
	RecipientCode string    `json:"recipient_code"`
	PECEmail      string    `json:"pec_email"`
	Kind          Kind      `json:"kind"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
