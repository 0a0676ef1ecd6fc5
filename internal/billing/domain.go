package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates invoice lifecycle states. Transitions are
// monotonic and happen only through explicit user action.
type InvoiceStatus string

const (
	StatusDraft      InvoiceStatus = "DRAFT"
	StatusCreated    InvoiceStatus = "CREATED"
	StatusSent       InvoiceStatus = "SENT"
	StatusRegistered InvoiceStatus = "REGISTERED"
)

var statusRank = map[InvoiceStatus]int{
	StatusDraft:      0,
	StatusCreated:    1,
	StatusSent:       2,
	StatusRegistered: 3,
}

// Valid reports whether the status is a known lifecycle state.
func (s InvoiceStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvanceTo reports whether moving to next is a forward transition.
func (s InvoiceStatus) CanAdvanceTo(next InvoiceStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// VATRate is a percentage VAT rate. Only the Italian rates in force are
// accepted.
type VATRate int

// Rates accepted on invoice lines.
const (
	VATOrdinary        VATRate = 22
	VATReduced         VATRate = 10
	VATReducedSpecial  VATRate = 5
	VATSuperReduced    VATRate = 4
	VATExempt          VATRate = 0
)

// AllowedVATRates lists the accepted rates in form display order.
var AllowedVATRates = []VATRate{VATOrdinary, VATReduced, VATReducedSpecial, VATSuperReduced, VATExempt}

// Valid reports whether the rate is one of the accepted VAT rates.
func (r VATRate) Valid() bool {
	for _, allowed := range AllowedVATRates {
		if r == allowed {
			return true
		}
	}
	return false
}

// LineItem is a single invoice row. Amounts use decimal arithmetic; derived
// amounts are rounded to euro cents.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     VATRate         `json:"vat_rate"`
}

// Validate checks the line against the accepted ranges.
func (l LineItem) Validate() error {
	if l.Quantity.IsNegative() {
		return errors.Join(ErrInvalidLineItem, errors.New("quantity must not be negative"))
	}
	if l.UnitPrice.IsNegative() {
		return errors.Join(ErrInvalidLineItem, errors.New("unit price must not be negative"))
	}
	if !l.VATRate.Valid() {
		return errors.Join(ErrInvalidLineItem, errors.New("unknown VAT rate"))
	}
	return nil
}

// NetAmount returns quantity * unit price rounded to 2 decimals.
func (l LineItem) NetAmount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice).Round(2)
}

// VATAmount returns the VAT computed on the rounded net amount, rounded to
// 2 decimals.
func (l LineItem) VATAmount() decimal.Decimal {
	rate := decimal.NewFromInt(int64(l.VATRate))
	return l.NetAmount().Mul(rate).Div(decimal.NewFromInt(100)).Round(2)
}

// Counterparty is the client snapshot frozen onto the invoice at save time.
// Later edits in the directory never alter saved invoices.
type Counterparty struct {
	Name          string `json:"name"`
	TaxID         string `json:"tax_id"`
	Address       string `json:"address"`
	PostalCode    string `json:"postal_code"`
	City          string `json:"city"`
	Province      string `json:"province"`
	RecipientCode string `json:"recipient_code"`
	PECEmail      string `json:"pec_email"`
}

// Invoice model. Totals are computed at save time and frozen; only Status and
// ExternalID change afterwards.
type Invoice struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	Date         time.Time       `json:"date"`
	Counterparty Counterparty    `json:"counterparty"`
	Lines        []LineItem      `json:"lines"`
	NetTotal     decimal.Decimal `json:"net_total"`
	VATTotal     decimal.Decimal `json:"vat_total"`
	GrossTotal   decimal.Decimal `json:"gross_total"`
	Status       InvoiceStatus   `json:"status"`
	ExternalID   string          `json:"external_id,omitempty"`
	PDFRef       string          `json:"pdf_ref,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Totals aggregates the three frozen invoice amounts.
type Totals struct {
	Net   decimal.Decimal `json:"net"`
	VAT   decimal.Decimal `json:"vat"`
	Gross decimal.Decimal `json:"gross"`
}

// VATGroup is one row of the VAT-rate summary block on the rendered document.
type VATGroup struct {
	Rate VATRate         `json:"rate"`
	Net  decimal.Decimal `json:"net"`
	VAT  decimal.Decimal `json:"vat"`
}

// Validation and lifecycle errors.
var (
	ErrInvalidLineItem     = errors.New("billing: invalid line item")
	ErrMissingCounterparty = errors.New("billing: counterparty name required")
	ErrEmptyInvoice        = errors.New("billing: at least one line required")
	ErrInvoiceNotFound     = errors.New("billing: invoice not found")
	ErrDuplicateNumber     = errors.New("billing: invoice number already taken")
	ErrInvalidStatus       = errors.New("billing: invalid status transition")
)
