package billing

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fiscochiaro/fatture/internal/contacts"
)

// Store defines document store access for invoices.
type Store interface {
	Append(ctx context.Context, inv Invoice) (Invoice, error)
	List(ctx context.Context) ([]Invoice, error)
	Get(ctx context.Context, number string) (Invoice, error)
	UpdateStatus(ctx context.Context, number string, status InvoiceStatus) error
	SetExternalID(ctx context.Context, number, externalID string) error
	SetPDFRef(ctx context.Context, number, ref string) error
	Delete(ctx context.Context, number string) error
}

// Directory is the contact directory collaborator.
type Directory interface {
	Upsert(ctx context.Context, c contacts.Contact) (contacts.Contact, error)
}

// Renderer produces the courtesy PDF for a saved invoice.
type Renderer interface {
	RenderInvoice(ctx context.Context, inv Invoice) ([]byte, error)
}

// Archive stores rendered PDF bytes and resolves references back to content.
type Archive interface {
	Save(number string, data []byte) (string, error)
	Open(ref string) (io.ReadCloser, error)
	Remove(ref string) error
}

// MetricsRecorder receives business-level counters. Implemented by
// observability.Metrics; nil-safe to keep tests light.
type MetricsRecorder interface {
	InvoiceSaved()
	RenderFailure()
}

// Invalidator drops derived caches after the invoice set changes.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// ServiceConfig carries optional service knobs.
type ServiceConfig struct {
	// Now overrides the clock, used by tests and by callers that need a
	// fixed numbering year.
	Now func() time.Time
}

// Service implements the invoice totals & numbering engine and the save
// transaction around it.
type Service struct {
	store       Store
	directory   Directory
	renderer    Renderer
	archive     Archive
	logger      *slog.Logger
	metrics     MetricsRecorder
	invalidator Invalidator
	now         func() time.Time

	// mu serialises the read-then-append sequence so two saves can never
	// derive the same number. The caller owns one Service per store.
	mu sync.Mutex
}

// NewService builds a Service instance.
func NewService(store Store, directory Directory, renderer Renderer, archive Archive, logger *slog.Logger, metrics MetricsRecorder, invalidator Invalidator, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		directory:   directory,
		renderer:    renderer,
		archive:     archive,
		logger:      logger,
		metrics:     metrics,
		invalidator: invalidator,
		now:         now,
	}
}

// SaveInvoiceInput is the draft handed to SaveInvoice. Nothing is persisted
// until the save commits; discarding a draft has no side effects.
type SaveInvoiceInput struct {
	Counterparty Counterparty
	Kind         contacts.Kind
	Lines        []LineItem
	Date         time.Time
	Status       InvoiceStatus
}

// SaveInvoice validates the draft, computes and freezes the totals, upserts
// the counterparty into the directory, derives the invoice number and appends
// the record. The courtesy PDF is rendered afterwards; a render failure
// degrades to "saved, PDF unavailable" and never rolls back the append.
func (s *Service) SaveInvoice(ctx context.Context, input SaveInvoiceInput) (Invoice, error) {
	if strings.TrimSpace(input.Counterparty.Name) == "" {
		return Invoice{}, ErrMissingCounterparty
	}
	if len(input.Lines) == 0 {
		return Invoice{}, ErrEmptyInvoice
	}
	totals, err := ComputeTotals(input.Lines)
	if err != nil {
		return Invoice{}, err
	}

	status := input.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.Valid() {
		return Invoice{}, ErrInvalidStatus
	}

	date := input.Date
	if date.IsZero() {
		date = s.now()
	}

	kind := input.Kind
	if kind == "" {
		kind = contacts.KindClient
	}
	if _, err := s.directory.Upsert(ctx, contacts.Contact{
		Name:          input.Counterparty.Name,
		TaxID:         input.Counterparty.TaxID,
		Address:       input.Counterparty.Address,
		PostalCode:    input.Counterparty.PostalCode,
		City:          input.Counterparty.City,
		Province:      input.Counterparty.Province,
		RecipientCode: input.Counterparty.RecipientCode,
		PECEmail:      input.Counterparty.PECEmail,
		Kind:          kind,
	}); err != nil {
		return Invoice{}, err
	}

	s.mu.Lock()
	existing, err := s.store.List(ctx)
	if err != nil {
		s.mu.Unlock()
		return Invoice{}, err
	}
	inv := Invoice{
		Number:       NextInvoiceNumber(existing, date),
		Date:         date,
		Counterparty: input.Counterparty,
		Lines:        input.Lines,
		NetTotal:     totals.Net,
		VATTotal:     totals.VAT,
		GrossTotal:   totals.Gross,
		Status:       status,
	}
	saved, err := s.store.Append(ctx, inv)
	s.mu.Unlock()
	if err != nil {
		return Invoice{}, err
	}

	if s.metrics != nil {
		s.metrics.InvoiceSaved()
	}
	s.bump(ctx)

	saved.PDFRef = s.renderPDF(ctx, saved)
	return saved, nil
}

// renderPDF renders and archives the courtesy copy, recording the reference
// on the stored invoice. Failures are reported and swallowed.
func (s *Service) renderPDF(ctx context.Context, inv Invoice) string {
	if s.renderer == nil || s.archive == nil {
		return ""
	}
	data, err := s.renderer.RenderInvoice(ctx, inv)
	if err != nil {
		s.logger.Warn("invoice saved, PDF unavailable",
			slog.String("number", inv.Number), slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.RenderFailure()
		}
		return ""
	}
	ref, err := s.archive.Save(inv.Number, data)
	if err != nil {
		s.logger.Warn("invoice saved, PDF archive failed",
			slog.String("number", inv.Number), slog.Any("error", err))
		return ""
	}
	if err := s.store.SetPDFRef(ctx, inv.Number, ref); err != nil {
		s.logger.Warn("record PDF reference",
			slog.String("number", inv.Number), slog.Any("error", err))
	}
	return ref
}

// SuggestNumber returns the number the next save would take right now. The
// result is for form prefill only; SaveInvoice re-derives it under the lock.
func (s *Service) SuggestNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.store.List(ctx)
	if err != nil {
		return "", err
	}
	return NextInvoiceNumber(existing, s.now()), nil
}

// ListInvoices returns invoices in insertion order, optionally filtered by a
// case-insensitive substring match on number or counterparty name.
func (s *Service) ListInvoices(ctx context.Context, search string) ([]Invoice, error) {
	invoices, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if search == "" {
		return invoices, nil
	}
	needle := strings.ToLower(search)
	filtered := invoices[:0:0]
	for _, inv := range invoices {
		if strings.Contains(strings.ToLower(inv.Number), needle) ||
			strings.Contains(strings.ToLower(inv.Counterparty.Name), needle) {
			filtered = append(filtered, inv)
		}
	}
	return filtered, nil
}

// GetInvoice returns a single invoice by number.
func (s *Service) GetInvoice(ctx context.Context, number string) (Invoice, error) {
	return s.store.Get(ctx, number)
}

// UpdateStatus advances an invoice to a later lifecycle state. Regressions
// and sideways moves are rejected.
func (s *Service) UpdateStatus(ctx context.Context, number string, status InvoiceStatus) error {
	inv, err := s.store.Get(ctx, number)
	if err != nil {
		return err
	}
	if !inv.Status.CanAdvanceTo(status) {
		return ErrInvalidStatus
	}
	if err := s.store.UpdateStatus(ctx, number, status); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// RecordSubmission stores the gateway identifier and advances the invoice to
// Sent. Called once the exchange accepts the document.
func (s *Service) RecordSubmission(ctx context.Context, number, externalID string) error {
	inv, err := s.store.Get(ctx, number)
	if err != nil {
		return err
	}
	if err := s.store.SetExternalID(ctx, number, externalID); err != nil {
		return err
	}
	if inv.Status.CanAdvanceTo(StatusSent) {
		if err := s.store.UpdateStatus(ctx, number, StatusSent); err != nil {
			return err
		}
	}
	s.bump(ctx)
	return nil
}

// DeleteInvoice removes an invoice from the store. Sibling invoices are never
// renumbered; the freed number may be reused by a later save.
func (s *Service) DeleteInvoice(ctx context.Context, number string) error {
	inv, err := s.store.Get(ctx, number)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, number); err != nil {
		return err
	}
	if inv.PDFRef != "" && s.archive != nil {
		if err := s.archive.Remove(inv.PDFRef); err != nil {
			s.logger.Warn("remove archived PDF",
				slog.String("number", number), slog.Any("error", err))
		}
	}
	s.bump(ctx)
	return nil
}

func (s *Service) bump(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Bump(ctx); err != nil {
		s.logger.Warn("bump dashboard cache", slog.Any("error", err))
	}
}
