package billing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiscochiaro/fatture/internal/contacts"
)

type memoryStore struct {
	mu       sync.Mutex
	invoices []Invoice
	nextID   int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (s *memoryStore) Append(ctx context.Context, inv Invoice) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.invoices {
		if ex.Number == inv.Number {
			return Invoice{}, ErrDuplicateNumber
		}
	}
	s.nextID++
	inv.ID = s.nextID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	s.invoices = append(s.invoices, inv)
	return inv, nil
}

func (s *memoryStore) List(ctx context.Context) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Invoice, len(s.invoices))
	copy(out, s.invoices)
	return out, nil
}

func (s *memoryStore) Get(ctx context.Context, number string) (Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.Number == number {
			return inv, nil
		}
	}
	return Invoice{}, ErrInvoiceNotFound
}

func (s *memoryStore) UpdateStatus(ctx context.Context, number string, status InvoiceStatus) error {
	return s.update(number, func(inv *Invoice) { inv.Status = status })
}

func (s *memoryStore) SetExternalID(ctx context.Context, number, externalID string) error {
	return s.update(number, func(inv *Invoice) { inv.ExternalID = externalID })
}

func (s *memoryStore) SetPDFRef(ctx context.Context, number, ref string) error {
	return s.update(number, func(inv *Invoice) { inv.PDFRef = ref })
}

func (s *memoryStore) Delete(ctx context.Context, number string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invoices {
		if inv.Number == number {
			s.invoices = append(s.invoices[:i], s.invoices[i+1:]...)
			return nil
		}
	}
	return ErrInvoiceNotFound
}

func (s *memoryStore) update(number string, fn func(*Invoice)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.invoices {
		if s.invoices[i].Number == number {
			fn(&s.invoices[i])
			s.invoices[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return ErrInvoiceNotFound
}

type memoryDirectory struct {
	mu       sync.Mutex
	upserted []contacts.Contact
}

func (d *memoryDirectory) Upsert(ctx context.Context, c contacts.Contact) (contacts.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upserted = append(d.upserted, c)
	return c, nil
}

type stubRenderer struct {
	fail  bool
	calls int
}

func (r *stubRenderer) RenderInvoice(ctx context.Context, inv Invoice) ([]byte, error) {
	r.calls++
	if r.fail {
		return nil, errors.New("gotenberg unreachable")
	}
	return []byte("%PDF-1.4 " + inv.Number), nil
}

type memoryArchive struct {
	mu      sync.Mutex
	files   map[string][]byte
	removed []string
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{files: make(map[string][]byte)}
}

func (a *memoryArchive) Save(number string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ref := number + ".pdf"
	a.files[ref] = data
	return ref, nil
}

func (a *memoryArchive) Open(ref string) (io.ReadCloser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[ref]
	if !ok {
		return nil, errors.New("archive: missing")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *memoryArchive) Remove(ref string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, ref)
	a.removed = append(a.removed, ref)
	return nil
}

type fixture struct {
	service   *Service
	store     *memoryStore
	directory *memoryDirectory
	renderer  *stubRenderer
	archive   *memoryArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemoryStore(),
		directory: &memoryDirectory{},
		renderer:  &stubRenderer{},
		archive:   newMemoryArchive(),
	}
	f.service = NewService(f.store, f.directory, f.renderer, f.archive, nil, nil, nil, ServiceConfig{
		Now: func() time.Time { return day(2025, 5, 20) },
	})
	return f
}

func draft(name string) SaveInvoiceInput {
	return SaveInvoiceInput{
		Counterparty: Counterparty{Name: name, TaxID: "01234560987", City: "Brescia"},
		Lines: []LineItem{
			{Description: "Consulenza", Quantity: dec("10"), UnitPrice: dec("10"), VATRate: VATOrdinary},
			{Description: "Materiale", Quantity: dec("5"), UnitPrice: dec("20"), VATRate: VATReduced},
			{Description: "Bollo", Quantity: dec("1"), UnitPrice: dec("50"), VATRate: VATExempt},
		},
	}
}

func TestSaveInvoiceAssignsSequentialNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	require.Equal(t, "FT2025001", first.Number)
	require.True(t, first.NetTotal.Equal(dec("250.00")))
	require.True(t, first.VATTotal.Equal(dec("32.00")))
	require.True(t, first.GrossTotal.Equal(dec("282.00")))
	require.Equal(t, StatusDraft, first.Status)

	second, err := f.service.SaveInvoice(ctx, draft("Bianchi Costruzioni SPA"))
	require.NoError(t, err)
	require.Equal(t, "FT2025002", second.Number)
}

func TestSaveInvoiceUpsertsCounterparty(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SaveInvoice(context.Background(), draft("Rossi Impianti SRL"))
	require.NoError(t, err)

	require.Len(t, f.directory.upserted, 1)
	require.Equal(t, "Rossi Impianti SRL", f.directory.upserted[0].Name)
	require.Equal(t, contacts.KindClient, f.directory.upserted[0].Kind)
}

func TestSaveInvoiceRejectsInvalidDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := draft("")
	_, err := f.service.SaveInvoice(ctx, in)
	require.ErrorIs(t, err, ErrMissingCounterparty)

	in = draft("Rossi Impianti SRL")
	in.Lines = nil
	_, err = f.service.SaveInvoice(ctx, in)
	require.ErrorIs(t, err, ErrEmptyInvoice)

	in = draft("Rossi Impianti SRL")
	in.Lines[0].Quantity = dec("-1")
	_, err = f.service.SaveInvoice(ctx, in)
	require.ErrorIs(t, err, ErrInvalidLineItem)

	invoices, listErr := f.store.List(ctx)
	require.NoError(t, listErr)
	require.Empty(t, invoices, "rejected drafts must leave no trace")
}

func TestSaveInvoiceArchivesCourtesyPDF(t *testing.T) {
	f := newFixture(t)

	saved, err := f.service.SaveInvoice(context.Background(), draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	require.Equal(t, "FT2025001.pdf", saved.PDFRef)

	stored, err := f.store.Get(context.Background(), saved.Number)
	require.NoError(t, err)
	require.Equal(t, saved.PDFRef, stored.PDFRef)
}

func TestSaveInvoiceSurvivesRenderFailure(t *testing.T) {
	f := newFixture(t)
	f.renderer.fail = true

	saved, err := f.service.SaveInvoice(context.Background(), draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	require.Empty(t, saved.PDFRef)

	stored, err := f.store.Get(context.Background(), saved.Number)
	require.NoError(t, err)
	require.Equal(t, "FT2025001", stored.Number)
}

func TestConcurrentSavesNeverCollide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	invoices, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, n)
	seen := make(map[string]bool, n)
	for _, inv := range invoices {
		require.False(t, seen[inv.Number], "number %s assigned twice", inv.Number)
		seen[inv.Number] = true
	}
}

func TestSuggestNumberDoesNotReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	suggested, err := f.service.SuggestNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "FT2025001", suggested)

	again, err := f.service.SuggestNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, suggested, again)

	saved, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	require.Equal(t, suggested, saved.Number)
}

func TestListInvoicesSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	_, err = f.service.SaveInvoice(ctx, draft("Bianchi Costruzioni SPA"))
	require.NoError(t, err)

	all, err := f.service.ListInvoices(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	byName, err := f.service.ListInvoices(ctx, "rossi")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	require.Equal(t, "FT2025001", byName[0].Number)

	byNumber, err := f.service.ListInvoices(ctx, "2025002")
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	require.Equal(t, "Bianchi Costruzioni SPA", byNumber[0].Counterparty.Name)
}

func TestUpdateStatusOnlyAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)

	require.NoError(t, f.service.UpdateStatus(ctx, saved.Number, StatusSent))
	require.ErrorIs(t, f.service.UpdateStatus(ctx, saved.Number, StatusCreated), ErrInvalidStatus)
	require.ErrorIs(t, f.service.UpdateStatus(ctx, saved.Number, StatusSent), ErrInvalidStatus)
	require.NoError(t, f.service.UpdateStatus(ctx, saved.Number, StatusRegistered))

	require.ErrorIs(t, f.service.UpdateStatus(ctx, "FT2025999", StatusSent), ErrInvoiceNotFound)
}

func TestRecordSubmissionAdvancesToSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	saved, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)

	require.NoError(t, f.service.RecordSubmission(ctx, saved.Number, "sdi-42"))

	stored, err := f.store.Get(ctx, saved.Number)
	require.NoError(t, err)
	require.Equal(t, "sdi-42", stored.ExternalID)
	require.Equal(t, StatusSent, stored.Status)
}

func TestDeleteInvoiceFreesNumberWithoutRenumbering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.SaveInvoice(ctx, draft("Rossi Impianti SRL"))
	require.NoError(t, err)
	second, err := f.service.SaveInvoice(ctx, draft("Bianchi Costruzioni SPA"))
	require.NoError(t, err)
	third, err := f.service.SaveInvoice(ctx, draft("Cartoleria Verdi"))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteInvoice(ctx, second.Number))
	require.Contains(t, f.archive.removed, second.PDFRef)

	remaining, err := f.service.ListInvoices(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	require.Equal(t, first.Number, remaining[0].Number)
	require.Equal(t, third.Number, remaining[1].Number)

	// Highest survivor still wins: the freed FT2025002 stays free.
	next, err := f.service.SuggestNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, "FT2025004", next)
}
