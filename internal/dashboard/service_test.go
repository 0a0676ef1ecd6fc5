package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fiscochiaro/fatture/internal/billing"
)

type stubSource struct {
	invoices []billing.Invoice
	calls    int
}

func (s *stubSource) List(ctx context.Context) ([]billing.Invoice, error) {
	s.calls++
	return s.invoices, nil
}

func testInvoices() []billing.Invoice {
	return []billing.Invoice{
		{Number: "FT2025001", Status: billing.StatusCreated, GrossTotal: decimal.RequireFromString("282.00")},
		{Number: "FT2025002", Status: billing.StatusSent, GrossTotal: decimal.RequireFromString("100.00")},
		{Number: "FT2025003", Status: billing.StatusSent, GrossTotal: decimal.RequireFromString("18.50")},
	}
}

func newTestService(t *testing.T, source *stubSource) (*Service, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	return NewService(source, cache), cache
}

func TestGetSummaryComputesAggregates(t *testing.T) {
	source := &stubSource{invoices: testInvoices()}
	svc, _ := newTestService(t, source)

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.InvoiceCount)
	require.True(t, summary.TotalIssued.Equal(decimal.RequireFromString("400.50")), "total = %s", summary.TotalIssued)
	require.Equal(t, map[string]int{"CREATED": 1, "SENT": 2}, summary.CountByStatus)
}

func TestGetSummaryServesFromCache(t *testing.T) {
	source := &stubSource{invoices: testInvoices()}
	svc, _ := newTestService(t, source)
	ctx := context.Background()

	_, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	_, err = svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls, "second read must hit the cache")
}

func TestBumpInvalidatesSummary(t *testing.T) {
	source := &stubSource{invoices: testInvoices()}
	svc, cache := newTestService(t, source)
	ctx := context.Background()

	first, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, first.InvoiceCount)

	source.invoices = source.invoices[:1]
	require.NoError(t, cache.Bump(ctx))

	second, err := svc.GetSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, second.InvoiceCount)
	require.Equal(t, 2, source.calls)
}

func TestGetSummaryWithoutRedis(t *testing.T) {
	source := &stubSource{invoices: testInvoices()}
	svc := NewService(source, NewCache(nil, time.Minute))

	summary, err := svc.GetSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.InvoiceCount)
}
