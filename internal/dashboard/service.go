package dashboard

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/fiscochiaro/fatture/internal/billing"
)

// InvoiceSource lists saved invoices for aggregation.
type InvoiceSource interface {
	List(ctx context.Context) ([]billing.Invoice, error)
}

// Summary aggregates the issued-invoice figures shown on the dashboard.
type Summary struct {
	InvoiceCount  int             `json:"invoice_count"`
	TotalIssued   decimal.Decimal `json:"total_issued"`
	CountByStatus map[string]int  `json:"count_by_status"`
}

// Service computes dashboard summaries with a Redis cache in front.
type Service struct {
	source InvoiceSource
	cache  *Cache
	group  singleflight.Group
}

// NewService wires an InvoiceSource with a Cache helper.
func NewService(source InvoiceSource, cache *Cache) *Service {
	return &Service{source: source, cache: cache}
}

// GetSummary returns the cached summary, computing it on a miss. Concurrent
// misses for the same key collapse into a single load.
func (s *Service) GetSummary(ctx context.Context) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary")
	if err != nil {
		return Summary{}, err
	}
	resultChan := s.group.DoChan(key, func() (any, error) {
		var summary Summary
		err := s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (any, error) {
			return s.compute(ctx)
		})
		return summary, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) compute(ctx context.Context) (Summary, error) {
	invoices, err := s.source.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		TotalIssued:   decimal.Zero,
		CountByStatus: make(map[string]int),
	}
	for _, inv := range invoices {
		summary.InvoiceCount++
		summary.TotalIssued = summary.TotalIssued.Add(inv.GrossTotal)
		summary.CountByStatus[string(inv.Status)]++
	}
	return summary, nil
}
