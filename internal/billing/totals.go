package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeTotals derives the three invoice totals from the given lines.
// Every per-line net and VAT amount is rounded to cents before summation, so
// the totals match exactly what each printed line shows and the gross total
// is always net + VAT to the cent. Empty input yields zero totals.
func ComputeTotals(lines []LineItem) (Totals, error) {
	net := decimal.Zero
	vat := decimal.Zero
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			return Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		net = net.Add(line.NetAmount())
		vat = vat.Add(line.VATAmount())
	}
	return Totals{Net: net, VAT: vat, Gross: net.Add(vat)}, nil
}

// VATBreakdown groups lines by VAT rate, one group per distinct rate present,
// ordered by first appearance. Summing the groups reproduces the invoice
// totals exactly because both work on the same rounded per-line amounts.
func VATBreakdown(lines []LineItem) []VATGroup {
	index := make(map[VATRate]int)
	var groups []VATGroup
	for _, line := range lines {
		i, ok := index[line.VATRate]
		if !ok {
			i = len(groups)
			index[line.VATRate] = i
			groups = append(groups, VATGroup{Rate: line.VATRate, Net: decimal.Zero, VAT: decimal.Zero})
		}
		groups[i].Net = groups[i].Net.Add(line.NetAmount())
		groups[i].VAT = groups[i].VAT.Add(line.VATAmount())
	}
	return groups
}
