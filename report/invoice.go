package report

import (
	"context"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/fiscochiaro/fatture/internal/billing"
)

// InvoiceRenderer implements the billing renderer port on top of the
// Gotenberg client.
type InvoiceRenderer struct {
	client *Client
}

// NewInvoiceRenderer builds the renderer.
func NewInvoiceRenderer(client *Client) *InvoiceRenderer {
	return &InvoiceRenderer{client: client}
}

// RenderInvoice renders the courtesy copy and returns the PDF bytes.
func (r *InvoiceRenderer) RenderInvoice(ctx context.Context, inv billing.Invoice) ([]byte, error) {
	html, err := InvoiceHTML(inv)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

type invoiceView struct {
	Number       string
	Date         string
	Counterparty billing.Counterparty
	Lines        []lineView
	VATBlock     []vatGroupView
	NetTotal     string
	VATTotal     string
	GrossTotal   string
}

type lineView struct {
	Description string
	Quantity    string
	UnitPrice   string
	VATRate     int
	NetAmount   string
}

type vatGroupView struct {
	Rate int
	Net  string
	VAT  string
}

// italianPrinter formats amounts in the 1.234,56 style. Amounts stay exact
// decimals everywhere else; formatting happens only at this boundary.
var italianPrinter = message.NewPrinter(language.Italian)

// FormatAmount renders a decimal with Italian thousands and decimal
// separators at two digits.
func FormatAmount(d decimal.Decimal) string {
	f, _ := d.Float64()
	return italianPrinter.Sprintf("%.2f", f)
}

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<!DOCTYPE html>
<html lang="it">
<head>
<meta charset="utf-8">
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #111; }
h1 { color: #1f77b4; font-size: 20px; }
table { border-collapse: collapse; width: 100%; margin-top: 8px; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
td.amount, th.amount { text-align: right; }
.totals { margin-top: 12px; width: 40%; margin-left: auto; }
.footer { margin-top: 24px; font-size: 9px; font-style: italic; }
</style>
</head>
<body>
<h1>FISCO CHIARO CONSULTING</h1>
<p>Fattura emessa (uso interno / cliente)</p>
<p>Numero: {{.Number}}<br>Data: {{.Date}}</p>

<h3>Cliente</h3>
<p>{{.Counterparty.Name}}<br>
P.IVA/CF: {{if .Counterparty.TaxID}}{{.Counterparty.TaxID}}{{else}}-{{end}}<br>
{{if .Counterparty.Address}}{{.Counterparty.Address}}<br>{{end}}
{{if .Counterparty.City}}{{.Counterparty.PostalCode}} {{.Counterparty.City}} ({{.Counterparty.Province}}){{end}}</p>

<h3>Righe fattura</h3>
<table>
<tr><th>Descrizione</th><th class="amount">Q.tà</th><th class="amount">Prezzo</th><th class="amount">IVA %</th><th class="amount">Imponibile</th></tr>
{{range .Lines}}
<tr><td>{{.Description}}</td><td class="amount">{{.Quantity}}</td><td class="amount">{{.UnitPrice}}</td><td class="amount">{{.VATRate}}</td><td class="amount">{{.NetAmount}}</td></tr>
{{end}}
</table>

<h3>Riepilogo IVA</h3>
<table>
<tr><th class="amount">Aliquota</th><th class="amount">Imponibile</th><th class="amount">Imposta</th></tr>
{{range .VATBlock}}
<tr><td class="amount">{{.Rate}}%</td><td class="amount">{{.Net}}</td><td class="amount">{{.VAT}}</td></tr>
{{end}}
</table>

<table class="totals">
<tr><td>Imponibile</td><td class="amount">EUR {{.NetTotal}}</td></tr>
<tr><td>IVA</td><td class="amount">EUR {{.VATTotal}}</td></tr>
<tr><td><strong>Totale</strong></td><td class="amount"><strong>EUR {{.GrossTotal}}</strong></td></tr>
</table>

<p class="footer">Documento generato dall'app Fisco Chiaro Consulting. Copia di cortesia, non valida ai fini fiscali.</p>
</body>
</html>`))

// InvoiceHTML lays out the invoice for PDF conversion: header, counterparty
// block, line table in insertion order, VAT-rate summary and totals.
func InvoiceHTML(inv billing.Invoice) (string, error) {
	view := invoiceView{
		Number:       inv.Number,
		Date:         inv.Date.Format("02/01/2006"),
		Counterparty: inv.Counterparty,
		NetTotal:     FormatAmount(inv.NetTotal),
		VATTotal:     FormatAmount(inv.VATTotal),
		GrossTotal:   FormatAmount(inv.GrossTotal),
	}
	for _, line := range inv.Lines {
		view.Lines = append(view.Lines, lineView{
			Description: strings.ReplaceAll(line.Description, "\n", " "),
			Quantity:    line.Quantity.String(),
			UnitPrice:   FormatAmount(line.UnitPrice),
			VATRate:     int(line.VATRate),
			NetAmount:   FormatAmount(line.NetAmount()),
		})
	}
	for _, group := range billing.VATBreakdown(inv.Lines) {
		view.VATBlock = append(view.VATBlock, vatGroupView{
			Rate: int(group.Rate),
			Net:  FormatAmount(group.Net),
			VAT:  FormatAmount(group.VAT),
		})
	}

	var sb strings.Builder
	if err := invoiceTemplate.Execute(&sb, view); err != nil {
		return "", err
	}
	return sb.String(), nil
}
