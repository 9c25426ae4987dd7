package render

import (
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/andy/timebill/internal/domain"
)

var lineItemGrid = []uint{6, 2, 2, 2}

// PDFRenderer lays out invoices as A4 PDFs.
type PDFRenderer struct{}

// NewPDFRenderer creates a PDF renderer
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// ContentType returns the MIME type of rendered documents
func (r *PDFRenderer) ContentType() string {
	return "application/pdf"
}

// Render builds the PDF and returns its bytes
func (r *PDFRenderer) Render(doc Document) ([]byte, error) {
	inv := doc.Invoice
	if inv == nil {
		return nil, errors.New("render: invoice is required")
	}

	m := pdf.NewMaroto(consts.Portrait, consts.A4)
	m.SetPageMargins(20, 10, 20)

	m.RegisterHeader(func() {
		m.Row(14, func() {
			m.Col(6, func() {
				m.Text("INVOICE", props.Text{
					Top:   3,
					Style: consts.Bold,
					Align: consts.Left,
					Size:  20,
				})
			})
			m.Col(6, func() {
				m.Text(inv.InvoiceNumber, props.Text{
					Top:   5,
					Style: consts.Bold,
					Align: consts.Right,
					Size:  12,
				})
			})
		})
	})

	r.issuerBlock(m, doc.Issuer)

	m.Row(8, func() {
		m.Col(4, func() {
			m.Text("Issue date: "+inv.IssueDate.Format(domain.DateLayout), props.Text{Size: 10})
		})
		m.Col(4, func() {
			m.Text("Due date: "+inv.DueDate.Format(domain.DateLayout), props.Text{Size: 10})
		})
		m.Col(4, func() {
			m.Text("Status: "+string(inv.Status), props.Text{Size: 10, Align: consts.Right})
		})
	})

	r.billToBlock(m, doc.Client)

	headers := []string{"Description", "Hours", "Rate", "Amount"}
	rows := make([][]string, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		rows = append(rows, []string{
			item.Description,
			item.Quantity.StringFixed(2),
			Money(item.Rate),
			Money(item.Amount),
		})
	}

	m.TableList(headers, rows, props.TableList{
		HeaderProp: props.TableListContent{
			Size:      10,
			GridSizes: lineItemGrid,
		},
		ContentProp: props.TableListContent{
			Size:      10,
			GridSizes: lineItemGrid,
		},
		Align:                consts.Left,
		AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
		HeaderContentSpace:   1,
		Line:                 false,
	})

	m.Row(4, func() {})
	totalRow(m, "Subtotal", Money(inv.Subtotal), false)
	totalRow(m, fmt.Sprintf("Tax (%s%%)", domain.TaxPercent(inv.TaxRate)), Money(inv.TaxAmount), false)
	totalRow(m, "Total", Money(inv.Total), true)

	if inv.Notes != "" {
		textSection(m, "Notes", inv.Notes)
	}
	if inv.PaymentTerms != "" {
		textSection(m, "Payment Terms", inv.PaymentTerms)
	}

	buf, err := m.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to render invoice %s: %w", inv.InvoiceNumber, err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) issuerBlock(m pdf.Maroto, issuer Party) {
	lines := nonEmpty(issuer.Name, issuer.Address, issuer.Email, issuer.Phone)
	for _, line := range lines {
		m.Row(5, func() {
			m.Col(12, func() {
				m.Text(line, props.Text{Size: 9, Color: color.Color{Red: 90, Green: 90, Blue: 90}})
			})
		})
	}
	m.Row(4, func() {})
}

func (r *PDFRenderer) billToBlock(m pdf.Maroto, client *domain.Client) {
	m.Row(8, func() {
		m.Col(12, func() {
			m.Text("Bill To", props.Text{Top: 3, Style: consts.Bold, Size: 11})
		})
	})
	if client == nil {
		m.Row(6, func() {
			m.Col(12, func() {
				m.Text("(client unavailable)", props.Text{Size: 10, Style: consts.Italic})
			})
		})
		return
	}
	for _, line := range nonEmpty(client.Name, client.Company, client.Email) {
		m.Row(5, func() {
			m.Col(12, func() {
				m.Text(line, props.Text{Size: 10})
			})
		})
	}
	m.Row(6, func() {})
}

func totalRow(m pdf.Maroto, label, value string, bold bool) {
	style := consts.Normal
	if bold {
		style = consts.Bold
	}
	m.Row(7, func() {
		m.ColSpace(6)
		m.Col(4, func() {
			m.Text(label, props.Text{Size: 10, Style: style, Align: consts.Right})
		})
		m.Col(2, func() {
			m.Text(value, props.Text{Size: 10, Style: style, Align: consts.Right})
		})
	})
}

func textSection(m pdf.Maroto, title, body string) {
	m.Row(8, func() {
		m.Col(12, func() {
			m.Text(title, props.Text{Top: 4, Style: consts.Bold, Size: 10})
		})
	})
	m.Row(10, func() {
		m.Col(12, func() {
			m.Text(body, props.Text{Size: 9})
		})
	})
}

// Money formats an amount as $1,234.56
func Money(d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	intPart, decPart := s[:len(s)-3], s[len(s)-3:]

	out := make([]byte, 0, len(intPart)+len(intPart)/3)
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, byte(c))
	}

	prefix := "$"
	if d.IsNegative() {
		prefix = "-$"
	}
	return prefix + string(out) + decPart
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
