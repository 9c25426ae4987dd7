// Package render turns a fully computed invoice into a printable document.
// It performs layout only; every amount it prints comes from the invoice.
package render

import (
	"github.com/andy/timebill/internal/domain"
)

// Party identifies the sender printed in the document header.
type Party struct {
	Name    string
	Email   string
	Address string
	Phone   string
}

// Document is everything a renderer needs for one invoice.
type Document struct {
	Invoice *domain.Invoice // with LineItems populated
	Client  *domain.Client  // snapshot at render time; may be nil
	Issuer  Party
}

// Renderer produces a binary document for an invoice.
type Renderer interface {
	Render(doc Document) ([]byte, error)
	ContentType() string
}
