package parser

import (
	"fmt"
	"regexp"

	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

var (
	claveRecipientPatterns = []*regexp.Regexp{
		fieldPattern(`destinatario`),
		fieldPattern(`beneficiario`),
		fieldPattern(`para`),
		fieldPattern(`to`),
	}
	claveTransferPattern = regexp.MustCompile(`(?i)transferencia`)
	claveRefPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:n[uú]mero\s+de\s+)?(?:referencia|autorizaci[oó]n|comprobante)\s*:\s*([A-Z0-9-]*\d[A-Z0-9-]*)`),
	}
)

// Clave parses transfer and payment notices from the Clave interbank network.
type Clave struct {
	signature
}

// NewClave creates the Clave parser.
func NewClave() *Clave {
	return &Clave{
		signature: newSignature(
			[]string{`[@.]clave\.com\.pa$`, `[@.]sistemaclave\.com$`},
			[]string{`\bclave\b`},
		),
	}
}

// ID implements Parser.
func (p *Clave) ID() string { return "clave" }

// Parse implements Parser.
func (p *Clave) Parse(body string, meta Metadata) *model.ParsedTransaction {
	text := textnorm.Normalize(body)

	amount, ok := extract.Amount(text)
	if !ok {
		return nil
	}

	date, ok := transactionDate(text, meta)
	if !ok {
		return nil
	}

	kind := model.KindPayment
	if claveTransferPattern.MatchString(text) {
		kind = model.KindTransfer
	}

	merchant := firstName(text, claveRecipientPatterns...)
	if merchant == "" {
		merchant = "Clave Transfer"
	}

	return &model.ParsedTransaction{
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Channel:     model.ChannelMobilePayment,
		Currency:    model.DefaultCurrency,
		Merchant:    merchant,
		CardLast4:   extract.CardLast4(text),
		Reference:   extract.Reference(text, claveRefPatterns...),
		Description: fmt.Sprintf("Clave %s", kind),
	}
}
