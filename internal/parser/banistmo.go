package parser

import (
	"fmt"
	"regexp"

	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

var (
	banistmoAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Monto\s*:\s*USD\s+([\d,]+(?:\.\d{1,2})?)`),
	}
	banistmoLugarPattern    = fieldPattern(`lugar`)
	banistmoProductPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Producto\s+a\s+pagar\s*:?\s*\*(\d{4})`),
		regexp.MustCompile(`(?i)pagar\s*:?\s*\*(\d{4})`),
		regexp.MustCompile(`(?i)tarjeta\s+de\s+cr[eé]dito.*?\*(\d{4})`),
	}
	banistmoCardPaymentPattern = regexp.MustCompile(`(?i)pago.*tarjeta.*cr[eé]dito`)
	banistmoTransferPattern    = regexp.MustCompile(`(?i)transferencia`)
	banistmoReferencePatterns  = []*regexp.Regexp{
		regexp.MustCompile(`(?i)n[uú]mero\s+de\s+comprobante\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)transacci[oó]n\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)comprobante\s*:?\s*(\d+)`),
		regexp.MustCompile(`(?i)referencia\s*:?\s*(\d+)`),
	}
)

// Banistmo parses Banistmo's HTML payment, transfer and purchase notifications.
type Banistmo struct {
	signature
}

// NewBanistmo creates the Banistmo parser.
func NewBanistmo() *Banistmo {
	return &Banistmo{
		signature: newSignature(
			[]string{`[@.]banistmo\.com$`},
			[]string{`notificaciones banistmo`, `alertas.*banistmo`},
		),
	}
}

// ID implements Parser.
func (p *Banistmo) ID() string { return "banistmo" }

// Parse implements Parser.
func (p *Banistmo) Parse(body string, meta Metadata) *model.ParsedTransaction {
	text := textnorm.Normalize(body)

	amount, ok := extract.AmountMatching(text, banistmoAmountPatterns...)
	if !ok {
		if amount, ok = extract.Amount(text); !ok {
			return nil
		}
	}

	date, ok := transactionDate(text, meta)
	if !ok {
		return nil
	}

	kind := p.kind(text)
	channel := model.ChannelBankTransfer
	if kind == model.KindPurchase {
		channel = model.ChannelCard
	}

	merchant := p.merchant(text)
	if merchant == "" {
		merchant = "Banistmo Payment"
	}

	return &model.ParsedTransaction{
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Channel:     channel,
		Currency:    model.DefaultCurrency,
		Merchant:    merchant,
		CardLast4:   extract.CardLast4(text),
		Reference:   extract.Reference(text, banistmoReferencePatterns...),
		Description: fmt.Sprintf("Banistmo %s", kind),
	}
}

func (p *Banistmo) kind(text string) model.Kind {
	switch {
	case banistmoCardPaymentPattern.MatchString(text):
		return model.KindPayment
	case banistmoTransferPattern.MatchString(text):
		return model.KindTransfer
	default:
		return model.KindPurchase
	}
}

// merchant prefers the "Lugar:" field of purchases, then the paid card of card payments.
func (p *Banistmo) merchant(text string) string {
	if name := firstName(text, banistmoLugarPattern); name != "" {
		return name
	}
	if last4 := extract.FirstMatch(text, banistmoProductPatterns...); last4 != "" {
		return "Pago Tarjeta *" + last4
	}
	if banistmoCardPaymentPattern.MatchString(text) {
		return "Pago de Tarjeta de Crédito"
	}
	return ""
}
