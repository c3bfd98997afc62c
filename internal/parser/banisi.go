package parser

import (
	"regexp"

	"github.com/Veraticus/the-spice-must-ingest/internal/dedup"
	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

var (
	banisiAmountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\s*([\d,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?i)cuota\s+mensual\s*:\s*\$?\s*([\d,]+(?:\.\d{1,2})?)`),
	}
	banisiLoanPattern     = regexp.MustCompile(`(?i)pago\s+a\s+pr[eé]stamo`)
	banisiDebitPattern    = regexp.MustCompile(`(?i)d[eé]bito\s+autom[aá]tico`)
	banisiTransferPattern = regexp.MustCompile(`(?i)transferencia`)
	banisiLoanNumber      = regexp.MustCompile(`(?i)n[uú]mero\s+de\s+pr[eé]stamo\s*:\s*([\d-]+)`)
	banisiRefPatterns     = []*regexp.Regexp{
		regexp.MustCompile(`(?i)n[uú]mero\s+de\s+comprobante\s*:\s*(\d+)`),
		regexp.MustCompile(`(?i)comprobante\s*:\s*(\d+)`),
		regexp.MustCompile(`(?i)referencia\s*:\s*([A-Z0-9-]+)`),
	}
	banisiDateLabel = regexp.MustCompile(`(?i)fecha\s*:`)
)

// Banisi parses Banisi loan-payment and automatic-debit confirmations.
type Banisi struct {
	signature
}

// NewBanisi creates the Banisi parser.
func NewBanisi() *Banisi {
	return &Banisi{
		signature: newSignature(
			[]string{`[@.]banisipanama\.com$`},
			[]string{`confirmaci[oó]n\s+de\s+pago`, `pago\s+a\s+pr[eé]stamo`, `\bbanisi\b`},
		),
	}
}

// ID implements Parser.
func (p *Banisi) ID() string { return "banisi" }

// Parse implements Parser. Banisi debits always settle from a bank account.
func (p *Banisi) Parse(body string, meta Metadata) *model.ParsedTransaction {
	text := textnorm.Normalize(body)

	amount, ok := extract.AmountMatching(text, banisiAmountPatterns...)
	if !ok {
		if amount, ok = extract.Amount(text); !ok {
			return nil
		}
	}

	date, ok := extract.DateTimeAfter(text, banisiDateLabel, dedup.Location())
	if !ok {
		if date, ok = transactionDate(text, meta); !ok {
			return nil
		}
	}

	merchant := p.merchant(text)
	description := "Banisi Payment"
	if merchant != "" {
		description = "Banisi " + merchant
	} else {
		merchant = "Banisi Payment"
	}

	return &model.ParsedTransaction{
		Date:        dedup.InHome(date),
		Amount:      amount,
		Kind:        p.kind(text),
		Channel:     model.ChannelBankTransfer,
		Currency:    model.DefaultCurrency,
		Merchant:    merchant,
		Reference:   extract.Reference(text, banisiRefPatterns...),
		Description: description,
	}
}

func (p *Banisi) kind(text string) model.Kind {
	switch {
	case banisiLoanPattern.MatchString(text), banisiDebitPattern.MatchString(text):
		return model.KindPayment
	case banisiTransferPattern.MatchString(text):
		return model.KindTransfer
	default:
		return model.KindPayment
	}
}

func (p *Banisi) merchant(text string) string {
	if banisiLoanPattern.MatchString(text) {
		if m := banisiLoanNumber.FindStringSubmatch(text); m != nil {
			return "Loan Payment " + m[1]
		}
		return "Loan Payment"
	}
	if banisiDebitPattern.MatchString(text) {
		return "Automatic Debit"
	}
	return ""
}
