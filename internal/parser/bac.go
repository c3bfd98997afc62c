package parser

import (
	"fmt"
	"regexp"

	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

var (
	bacMerchantPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Comercio\s+Monto\s+([A-Z][A-Z0-9\s\-&.,']+?)\s+USD`),
		fieldPattern(`comercio`),
		fieldPattern(`establecimiento`),
		fieldPattern(`merchant`),
		regexp.MustCompile(`([A-Z][A-Z0-9\-&.,' ]{3,}?)\s+USD\s+\d`),
		regexp.MustCompile(`\ben\s+([A-Z][A-Z &]+?)(?:\s+por|\s+B/|$)`),
	}
	bacRefundPattern = regexp.MustCompile(`(?i)reembolso|refund|devoluci[oó]n`)
)

// BAC parses card purchase and refund alerts from BAC Credomatic.
type BAC struct {
	signature
}

// NewBAC creates the BAC Credomatic parser.
func NewBAC() *BAC {
	return &BAC{
		signature: newSignature(
			[]string{`[@.]bac\.net$`, `[@.]credomatic\.com$`},
			[]string{`compra aprobada`, `transacci[oó]n aprobada`, `\bbac\b`},
		),
	}
}

// ID implements Parser.
func (p *BAC) ID() string { return "bac" }

// Parse implements Parser. Card alerts without a merchant are not usable.
func (p *BAC) Parse(body string, meta Metadata) *model.ParsedTransaction {
	text := textnorm.Normalize(body)

	amount, ok := extract.Amount(text)
	if !ok {
		return nil
	}

	merchant := firstName(text, bacMerchantPatterns...)
	if merchant == "" {
		return nil
	}

	date, ok := transactionDate(text, meta)
	if !ok {
		return nil
	}

	kind := model.KindPurchase
	if bacRefundPattern.MatchString(text) {
		kind = model.KindRefund
	}

	return &model.ParsedTransaction{
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Channel:     model.ChannelCard,
		Currency:    model.DefaultCurrency,
		Merchant:    merchant,
		CardLast4:   extract.CardLast4(text),
		Description: fmt.Sprintf("BAC %s", kind),
	}
}
