package parser

import (
	"regexp"

	"github.com/Veraticus/the-spice-must-ingest/internal/extract"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/textnorm"
)

var (
	yappySentSubject     = regexp.MustCompile(`(?i)enviaste\s+un\s+yappy|yappy\s+enviado`)
	yappySentBody        = regexp.MustCompile(`(?i)enviaste|pagaste\s+a|transferiste\s+a`)
	yappyReceivedSubject = regexp.MustCompile(`(?i)recibiste\s+un\s+yappy|yappy\s+recibido`)
	yappyReceivedBody    = regexp.MustCompile(`(?i)recibiste|te\s+pagaron|te\s+enviaron`)

	yappySentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bA:\s*([^():$]+?)\s*\((\d{8})\)`),
		fieldPattern(`enviaste\s+a`),
		fieldPattern(`para`),
		fieldPattern(`A`),
	}
	yappyReceivedPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bDe:\s*([^():$]+?)\s*\((\d{8})\)`),
		fieldPattern(`recibiste\s+de`),
		fieldPattern(`enviado\s+por`),
		fieldPattern(`De`),
	}
	yappyRefPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)confirmaci[oó]n\s*:\s*([A-Z0-9-]*\d[A-Z0-9-]*)`),
		regexp.MustCompile(`(?i)\b(?:referencia|reference|ref)[:\s#]*([A-Z0-9-]*\d[A-Z0-9-]*)`),
		regexp.MustCompile(`\b([A-Z]{5}-\d{8})\b`),
	}
)

// direction is which side of a peer-to-peer payment the account holder is on.
type direction int

const (
	directionUnknown direction = iota
	directionSent
	directionReceived
)

// Yappy parses Banco General's Yappy peer-to-peer payment notices, in both
// HTML and plain-text variants.
type Yappy struct {
	signature
}

// NewYappy creates the Yappy parser.
func NewYappy() *Yappy {
	return &Yappy{
		signature: newSignature(
			[]string{`[@.]yappy\.com\.pa$`, `[@.]bancogeneral\.com$`},
			[]string{`\byappy\b`},
		),
	}
}

// ID implements Parser.
func (p *Yappy) ID() string { return "yappy" }

// Parse implements Parser. Sent money is a transfer, received money is income.
func (p *Yappy) Parse(body string, meta Metadata) *model.ParsedTransaction {
	text := textnorm.Normalize(body)

	amount, ok := extract.Amount(text)
	if !ok {
		return nil
	}

	date, ok := transactionDate(text, meta)
	if !ok {
		return nil
	}

	dir := p.direction(text, meta.Subject)

	var (
		kind        = model.KindPayment
		description = "Yappy Payment"
		merchant    string
	)
	switch dir {
	case directionSent:
		kind = model.KindTransfer
		description = "Yappy Send (Debit)"
		merchant = counterparty(text, yappySentPatterns)
	case directionReceived:
		kind = model.KindIncome
		description = "Yappy Receive (Credit)"
		merchant = counterparty(text, yappyReceivedPatterns)
	}
	if merchant == "" {
		merchant = "Yappy Payment"
	}

	return &model.ParsedTransaction{
		Date:        date,
		Amount:      amount,
		Kind:        kind,
		Channel:     model.ChannelMobilePayment,
		Currency:    model.DefaultCurrency,
		Merchant:    merchant,
		Reference:   extract.Reference(text, yappyRefPatterns...),
		Description: description,
	}
}

func (p *Yappy) direction(text, subject string) direction {
	switch {
	case yappySentSubject.MatchString(subject):
		return directionSent
	case yappyReceivedSubject.MatchString(subject):
		return directionReceived
	case yappySentBody.MatchString(text):
		return directionSent
	case yappyReceivedBody.MatchString(text):
		return directionReceived
	default:
		return directionUnknown
	}
}

// counterparty returns "Name (phone)" when the 8-digit phone is present, else the name.
func counterparty(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		name := cleanName(m[1])
		if !usableName(name) {
			continue
		}
		if len(m) > 2 && m[2] != "" {
			return name + " (" + m[2] + ")"
		}
		return name
	}
	return ""
}
