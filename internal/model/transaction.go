package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies what happened in a transaction.
type Kind string

// Transaction kinds.
const (
	KindPurchase   Kind = "purchase"
	KindPayment    Kind = "payment"
	KindRefund     Kind = "refund"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
	KindFee        Kind = "fee"
	KindIncome     Kind = "income"
	KindOther      Kind = "other"
)

// Channel is how a transaction settled.
type Channel string

// Settlement channels.
const (
	ChannelCard          Channel = "card"
	ChannelBankTransfer  Channel = "bank_transfer"
	ChannelCash          Channel = "cash"
	ChannelMobilePayment Channel = "mobile_payment"
	ChannelOther         Channel = "other"
)

// DefaultCurrency is used when a notification does not name one.
const DefaultCurrency = "USD"

// CivilDateLayout is the layout for transaction calendar dates.
const CivilDateLayout = "2006-01-02"

// Kinds returns every valid transaction kind.
func Kinds() []Kind {
	return []Kind{KindPurchase, KindPayment, KindRefund, KindWithdrawal, KindTransfer, KindFee, KindIncome, KindOther}
}

// Channels returns every valid settlement channel.
func Channels() []Channel {
	return []Channel{ChannelCard, ChannelBankTransfer, ChannelCash, ChannelMobilePayment, ChannelOther}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range Kinds() {
		if v == k {
			return true
		}
	}
	return false
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	for _, v := range Channels() {
		if v == c {
			return true
		}
	}
	return false
}

// ParsedTransaction is what a parser extracts from one email, before persistence.
type ParsedTransaction struct {
	Date        time.Time
	Amount      decimal.Decimal
	Kind        Kind
	Channel     Channel
	Currency    string
	Merchant    string
	CardLast4   string
	Reference   string
	Description string
	Notes       string
}

// Transaction is one stored financial event.
type Transaction struct {
	CreatedAt      time.Time
	Timestamp      *time.Time
	Amount         decimal.Decimal
	ID             string
	EmailID        string
	MerchantID     string
	Kind           Kind
	Channel        Channel
	Currency       string
	MerchantName   string // as parsed, before normalization
	Date           string // civil date, CivilDateLayout
	CardLast4      string
	Provider       string
	Reference      string
	Description    string
	Notes          string
	IdempotencyKey string
}
