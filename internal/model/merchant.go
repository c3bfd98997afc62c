package model

import "github.com/shopspring/decimal"

// Merchant is a deduplicated counterparty.
// TransactionCount and TotalAmount are maintained by the storage layer.
type Merchant struct {
	TotalAmount      decimal.Decimal
	ID               string
	Name             string
	NormalizedName   string
	Category         string
	TransactionCount int
}
