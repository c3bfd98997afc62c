package model

import "time"

// Stats summarizes what has been ingested so far.
type Stats struct {
	LatestEmail       *time.Time
	EmailsByProvider  map[string]int
	TotalEmails       int
	ParsedEmails      int
	UnparsedEmails    int
	TotalTransactions int
	TotalMerchants    int
}
