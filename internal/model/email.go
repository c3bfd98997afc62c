package model

import "time"

// Email is one ingested mailbox message.
type Email struct {
	ReceivedAt  time.Time
	CreatedAt   time.Time
	ID          string
	MessageID   string
	FromAddress string
	FromName    string
	Subject     string
	BodyHash    string
	Provider    string // empty when no provider was detected
	Labels      []string
	HistoryID   uint64
	Parsed      bool
}
