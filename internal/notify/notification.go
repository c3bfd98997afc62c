// Package notify receives mailbox change notifications from Cloud Pub/Sub.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
)

// ErrInvalidNotification is returned for payloads that are not mailbox notifications.
var ErrInvalidNotification = errors.New("invalid mailbox notification")

// Handler consumes a notification's history position.
type Handler interface {
	HandleNotification(ctx context.Context, historyID uint64) (ingest.NotificationResult, error)
}

// HistoryID accepts both JSON numbers and numeric strings.
type HistoryID uint64

// UnmarshalJSON implements json.Unmarshaler.
func (h *HistoryID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 {
		return fmt.Errorf("%w: empty historyId", ErrInvalidNotification)
	}
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: historyId %q", ErrInvalidNotification, data)
	}
	*h = HistoryID(v)
	return nil
}

// GmailNotification is the payload Gmail publishes on every mailbox change.
type GmailNotification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    HistoryID `json:"historyId"`
}

// DecodeNotification parses a Pub/Sub message body. Bodies that are base64
// encoded JSON, as delivered by push subscriptions, are accepted as well.
func DecodeNotification(data []byte) (GmailNotification, error) {
	var n GmailNotification

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] != '{' {
		decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
		}
		trimmed = decoded
	}

	if err := json.Unmarshal(trimmed, &n); err != nil {
		if errors.Is(err, ErrInvalidNotification) {
			return n, err
		}
		return n, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if n.HistoryID == 0 {
		return n, fmt.Errorf("%w: missing historyId", ErrInvalidNotification)
	}
	return n, nil
}
