// Package storage provides the SQLite persistence layer for ingested emails,
// merchants, transactions and the sync cursor.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateEmail(email *model.Email) error {
	if email == nil {
		return fmt.Errorf("%w: email", ErrNilParameter)
	}
	if strings.TrimSpace(email.MessageID) == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidEmail)
	}
	if email.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: missing received time", ErrInvalidEmail)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	switch {
	case txn.EmailID == "":
		return fmt.Errorf("%w: missing email id", ErrInvalidTransaction)
	case txn.IdempotencyKey == "":
		return fmt.Errorf("%w: missing idempotency key", ErrInvalidTransaction)
	case txn.Date == "":
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	case !txn.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	case !txn.Kind.Valid():
		return fmt.Errorf("%w: kind %q", ErrInvalidTransaction, txn.Kind)
	case !txn.Channel.Valid():
		return fmt.Errorf("%w: channel %q", ErrInvalidTransaction, txn.Channel)
	case len(txn.Currency) != 3:
		return fmt.Errorf("%w: currency %q", ErrInvalidTransaction, txn.Currency)
	}
	return nil
}

// ValidateEmail reports whether email carries the fields every backend requires.
func ValidateEmail(email *model.Email) error {
	return validateEmail(email)
}

// ValidateTransaction reports whether txn can be persisted by any backend.
func ValidateTransaction(txn *model.Transaction) error {
	return validateTransaction(txn)
}
