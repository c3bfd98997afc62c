package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/storage"
)

type transactionDoc struct {
	CreatedAt      time.Time  `firestore:"createdAt"`
	Timestamp      *time.Time `firestore:"timestamp"`
	EmailID        string     `firestore:"emailId"`
	MerchantID     string     `firestore:"merchantId"`
	IdempotencyKey string     `firestore:"idempotencyKey"`
	Provider       string     `firestore:"provider"`
	Kind           string     `firestore:"kind"`
	Channel        string     `firestore:"channel"`
	Amount         string     `firestore:"amount"`
	Currency       string     `firestore:"currency"`
	MerchantName   string     `firestore:"merchantName"`
	Date           string     `firestore:"date"`
	CardLast4      string     `firestore:"cardLast4"`
	Reference      string     `firestore:"reference"`
	Description    string     `firestore:"description"`
	Notes          string     `firestore:"notes"`
}

func (d transactionDoc) toModel(id string) (*model.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount for transaction %s: %w", id, err)
	}
	txn := &model.Transaction{
		ID:             id,
		EmailID:        d.EmailID,
		MerchantID:     d.MerchantID,
		IdempotencyKey: d.IdempotencyKey,
		Provider:       d.Provider,
		Kind:           model.Kind(d.Kind),
		Channel:        model.Channel(d.Channel),
		Amount:         amount,
		Currency:       d.Currency,
		MerchantName:   d.MerchantName,
		Date:           d.Date,
		CardLast4:      d.CardLast4,
		Reference:      d.Reference,
		Description:    d.Description,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt.UTC(),
	}
	if d.Timestamp != nil {
		ts := d.Timestamp.UTC()
		txn.Timestamp = &ts
	}
	return txn, nil
}

var errTxnExists = errors.New("transaction document exists")

// InsertTransaction creates the transaction document keyed by idempotency key
// and bumps its merchant's aggregates in the same Firestore transaction. A
// second insert with the same key returns the existing id together with
// common.ErrDuplicateEntry.
func (s *Store) InsertTransaction(ctx context.Context, txn *model.Transaction) (string, error) {
	if err := storage.ValidateTransaction(txn); err != nil {
		return "", err
	}

	ref := s.collection(transactionsCollection).Doc(docID(txn.IdempotencyKey))
	now := time.Now().UTC()

	var timestamp *time.Time
	if txn.Timestamp != nil {
		ts := txn.Timestamp.UTC()
		timestamp = &ts
	}
	doc := transactionDoc{
		EmailID:        txn.EmailID,
		MerchantID:     txn.MerchantID,
		IdempotencyKey: txn.IdempotencyKey,
		Provider:       txn.Provider,
		Kind:           string(txn.Kind),
		Channel:        string(txn.Channel),
		Amount:         txn.Amount.String(),
		Currency:       txn.Currency,
		MerchantName:   txn.MerchantName,
		Date:           txn.Date,
		Timestamp:      timestamp,
		CardLast4:      txn.CardLast4,
		Reference:      txn.Reference,
		Description:    txn.Description,
		Notes:          txn.Notes,
		CreatedAt:      now,
	}

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read before the first write.
		if _, err := tx.Get(ref); err == nil {
			return errTxnExists
		} else if !isNotFound(err) {
			return err
		}

		var (
			merchantRef *firestore.DocumentRef
			total       decimal.Decimal
			count       int
		)
		if txn.MerchantID != "" {
			merchantRef = s.collection(merchantsCollection).Doc(txn.MerchantID)
			snap, err := tx.Get(merchantRef)
			if isNotFound(err) {
				return fmt.Errorf("merchant %s: %w", txn.MerchantID, common.ErrNotFound)
			}
			if err != nil {
				return err
			}
			var m merchantDoc
			if err := snap.DataTo(&m); err != nil {
				return fmt.Errorf("failed to decode merchant %s: %w", txn.MerchantID, err)
			}
			if total, err = decimal.NewFromString(m.TotalAmount); err != nil {
				return fmt.Errorf("invalid stored total for merchant %s: %w", txn.MerchantID, err)
			}
			count = m.TransactionCount
		}

		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		if merchantRef == nil {
			return nil
		}
		return tx.Update(merchantRef, []firestore.Update{
			{Path: "transactionCount", Value: count + 1},
			{Path: "totalAmount", Value: total.Add(txn.Amount).String()},
		})
	})
	switch {
	case err == nil:
		txn.ID = ref.ID
		txn.CreatedAt = now
		return ref.ID, nil
	case errors.Is(err, errTxnExists), isAlreadyExists(err):
		return ref.ID, fmt.Errorf("%w: %s", common.ErrDuplicateEntry, txn.IdempotencyKey)
	case errors.Is(err, common.ErrNotFound):
		return "", err
	default:
		return "", classify(err, "insert transaction")
	}
}

// GetTransactionByKey returns the transaction with idempotencyKey or common.ErrNotFound.
func (s *Store) GetTransactionByKey(ctx context.Context, idempotencyKey string) (*model.Transaction, error) {
	if idempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotencyKey", storage.ErrEmptyString)
	}

	snap, err := s.collection(transactionsCollection).Doc(docID(idempotencyKey)).Get(ctx)
	if isNotFound(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "get transaction")
	}

	var doc transactionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", snap.Ref.ID, err)
	}
	return doc.toModel(snap.Ref.ID)
}
