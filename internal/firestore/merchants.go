package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/storage"
)

type merchantDoc struct {
	CreatedAt        time.Time `firestore:"createdAt"`
	Name             string    `firestore:"name"`
	NormalizedName   string    `firestore:"normalizedName"`
	Category         string    `firestore:"category"`
	TotalAmount      string    `firestore:"totalAmount"`
	TransactionCount int       `firestore:"transactionCount"`
}

func (d merchantDoc) toModel(id string) (*model.Merchant, error) {
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored total for merchant %s: %w", id, err)
	}
	return &model.Merchant{
		ID:               id,
		Name:             d.Name,
		NormalizedName:   d.NormalizedName,
		Category:         d.Category,
		TransactionCount: d.TransactionCount,
		TotalAmount:      total,
	}, nil
}

// GetOrCreateMerchant returns the id of the merchant document for
// normalizedName, creating it inside a transaction when missing. An empty
// stored category is filled from category.
func (s *Store) GetOrCreateMerchant(ctx context.Context, name, normalizedName, category string) (string, error) {
	if normalizedName == "" {
		return "", fmt.Errorf("%w: normalizedName", storage.ErrEmptyString)
	}

	ref := s.collection(merchantsCollection).Doc(docID(normalizedName))
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			return tx.Create(ref, merchantDoc{
				Name:           name,
				NormalizedName: normalizedName,
				Category:       category,
				TotalAmount:    decimal.Zero.String(),
				CreatedAt:      time.Now().UTC(),
			})
		}
		if err != nil {
			return err
		}

		stored, err := snap.DataAt("category")
		if err != nil || stored == "" {
			if category != "" {
				return tx.Update(ref, []firestore.Update{{Path: "category", Value: category}})
			}
		}
		return nil
	})
	if err != nil {
		return "", classify(err, "get or create merchant")
	}
	return ref.ID, nil
}

// GetMerchantByNormalizedName returns the merchant or common.ErrNotFound.
func (s *Store) GetMerchantByNormalizedName(ctx context.Context, normalizedName string) (*model.Merchant, error) {
	snap, err := s.collection(merchantsCollection).Doc(docID(normalizedName)).Get(ctx)
	if isNotFound(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "get merchant")
	}

	var doc merchantDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode merchant %s: %w", snap.Ref.ID, err)
	}
	return doc.toModel(snap.Ref.ID)
}
