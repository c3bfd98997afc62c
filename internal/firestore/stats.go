package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/api/iterator"

	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

// GetStats summarizes what has been ingested. Email counts are gathered by
// scanning a projection of the emails collection; the other collections use
// count aggregations.
func (s *Store) GetStats(ctx context.Context) (*model.Stats, error) {
	stats := &model.Stats{EmailsByProvider: make(map[string]int)}

	iter := s.collection(emailsCollection).Select("provider", "parsed", "receivedAt").Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify(err, "scan emails")
		}

		var doc emailDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode email %s: %w", snap.Ref.ID, err)
		}

		stats.TotalEmails++
		if doc.Parsed {
			stats.ParsedEmails++
		} else {
			stats.UnparsedEmails++
		}
		provider := doc.Provider
		if provider == "" {
			provider = "unknown"
		}
		stats.EmailsByProvider[provider]++

		received := doc.ReceivedAt.UTC()
		if stats.LatestEmail == nil || received.After(*stats.LatestEmail) {
			stats.LatestEmail = &received
		}
	}

	var err error
	if stats.TotalTransactions, err = s.count(ctx, s.collection(transactionsCollection)); err != nil {
		return nil, err
	}
	if stats.TotalMerchants, err = s.count(ctx, s.collection(merchantsCollection)); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) count(ctx context.Context, coll *firestore.CollectionRef) (int, error) {
	result, err := coll.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, classify(err, "count "+coll.ID)
	}

	value, ok := result["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result for %s: %T", coll.ID, result["all"])
	}
	return int(value.GetIntegerValue()), nil
}
