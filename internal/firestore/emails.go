package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/storage"
)

type emailDoc struct {
	ReceivedAt  time.Time `firestore:"receivedAt"`
	CreatedAt   time.Time `firestore:"createdAt"`
	MessageID   string    `firestore:"messageId"`
	FromAddress string    `firestore:"fromAddress"`
	FromName    string    `firestore:"fromName"`
	Subject     string    `firestore:"subject"`
	BodyHash    string    `firestore:"bodyHash"`
	Provider    string    `firestore:"provider"`
	Labels      []string  `firestore:"labels"`
	HistoryID   int64     `firestore:"historyId"`
	Parsed      bool      `firestore:"parsed"`
}

func (d emailDoc) toModel(id string) *model.Email {
	return &model.Email{
		ID:          id,
		MessageID:   d.MessageID,
		FromAddress: d.FromAddress,
		FromName:    d.FromName,
		Subject:     d.Subject,
		ReceivedAt:  d.ReceivedAt.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
		BodyHash:    d.BodyHash,
		Provider:    d.Provider,
		Labels:      d.Labels,
		HistoryID:   uint64(d.HistoryID),
		Parsed:      d.Parsed,
	}
}

// InsertEmail creates the email document keyed by message id. created is
// false when the document already existed; its id is returned either way.
func (s *Store) InsertEmail(ctx context.Context, email *model.Email) (string, bool, error) {
	if err := storage.ValidateEmail(email); err != nil {
		return "", false, err
	}

	labels := email.Labels
	if labels == nil {
		labels = []string{}
	}
	now := time.Now().UTC()
	ref := s.collection(emailsCollection).Doc(docID(email.MessageID))

	_, err := ref.Create(ctx, emailDoc{
		MessageID:   email.MessageID,
		FromAddress: email.FromAddress,
		FromName:    email.FromName,
		Subject:     email.Subject,
		ReceivedAt:  email.ReceivedAt.UTC(),
		CreatedAt:   now,
		BodyHash:    email.BodyHash,
		Provider:    email.Provider,
		Labels:      labels,
		HistoryID:   int64(email.HistoryID),
		Parsed:      email.Parsed,
	})
	switch {
	case err == nil:
		email.ID = ref.ID
		email.CreatedAt = now
		return ref.ID, true, nil
	case isAlreadyExists(err):
		email.ID = ref.ID
		return ref.ID, false, nil
	default:
		return "", false, classify(err, "insert email")
	}
}

// GetEmailByMessageID returns the stored email or common.ErrNotFound.
func (s *Store) GetEmailByMessageID(ctx context.Context, messageID string) (*model.Email, error) {
	if messageID == "" {
		return nil, fmt.Errorf("%w: messageID", storage.ErrEmptyString)
	}

	snap, err := s.collection(emailsCollection).Doc(docID(messageID)).Get(ctx)
	if isNotFound(err) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "get email")
	}

	var doc emailDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode email %s: %w", snap.Ref.ID, err)
	}
	return doc.toModel(snap.Ref.ID), nil
}

// MarkEmailParsed flags an email as having produced a transaction.
func (s *Store) MarkEmailParsed(ctx context.Context, emailID string) error {
	if emailID == "" {
		return fmt.Errorf("%w: emailID", storage.ErrEmptyString)
	}

	_, err := s.collection(emailsCollection).Doc(emailID).Update(ctx, []firestore.Update{
		{Path: "parsed", Value: true},
	})
	if isNotFound(err) {
		return common.ErrNotFound
	}
	if err != nil {
		return classify(err, "mark email parsed")
	}
	return nil
}

// LatestEmailTime returns the newest stored receivedAt. ok is false when no email is stored.
func (s *Store) LatestEmailTime(ctx context.Context) (time.Time, bool, error) {
	iter := s.collection(emailsCollection).
		OrderBy("receivedAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, classify(err, "get latest email time")
	}

	var doc emailDoc
	if err := snap.DataTo(&doc); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to decode email %s: %w", snap.Ref.ID, err)
	}
	return doc.ReceivedAt.UTC(), true, nil
}
