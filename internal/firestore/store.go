// Package firestore provides a Cloud Firestore implementation of
// service.Storage. Uniqueness is enforced through deterministic document ids:
// emails by message id, merchants by normalized name and transactions by
// idempotency key.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

const (
	emailsCollection       = "emails"
	merchantsCollection    = "merchants"
	transactionsCollection = "transactions"
	syncCollection         = "sync_state"
	cursorDoc              = "cursor"
)

var _ service.Storage = (*Store)(nil)

var safeDocID = regexp.MustCompile(`^[A-Za-z0-9._@+-]{1,200}$`)

// Store implements service.Storage on Firestore.
type Store struct {
	client *firestore.Client
	prefix string
}

// Open initializes a Firebase app for projectID and returns a Store backed by
// its Firestore client. prefix is prepended to every collection name.
func Open(ctx context.Context, projectID, prefix string, opts ...option.ClientOption) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: firestore project id", common.ErrMissingConfig)
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return New(client, prefix), nil
}

// New wraps an existing client.
func New(client *firestore.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Migrate is a no-op; Firestore collections need no schema.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(name string) *firestore.CollectionRef {
	return s.client.Collection(s.prefix + name)
}

func (s *Store) cursorRef() *firestore.DocumentRef {
	return s.collection(syncCollection).Doc(cursorDoc)
}

// docID maps a natural key to a legal document id. Keys that are already
// safe are used as-is so documents stay readable in the console.
func docID(key string) string {
	if safeDocID.MatchString(key) && key != "." && key != ".." && !strings.HasPrefix(key, "__") {
		return key
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// classify marks transport failures retryable so callers can back off.
func classify(err error, action string) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return common.Transient(fmt.Errorf("failed to %s: %w", action, err))
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
