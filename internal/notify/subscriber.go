package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

// SubscriberConfig configures a pull subscriber.
type SubscriberConfig struct {
	Logger       *slog.Logger
	ProjectID    string
	Subscription string
	// EmailAddress, when set, drops notifications for other mailboxes.
	EmailAddress string
}

// Subscriber pulls notifications one at a time and hands them to a Handler.
type Subscriber struct {
	client  *pubsub.Client
	sub     *pubsub.Subscription
	handler Handler
	logger  *slog.Logger
	email   string
}

// NewSubscriber connects to Pub/Sub. opts carry credentials or a test connection.
func NewSubscriber(ctx context.Context, cfg SubscriberConfig, handler Handler, opts ...option.ClientOption) (*Subscriber, error) {
	if cfg.ProjectID == "" || cfg.Subscription == "" {
		return nil, fmt.Errorf("%w: pubsub project and subscription", common.ErrMissingConfig)
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sub := client.Subscription(cfg.Subscription)
	// History diffs must not interleave.
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	return &Subscriber{
		client:  client,
		sub:     sub,
		handler: handler,
		logger:  logger,
		email:   strings.ToLower(cfg.EmailAddress),
	}, nil
}

// Run receives until ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	exists, err := s.sub.Exists(ctx)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: subscription %s does not exist", common.ErrInvalidConfig, s.sub.ID())
	}

	s.logger.Info("listening for mailbox notifications", "subscription", s.sub.ID())

	err = s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.handle(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pubsub receive failed: %w", err)
	}
	return nil
}

// handle reports whether the message should be acknowledged. Undecodable
// payloads are acknowledged so they are not redelivered forever.
func (s *Subscriber) handle(ctx context.Context, id string, data []byte) bool {
	n, err := DecodeNotification(data)
	if err != nil {
		s.logger.Warn("dropping undecodable notification", "pubsub_id", id, "error", err)
		return true
	}

	if s.email != "" && !strings.EqualFold(n.EmailAddress, s.email) {
		s.logger.Debug("ignoring notification for another mailbox", "email", n.EmailAddress)
		return true
	}

	res, err := s.handler.HandleNotification(ctx, uint64(n.HistoryID))
	if err != nil {
		s.logger.Error("notification failed, will be redelivered",
			"pubsub_id", id,
			"history_id", uint64(n.HistoryID),
			"error", err)
		return false
	}

	s.logger.Info("notification handled",
		"pubsub_id", id,
		"history_id", uint64(n.HistoryID),
		"stored", res.Batch.Stored,
		"stale", res.Stale)
	return true
}

// Close releases the Pub/Sub client.
func (s *Subscriber) Close() error {
	return s.client.Close()
}
