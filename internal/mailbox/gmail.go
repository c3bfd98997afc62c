// Package mailbox reads financial notification emails from Gmail or from a
// directory of raw .eml files.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

const (
	defaultUser     = "me"
	defaultTimeout  = 30 * time.Second
	maxPageSize     = 500
	historyPageSize = 500
)

// GmailConfig configures a GmailClient.
type GmailConfig struct {
	Logger  *slog.Logger
	User    string
	Timeout time.Duration
}

// GmailClient implements service.Mailbox on the Gmail REST API.
type GmailClient struct {
	srv     *gmail.Service
	logger  *slog.Logger
	user    string
	timeout time.Duration
}

var _ service.Mailbox = (*GmailClient)(nil)

// NewGmailClient creates a client. Authentication comes from opts, typically
// option.WithTokenSource or option.WithHTTPClient.
func NewGmailClient(ctx context.Context, cfg GmailConfig, opts ...option.ClientOption) (*GmailClient, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}

	user := cfg.User
	if user == "" {
		user = defaultUser
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &GmailClient{
		srv:     srv,
		logger:  logger,
		user:    user,
		timeout: timeout,
	}, nil
}

// NewGmailClientWithHTTP creates a client on an already authorized HTTP client.
func NewGmailClientWithHTTP(ctx context.Context, cfg GmailConfig, httpClient *http.Client) (*GmailClient, error) {
	return NewGmailClient(ctx, cfg, option.WithHTTPClient(httpClient))
}

// ListMessageIDs pages through search results until maxResults ids are
// collected or the results run out. maxResults <= 0 means no limit.
func (c *GmailClient) ListMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)

	for {
		pageSize := int64(maxPageSize)
		if maxResults > 0 {
			if remaining := maxResults - len(ids); remaining < maxPageSize {
				pageSize = int64(remaining)
			}
		}

		call := c.srv.Users.Messages.List(c.user).MaxResults(pageSize)
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
			return call.Context(ctx).Do()
		})
		if err != nil {
			return nil, classify("list messages", err)
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}

		c.logger.Debug("listed message page",
			"query", query,
			"page_size", len(resp.Messages),
			"total", len(ids))

		if resp.NextPageToken == "" || (maxResults > 0 && len(ids) >= maxResults) {
			break
		}
		pageToken = resp.NextPageToken
	}

	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

// GetMessage fetches a full message.
func (c *GmailClient) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	msg, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (*gmail.Message, error) {
		return c.srv.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	})
	if err != nil {
		return nil, classify("get message "+id, err)
	}
	return convertMessage(msg), nil
}

// DiffHistory lists messages added after fromID. A start id the server no
// longer retains yields common.ErrHistoryExpired.
func (c *GmailClient) DiffHistory(ctx context.Context, fromID uint64) ([]service.HistoryRecord, error) {
	var (
		records   []service.HistoryRecord
		pageToken string
	)

	for {
		call := c.srv.Users.History.List(c.user).
			StartHistoryId(fromID).
			HistoryTypes("messageAdded").
			MaxResults(historyPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (*gmail.ListHistoryResponse, error) {
			return call.Context(ctx).Do()
		})
		if err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
				return nil, fmt.Errorf("history %d: %w", fromID, common.ErrHistoryExpired)
			}
			return nil, classify("list history", err)
		}

		for _, h := range resp.History {
			record := service.HistoryRecord{ID: h.Id}
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					record.AddedMessageIDs = append(record.AddedMessageIDs, added.Message.Id)
				}
			}
			records = append(records, record)
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return records, nil
}

// CurrentHistoryID returns the mailbox's latest history id.
func (c *GmailClient) CurrentHistoryID(ctx context.Context) (uint64, error) {
	profile, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (*gmail.Profile, error) {
		return c.srv.Users.GetProfile(c.user).Context(ctx).Do()
	})
	if err != nil {
		return 0, classify("get profile", err)
	}
	return profile.HistoryId, nil
}

// Watch (re)starts push notifications to topic for the given labels.
func (c *GmailClient) Watch(ctx context.Context, topic string, labels []string) (service.WatchResponse, error) {
	if len(labels) == 0 {
		labels = []string{"INBOX"}
	}

	// Only one push client is allowed per user; clear any previous one first.
	if _, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.srv.Users.Stop(c.user).Context(ctx).Do()
	}); err != nil {
		c.logger.Debug("stopping previous watch failed", "error", err)
	}

	resp, err := callWithTimeout(ctx, c.timeout, func(ctx context.Context) (*gmail.WatchResponse, error) {
		return c.srv.Users.Watch(c.user, &gmail.WatchRequest{
			TopicName:           topic,
			LabelIds:            labels,
			LabelFilterBehavior: "include",
		}).Context(ctx).Do()
	})
	if err != nil {
		return service.WatchResponse{}, classify("watch mailbox", err)
	}

	c.logger.Info("watch started",
		"topic", topic,
		"history_id", resp.HistoryId,
		"expiration", time.UnixMilli(resp.Expiration).UTC())

	return service.WatchResponse{
		HistoryID:  resp.HistoryId,
		Expiration: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

// callWithTimeout runs one API call under a per-call deadline.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(ctx)
}
