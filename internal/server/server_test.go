package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/ingest"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

type fakeIngestor struct {
	notifyErr  error
	processErr error
	histories  []uint64
	processed  []string
}

func (f *fakeIngestor) HandleNotification(_ context.Context, historyID uint64) (ingest.NotificationResult, error) {
	f.histories = append(f.histories, historyID)
	if f.notifyErr != nil {
		return ingest.NotificationResult{}, f.notifyErr
	}
	return ingest.NotificationResult{Cursor: historyID, Batch: ingest.BatchStats{Processed: 2, Stored: 1}}, nil
}

func (f *fakeIngestor) ProcessMessage(_ context.Context, id string) (ingest.Outcome, error) {
	f.processed = append(f.processed, id)
	if f.processErr != nil {
		return ingest.OutcomeFailed, f.processErr
	}
	return ingest.OutcomeStored, nil
}

type fakeStats struct {
	stats *model.Stats
	err   error
}

func (f fakeStats) GetStats(context.Context) (*model.Stats, error) {
	return f.stats, f.err
}

func newTestServer(ing Ingestor, stats StatsSource, token string) *Server {
	return New(ing, stats, Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		PushToken: token,
	})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func pushBody(payload string) string {
	return fmt.Sprintf(`{"message":{"data":%q,"messageId":"pm-1"},"subscription":"projects/p/subscriptions/s"}`,
		base64.StdEncoding.EncodeToString([]byte(payload)))
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeIngestor{}, nil, "")
	w := do(t, s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPubSubPush(t *testing.T) {
	ing := &fakeIngestor{}
	s := newTestServer(ing, nil, "")

	w := do(t, s, http.MethodPost, "/pubsub/push", pushBody(`{"emailAddress":"me@example.com","historyId":4242}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint64{4242}, ing.histories)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 4242, body["cursor"])
	assert.EqualValues(t, 1, body["stored"])
}

func TestPubSubPushFailures(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		notifyErr error
		want      int
		handled   bool
	}{
		{"malformed envelope", `not json`, nil, http.StatusBadRequest, false},
		{"undecodable payload is acked", pushBody(`nope`), nil, http.StatusOK, false},
		{"pipeline error asks for redelivery", pushBody(`{"historyId":1}`), errors.New("diff failed"), http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngestor{notifyErr: tt.notifyErr}
			s := newTestServer(ing, nil, "")

			w := do(t, s, http.MethodPost, "/pubsub/push", tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.handled, len(ing.histories) == 1)
		})
	}
}

func TestPubSubPushToken(t *testing.T) {
	ing := &fakeIngestor{}
	s := newTestServer(ing, nil, "s3cret")
	body := pushBody(`{"historyId":9}`)

	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/pubsub/push", body).Code)
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/pubsub/push?token=wrong", body).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/pubsub/push?token=s3cret", body).Code)
	assert.Equal(t, []uint64{9}, ing.histories)
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"stored", nil, http.StatusOK},
		{"not found", fmt.Errorf("get message: %w", common.ErrNotFound), http.StatusNotFound},
		{"failure", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngestor{processErr: tt.err}
			s := newTestServer(ing, nil, "")

			w := do(t, s, http.MethodPost, "/trigger/abc123", "")
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, []string{"abc123"}, ing.processed)
		})
	}
}

func TestMonitoring(t *testing.T) {
	latest := time.Date(2025, 10, 7, 0, 48, 0, 0, time.UTC)
	s := newTestServer(&fakeIngestor{}, fakeStats{stats: &model.Stats{
		TotalEmails:       3,
		ParsedEmails:      2,
		UnparsedEmails:    1,
		TotalTransactions: 2,
		TotalMerchants:    2,
		EmailsByProvider:  map[string]int{"bac": 2, "unknown": 1},
		LatestEmail:       &latest,
	}}, "")

	w := do(t, s, http.MethodGet, "/monitoring", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ByProvider   map[string]int `json:"emails_by_provider"`
		TotalEmails  int            `json:"total_emails"`
		Transactions int            `json:"total_transactions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.TotalEmails)
	assert.Equal(t, 2, body.Transactions)
	assert.Equal(t, 2, body.ByProvider["bac"])

	failing := newTestServer(&fakeIngestor{}, fakeStats{err: errors.New("db down")}, "")
	assert.Equal(t, http.StatusInternalServerError, do(t, failing, http.MethodGet, "/monitoring", "").Code)

	none := newTestServer(&fakeIngestor{}, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, do(t, none, http.MethodGet, "/monitoring", "").Code)
}
