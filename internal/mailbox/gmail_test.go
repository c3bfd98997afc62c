package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
)

func newFakeGmail(t *testing.T, handler http.HandlerFunc) *GmailClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGmailClient(context.Background(), GmailConfig{Timeout: 5 * time.Second},
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()),
	)
	if err != nil {
		t.Fatalf("NewGmailClient failed: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestGmailListMessageIDsPaginates(t *testing.T) {
	var queries []string
	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		queries = append(queries, r.URL.Query().Get("q"))
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`)
		case "p2":
			writeJSON(w, `{"messages":[{"id":"m3"}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	})

	ids, err := client.ListMessageIDs(context.Background(), "after:2024/01/01", 0)
	if err != nil {
		t.Fatalf("ListMessageIDs failed: %v", err)
	}
	if strings.Join(ids, ",") != "m1,m2,m3" {
		t.Errorf("ids = %v, want m1,m2,m3", ids)
	}
	for _, q := range queries {
		if q != "after:2024/01/01" {
			t.Errorf("query = %q", q)
		}
	}
}

func TestGmailListMessageIDsRespectsMax(t *testing.T) {
	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("maxResults"); got != "2" {
			t.Errorf("maxResults = %q, want 2", got)
		}
		writeJSON(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"more"}`)
	})

	ids, err := client.ListMessageIDs(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("ListMessageIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d ids, want 2", len(ids))
	}
}

func TestGmailGetMessage(t *testing.T) {
	plain := base64.URLEncoding.EncodeToString([]byte("Monto: USD 12.50"))
	latin1 := base64.RawURLEncoding.EncodeToString([]byte("Compra en caf\xe9"))

	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages/abc" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("format"); got != "full" {
			t.Errorf("format = %q, want full", got)
		}
		writeJSON(w, `{
			"id": "abc",
			"threadId": "t1",
			"historyId": "42",
			"internalDate": "1704067200000",
			"snippet": "Compra",
			"labelIds": ["INBOX"],
			"payload": {
				"mimeType": "multipart/alternative",
				"headers": [
					{"name": "From", "value": "BAC <notificacion@pa.bac.net>"},
					{"name": "Subject", "value": "Notificación de transacción"}
				],
				"parts": [
					{"mimeType": "text/plain", "body": {"data": "`+plain+`"}},
					{"mimeType": "text/html",
					 "headers": [{"name": "Content-Type", "value": "text/html; charset=ISO-8859-1"}],
					 "body": {"data": "`+latin1+`"}}
				]
			}
		}`)
	})

	msg, err := client.GetMessage(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetMessage failed: %v", err)
	}
	if msg.ID != "abc" || msg.ThreadID != "t1" || msg.HistoryID != 42 {
		t.Errorf("unexpected ids: %+v", msg)
	}
	if !msg.InternalDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("InternalDate = %v", msg.InternalDate)
	}
	if _, addr := msg.From(); addr != "notificacion@pa.bac.net" {
		t.Errorf("From address = %q", addr)
	}
	if msg.BodyText() != "Monto: USD 12.50" {
		t.Errorf("BodyText = %q", msg.BodyText())
	}
	if len(msg.Body.Parts) != 2 || msg.Body.Parts[1].Data != "Compra en café" {
		t.Errorf("html part not decoded: %+v", msg.Body.Parts)
	}
}

func TestGmailGetMessageNotFound(t *testing.T) {
	client := newFakeGmail(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})

	_, err := client.GetMessage(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if common.IsRetryable(err) {
		t.Error("not found must not be retryable")
	}
}

func TestGmailDiffHistory(t *testing.T) {
	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/history" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("startHistoryId"); got != "100" {
			t.Errorf("startHistoryId = %q", got)
		}
		if got := r.URL.Query().Get("historyTypes"); got != "messageAdded" {
			t.Errorf("historyTypes = %q", got)
		}
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, `{"history":[{"id":"101","messagesAdded":[{"message":{"id":"a"}},{"message":{"id":"b"}}]}],"nextPageToken":"n"}`)
		default:
			writeJSON(w, `{"history":[{"id":"102","messagesAdded":[{"message":{"id":"c"}}]}],"historyId":"102"}`)
		}
	})

	records, err := client.DiffHistory(context.Background(), 100)
	if err != nil {
		t.Fatalf("DiffHistory failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != 101 || strings.Join(records[0].AddedMessageIDs, ",") != "a,b" {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].ID != 102 || strings.Join(records[1].AddedMessageIDs, ",") != "c" {
		t.Errorf("second record = %+v", records[1])
	}
}

func TestGmailDiffHistoryExpired(t *testing.T) {
	client := newFakeGmail(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	})

	_, err := client.DiffHistory(context.Background(), 5)
	if !errors.Is(err, common.ErrHistoryExpired) {
		t.Fatalf("err = %v, want ErrHistoryExpired", err)
	}
}

func TestGmailErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		fatal     bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"bad"}}`, false, true},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"no","errors":[{"reason":"forbidden"}]}}`, false, true},
		{"rate limit reason", http.StatusForbidden, `{"error":{"code":403,"message":"slow","errors":[{"reason":"userRateLimitExceeded"}]}}`, true, false},
		{"too many requests", http.StatusTooManyRequests, `{"error":{"code":429,"message":"slow"}}`, true, false},
		{"server error", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"down"}}`, true, false},
		{"bad request", http.StatusBadRequest, `{"error":{"code":400,"message":"bad"}}`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeGmail(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.CurrentHistoryID(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if got := common.IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (err %v)", got, tt.retryable, err)
			}
			if got := common.IsFatal(err); got != tt.fatal {
				t.Errorf("IsFatal = %v, want %v (err %v)", got, tt.fatal, err)
			}
		})
	}
}

func TestGmailCurrentHistoryID(t *testing.T) {
	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/profile" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, `{"emailAddress":"me@example.com","historyId":"9001"}`)
	})

	id, err := client.CurrentHistoryID(context.Background())
	if err != nil {
		t.Fatalf("CurrentHistoryID failed: %v", err)
	}
	if id != 9001 {
		t.Errorf("id = %d, want 9001", id)
	}
}

func TestGmailWatch(t *testing.T) {
	var stopped bool
	client := newFakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gmail/v1/users/me/stop":
			stopped = true
			w.WriteHeader(http.StatusNoContent)
		case "/gmail/v1/users/me/watch":
			if r.Method != http.MethodPost {
				t.Errorf("method = %s", r.Method)
			}
			writeJSON(w, `{"historyId":"77","expiration":"1704672000000"}`)
		default:
			http.NotFound(w, r)
		}
	})

	resp, err := client.Watch(context.Background(), "projects/p/topics/gmail", nil)
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if !stopped {
		t.Error("previous watch was not stopped")
	}
	if resp.HistoryID != 77 {
		t.Errorf("HistoryID = %d", resp.HistoryID)
	}
	if !resp.Expiration.Equal(time.UnixMilli(1704672000000)) {
		t.Errorf("Expiration = %v", resp.Expiration)
	}
}
