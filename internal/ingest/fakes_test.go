package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
	"github.com/Veraticus/the-spice-must-ingest/internal/service"
)

// fakeMailbox serves canned messages and history.
type fakeMailbox struct {
	messages   map[string]*model.Message
	getErrs    map[string]error
	historyErr error
	listErr    error
	history    []service.HistoryRecord
	listIDs    []string
	queries    []string
	getCalls   map[string]int
	diffFrom   []uint64
	watch      service.WatchResponse
	current    uint64
	mu         sync.Mutex
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[string]*model.Message),
		getErrs:  make(map[string]error),
		getCalls: make(map[string]int),
	}
}

func (f *fakeMailbox) add(msg *model.Message) {
	f.messages[msg.ID] = msg
}

func (f *fakeMailbox) ListMessageIDs(_ context.Context, query string, maxResults int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := append([]string(nil), f.listIDs...)
	if maxResults > 0 && len(ids) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls[id]++
	if err := f.getErrs[id]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, common.ErrNotFound)
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMailbox) DiffHistory(_ context.Context, fromID uint64) ([]service.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diffFrom = append(f.diffFrom, fromID)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []service.HistoryRecord
	for _, r := range f.history {
		if r.ID > fromID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMailbox) CurrentHistoryID(context.Context) (uint64, error) {
	return f.current, nil
}

func (f *fakeMailbox) Watch(context.Context, string, []string) (service.WatchResponse, error) {
	return f.watch, nil
}

// memStorage is an in-memory service.Storage with the same uniqueness rules as
// the SQL schema.
type memStorage struct {
	emails       map[string]*model.Email // by message id
	merchants    map[string]*model.Merchant
	transactions map[string]*model.Transaction // by idempotency key
	failInsert   error
	state        model.SyncState
	cursorWrites []uint64
	nextID       int
	mu           sync.Mutex
}

var _ service.Storage = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{
		emails:       make(map[string]*model.Email),
		merchants:    make(map[string]*model.Merchant),
		transactions: make(map[string]*model.Transaction),
	}
}

func (m *memStorage) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStorage) InsertEmail(_ context.Context, email *model.Email) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return "", false, m.failInsert
	}
	if existing, ok := m.emails[email.MessageID]; ok {
		return existing.ID, false, nil
	}
	stored := *email
	stored.ID = m.id("email")
	stored.CreatedAt = time.Now()
	m.emails[email.MessageID] = &stored
	return stored.ID, true, nil
}

func (m *memStorage) GetEmailByMessageID(_ context.Context, messageID string) (*model.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[messageID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

func (m *memStorage) MarkEmailParsed(_ context.Context, emailID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.ID == emailID {
			e.Parsed = true
			return nil
		}
	}
	return common.ErrNotFound
}

func (m *memStorage) LatestEmailTime(context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, e := range m.emails {
		if e.ReceivedAt.After(latest) {
			latest = e.ReceivedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

func (m *memStorage) GetOrCreateMerchant(_ context.Context, name, normalizedName, category string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.merchants[normalizedName]; ok {
		return existing.ID, nil
	}
	merchant := &model.Merchant{ID: m.id("merchant"), Name: name, NormalizedName: normalizedName, Category: category}
	m.merchants[normalizedName] = merchant
	return merchant.ID, nil
}

func (m *memStorage) GetMerchantByNormalizedName(_ context.Context, normalizedName string) (*model.Merchant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merchant, ok := m.merchants[normalizedName]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *merchant
	return &copied, nil
}

func (m *memStorage) InsertTransaction(_ context.Context, txn *model.Transaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.transactions[txn.IdempotencyKey]; ok {
		return existing.ID, fmt.Errorf("%w: %s", common.ErrDuplicateEntry, txn.IdempotencyKey)
	}
	stored := *txn
	stored.ID = m.id("txn")
	m.transactions[txn.IdempotencyKey] = &stored
	for _, merchant := range m.merchants {
		if merchant.ID == txn.MerchantID {
			merchant.TransactionCount++
			merchant.TotalAmount = merchant.TotalAmount.Add(txn.Amount)
		}
	}
	return stored.ID, nil
}

func (m *memStorage) GetTransactionByKey(_ context.Context, key string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.transactions[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *txn
	return &copied, nil
}

func (m *memStorage) GetCursor(context.Context) (model.SyncState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memStorage) SetCursor(_ context.Context, historyID uint64, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursorWrites = append(m.cursorWrites, historyID)
	if historyID < m.state.LastHistoryID {
		return nil
	}
	m.state.LastHistoryID = historyID
	m.state.LastSyncedAt = &syncedAt
	return nil
}

func (m *memStorage) SetWatchExpiration(_ context.Context, expiration time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.WatchExpiration = &expiration
	return nil
}

func (m *memStorage) GetStats(context.Context) (*model.Stats, error) {
	return nil, errors.New("not implemented")
}

func (m *memStorage) Migrate(context.Context) error { return nil }
func (m *memStorage) Close() error                  { return nil }

func (m *memStorage) transactionList() []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Transaction, 0, len(m.transactions))
	for _, t := range m.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// countingFallback records how often it is asked to parse.
type countingFallback struct {
	txn   *model.ParsedTransaction
	calls int
}

func (c *countingFallback) Parse(context.Context, string) (*model.ParsedTransaction, error) {
	c.calls++
	if c.txn == nil {
		return nil, nil
	}
	copied := *c.txn
	return &copied, nil
}

type staticCategorizer string

func (s staticCategorizer) Categorize(string) string { return string(s) }
