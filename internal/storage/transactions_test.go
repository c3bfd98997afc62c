package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-spice-must-ingest/internal/common"
	"github.com/Veraticus/the-spice-must-ingest/internal/model"
)

func seedEmailAndMerchant(t *testing.T, store *SQLiteStorage) (string, string) {
	t.Helper()
	ctx := context.Background()

	emailID, _, err := store.InsertEmail(ctx, testEmail("msg-loan", time.Date(2025, 10, 7, 0, 47, 26, 0, time.UTC)))
	if err != nil {
		t.Fatalf("InsertEmail() error = %v", err)
	}
	merchantID, err := store.GetOrCreateMerchant(ctx, "Loan Payment 1020-3344", "loan payment 10203344", "Bills & Utilities")
	if err != nil {
		t.Fatalf("GetOrCreateMerchant() error = %v", err)
	}
	return emailID, merchantID
}

func testTransaction(emailID, merchantID, key string, amount string) *model.Transaction {
	ts := time.Date(2025, 10, 7, 0, 47, 26, 0, time.UTC)
	return &model.Transaction{
		EmailID:        emailID,
		MerchantID:     merchantID,
		IdempotencyKey: key,
		Provider:       "banisi",
		Kind:           model.KindPayment,
		Channel:        model.ChannelBankTransfer,
		Amount:         decimal.RequireFromString(amount),
		Currency:       "USD",
		MerchantName:   "Loan Payment 1020-3344",
		Date:           "2025-10-06",
		Timestamp:      &ts,
		Reference:      "76751297",
		Description:    "Banisi Loan Payment 1020-3344",
	}
}

func TestInsertTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, merchantID := seedEmailAndMerchant(t, store)

	id, err := store.InsertTransaction(ctx, testTransaction(emailID, merchantID, "key-1", "436.93"))
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if id == "" {
		t.Fatal("InsertTransaction() returned an empty id")
	}

	got, err := store.GetTransactionByKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("GetTransactionByKey() error = %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %s, want %s", got.ID, id)
	}
	if got.Date != "2025-10-06" {
		t.Errorf("Date = %s, want 2025-10-06", got.Date)
	}
	if !got.Amount.Equal(decimal.RequireFromString("436.93")) {
		t.Errorf("Amount = %s, want 436.93", got.Amount)
	}
	if got.Kind != model.KindPayment || got.Channel != model.ChannelBankTransfer {
		t.Errorf("Kind/Channel = %s/%s", got.Kind, got.Channel)
	}
	if got.MerchantID != merchantID || got.Reference != "76751297" {
		t.Errorf("unexpected round trip: %+v", got)
	}
	if got.Timestamp == nil || !got.Timestamp.Equal(time.Date(2025, 10, 7, 0, 47, 26, 0, time.UTC)) {
		t.Errorf("Timestamp = %v", got.Timestamp)
	}
}

func TestInsertTransactionIsIdempotent(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, merchantID := seedEmailAndMerchant(t, store)

	first, err := store.InsertTransaction(ctx, testTransaction(emailID, merchantID, "key-1", "436.93"))
	if err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}

	second, err := store.InsertTransaction(ctx, testTransaction(emailID, merchantID, "key-1", "436.93"))
	if !errors.Is(err, common.ErrDuplicateEntry) {
		t.Fatalf("second InsertTransaction() error = %v, want ErrDuplicateEntry", err)
	}
	if second != first {
		t.Errorf("duplicate insert returned id %s, want existing %s", second, first)
	}

	count, err := store.CountTransactionsForEmail(ctx, emailID)
	if err != nil {
		t.Fatalf("CountTransactionsForEmail() error = %v", err)
	}
	if count != 1 {
		t.Errorf("transactions for email = %d, want 1", count)
	}
}

func TestInsertTransactionUpdatesMerchantAggregates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, merchantID := seedEmailAndMerchant(t, store)

	for i, amount := range []string{"10.10", "0.20"} {
		key := []string{"key-a", "key-b"}[i]
		if _, err := store.InsertTransaction(ctx, testTransaction(emailID, merchantID, key, amount)); err != nil {
			t.Fatalf("InsertTransaction(%s) error = %v", key, err)
		}
	}
	// A duplicate must not count twice.
	_, _ = store.InsertTransaction(ctx, testTransaction(emailID, merchantID, "key-a", "10.10"))

	merchant, err := store.GetMerchantByNormalizedName(ctx, "loan payment 10203344")
	if err != nil {
		t.Fatalf("GetMerchantByNormalizedName() error = %v", err)
	}
	if merchant.TransactionCount != 2 {
		t.Errorf("TransactionCount = %d, want 2", merchant.TransactionCount)
	}
	if !merchant.TotalAmount.Equal(decimal.RequireFromString("10.30")) {
		t.Errorf("TotalAmount = %s, want 10.30", merchant.TotalAmount)
	}
}

func TestInsertTransactionWithoutMerchant(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, _ := seedEmailAndMerchant(t, store)

	if _, err := store.InsertTransaction(ctx, testTransaction(emailID, "", "key-x", "5")); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	got, err := store.GetTransactionByKey(ctx, "key-x")
	if err != nil {
		t.Fatalf("GetTransactionByKey() error = %v", err)
	}
	if got.MerchantID != "" {
		t.Errorf("MerchantID = %q, want empty", got.MerchantID)
	}
}

func TestInsertTransactionValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, merchantID := seedEmailAndMerchant(t, store)

	tests := []struct {
		mutate func(*model.Transaction)
		name   string
	}{
		{name: "missing email", mutate: func(txn *model.Transaction) { txn.EmailID = "" }},
		{name: "missing key", mutate: func(txn *model.Transaction) { txn.IdempotencyKey = "" }},
		{name: "missing date", mutate: func(txn *model.Transaction) { txn.Date = "" }},
		{name: "zero amount", mutate: func(txn *model.Transaction) { txn.Amount = decimal.Zero }},
		{name: "bad kind", mutate: func(txn *model.Transaction) { txn.Kind = "gift" }},
		{name: "bad channel", mutate: func(txn *model.Transaction) { txn.Channel = "pigeon" }},
		{name: "bad currency", mutate: func(txn *model.Transaction) { txn.Currency = "DOLLAR" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := testTransaction(emailID, merchantID, "key-"+tt.name, "1")
			tt.mutate(txn)
			if _, err := store.InsertTransaction(ctx, txn); !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("InsertTransaction() error = %v, want ErrInvalidTransaction", err)
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	emailID, merchantID := seedEmailAndMerchant(t, store)

	unknown := testEmail("msg-other", time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	unknown.Provider = ""
	if _, _, err := store.InsertEmail(ctx, unknown); err != nil {
		t.Fatalf("InsertEmail() error = %v", err)
	}
	if _, err := store.InsertTransaction(ctx, testTransaction(emailID, merchantID, "key-1", "436.93")); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if err := store.MarkEmailParsed(ctx, emailID); err != nil {
		t.Fatalf("MarkEmailParsed() error = %v", err)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.TotalEmails != 2 || stats.ParsedEmails != 1 || stats.UnparsedEmails != 1 {
		t.Errorf("email counts = %d/%d/%d, want 2/1/1", stats.TotalEmails, stats.ParsedEmails, stats.UnparsedEmails)
	}
	if stats.TotalTransactions != 1 || stats.TotalMerchants != 1 {
		t.Errorf("transactions/merchants = %d/%d, want 1/1", stats.TotalTransactions, stats.TotalMerchants)
	}
	if stats.EmailsByProvider["banisi"] != 1 || stats.EmailsByProvider["unknown"] != 1 {
		t.Errorf("EmailsByProvider = %v", stats.EmailsByProvider)
	}
	if stats.LatestEmail == nil || !stats.LatestEmail.Equal(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LatestEmail = %v", stats.LatestEmail)
	}
}
