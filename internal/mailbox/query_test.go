package mailbox

import (
	"testing"
	"time"
)

func TestBuildQuery(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		opts QueryOptions
		want string
	}{
		{"empty", QueryOptions{}, ""},
		{"after date in home zone", QueryOptions{After: time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)}, "after:2024/02/29"},
		{"trailing days", QueryOptions{Days: 7, Now: now}, "after:1709467200"},
		{"after wins over days", QueryOptions{After: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), Days: 7, Now: now}, "after:2024/01/15"},
		{"label", QueryOptions{Label: "Bancos"}, "label:Bancos"},
		{"label with space", QueryOptions{Label: "Bank Alerts"}, `label:"Bank Alerts"`},
		{"combined", QueryOptions{Days: 1, Now: now, Label: "finanzas"}, "after:1709985600 label:finanzas"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.opts); got != tt.want {
				t.Errorf("BuildQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAfterRoundTripsBuildQuery(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	after, ok := parseAfter(BuildQuery(QueryOptions{Days: 7, Now: now}))
	if !ok || !after.Equal(now.AddDate(0, 0, -7)) {
		t.Errorf("parseAfter(days) = %v, %v", after, ok)
	}

	after, ok = parseAfter("after:2024/02/29 label:x")
	if !ok {
		t.Fatal("expected date bound")
	}
	if got := after.UTC(); !got.Equal(time.Date(2024, 2, 29, 5, 0, 0, 0, time.UTC)) {
		t.Errorf("parseAfter(date) = %v", got)
	}

	if _, ok := parseAfter("label:x"); ok {
		t.Error("expected no bound")
	}
}
