package model

import "time"

// SyncState is the process-wide mailbox history cursor.
type SyncState struct {
	LastSyncedAt    *time.Time
	WatchExpiration *time.Time
	LastHistoryID   uint64
}

// Initialized reports whether a cursor has been recorded yet.
func (s SyncState) Initialized() bool {
	return s.LastHistoryID > 0
}
