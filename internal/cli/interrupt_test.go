package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestInterruptHandler(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		cancel      bool
		interrupted bool
		want        []string
		notWant     []string
	}{
		{
			name:        "canceled with hint",
			hint:        "spice backfill --days 30",
			cancel:      true,
			interrupted: true,
			want:        []string{"Interrupted!", "saved", "Continue with: spice backfill --days 30"},
		},
		{
			name:        "canceled without hint",
			cancel:      true,
			interrupted: true,
			want:        []string{"Interrupted!"},
			notWant:     []string{"Continue with"},
		},
		{
			name:    "finished normally",
			hint:    "spice sync",
			notWant: []string{"Interrupted!"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &syncBuffer{}
			h := NewInterruptHandler(out, tt.hint)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.Watch(ctx)
			if tt.cancel {
				cancel()
				<-h.done
			}
			h.Stop()
			h.Stop()

			if got := h.WasInterrupted(); got != tt.interrupted {
				t.Errorf("WasInterrupted() = %v, want %v", got, tt.interrupted)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output %q missing %q", out.String(), w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out.String(), w) {
					t.Errorf("output %q should not contain %q", out.String(), w)
				}
			}
		})
	}
}
