package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// InterruptHandler tells the user what survives when a batch command is
// canceled part way. Messages already processed stay stored, so the hint
// points at re-running the command.
type InterruptHandler struct {
	writer      io.Writer
	stop        chan struct{}
	done        chan struct{}
	resumeHint  string
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler writing to writer (stderr when nil).
func NewInterruptHandler(writer io.Writer, resumeHint string) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{
		writer:     writer,
		resumeHint: resumeHint,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Watch reports once when ctx is canceled before Stop is called.
func (h *InterruptHandler) Watch(ctx context.Context) {
	go func() {
		defer close(h.done)
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.interrupted = true
			h.mu.Unlock()
			h.showInterruptMessage()
		case <-h.stop:
		}
	}()
}

// Stop ends watching and waits for a pending message to be written.
func (h *InterruptHandler) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// WasInterrupted reports whether the watched context was canceled.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning("Interrupted!") +
		"\n" + FormatInfo("Messages processed so far are saved.")
	if h.resumeHint != "" {
		msg += "\n" + FormatInfo("Continue with: "+h.resumeHint)
	}
	msg += "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		slog.Warn("Failed to write interrupt message", "error", err)
	}
}
