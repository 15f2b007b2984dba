package ingest

import (
	"fmt"
	"io"
	"sync"
)

// ProgressStatus is the lifecycle state of one file during ingestion.
type ProgressStatus string

const (
	ProgressPending ProgressStatus = "pending"
	ProgressParsed  ProgressStatus = "parsed"
	ProgressSkipped ProgressStatus = "skipped"
	ProgressWritten ProgressStatus = "written"
	ProgressFailed  ProgressStatus = "failed"
)

// ProgressEvent reports a file changing state.
type ProgressEvent struct {
	Path    string
	Status  ProgressStatus
	Message string
}

// ProgressPrinter writes one FormatProgress line per event. Print may be
// used as Options.OnProgress: it is safe for concurrent use and writes
// every event, so a large run prints every file.
type ProgressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgressPrinter returns a printer writing to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

// Print writes ev as one line. Write errors are ignored.
func (p *ProgressPrinter) Print(ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, FormatProgress(ev))
}

// FormatProgress formats a ProgressEvent as a human-readable status line.
func FormatProgress(event ProgressEvent) string {
	switch event.Status {
	case ProgressPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Path)
	case ProgressParsed:
		return fmt.Sprintf("  ● %s parsed", event.Path)
	case ProgressSkipped:
		return fmt.Sprintf("  - %s skipped: %s", event.Path, event.Message)
	case ProgressWritten:
		return fmt.Sprintf("  ✓ %s written", event.Path)
	case ProgressFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Path, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Path)
	}
}
