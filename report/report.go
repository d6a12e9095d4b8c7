// Package report appends engagement outcomes to a CSV file for
// spreadsheet review. The file is append-only: the header is written
// once when the file is created and rows accumulate across runs.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/formreach/formreach/engage"
)

var header = []string{
	"timestamp", "attempt_id", "domain", "url",
	"submitted", "backend", "tried", "challenge", "failure", "signal", "elapsed_ms",
}

// Writer appends outcome rows to one CSV file. Safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	csv  *csv.Writer
	now  func() time.Time
}

// NewWriter opens (creating if needed) the CSV at path. The header is
// written only when the file starts empty.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("report: stat: %w", err)
	}

	w := &Writer{file: f, csv: csv.NewWriter(f), now: time.Now}
	if info.Size() == 0 {
		if err := w.csv.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: write header: %w", err)
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: flush header: %w", err)
		}
	}
	return w, nil
}

// Append writes one outcome row and flushes it to disk.
func (w *Writer) Append(out *engage.Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tried := make([]string, len(out.Tried))
	for i, b := range out.Tried {
		tried[i] = string(b)
	}
	row := []string{
		w.now().UTC().Format(time.RFC3339),
		out.AttemptID,
		out.Domain,
		out.URL,
		strconv.FormatBool(out.Submitted),
		string(out.Backend),
		strings.Join(tried, "|"),
		out.Challenge,
		string(out.Failure),
		out.Signal,
		strconv.FormatInt(out.ElapsedMs, 10),
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("report: write row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		w.file.Close()
		return fmt.Errorf("report: flush: %w", err)
	}
	return w.file.Close()
}
