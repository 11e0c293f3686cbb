// Package report writes and reads the tab separated failure report of a run.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/me/gdcmaf/pkg/model"
)

// Header is the column row of every failure report.
var Header = []string{"case_id", "file_id", "reason"}

// DefaultFilename returns the report name used when none is configured.
func DefaultFilename(t time.Time) string {
	return "failed-downloads-" + t.Format("20060102_150405") + ".tsv"
}

// Writer appends failure records to one report file. The header row is
// written only when the file is new or empty. Writes are serialized.
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter returns a Writer for path. The file is created on the first
// Write.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write appends records. Writing no records leaves the file untouched.
func (w *Writer) Write(records []model.FailureRecord) error {
	if len(records) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open failure report: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat failure report: %w", err)
	}

	cw := csv.NewWriter(f)
	cw.Comma = '\t'
	if info.Size() == 0 {
		cw.Write(Header)
	}
	for _, r := range records {
		cw.Write([]string{r.CaseID, r.FileID, r.Reason})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write failure report: %w", err)
	}
	return f.Close()
}

// Read parses a failure report written by Writer.
func Read(path string) ([]model.FailureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read failure report header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected failure report column %q, want %q", header[i], col)
		}
	}

	var records []model.FailureRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read failure report: %w", err)
		}
		records = append(records, model.FailureRecord{CaseID: row[0], FileID: row[1], Reason: row[2]})
	}
	return records, nil
}
