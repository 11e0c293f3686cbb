// Package aggregate concatenates aliquot level MAF files into one gzip
// compressed MAF.
package aggregate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/me/gdcmaf/internal/logging"
)

const maxLineSize = 16 << 20

// BarcodeColumn holds the tumor aliquot of each mutation row.
const BarcodeColumn = "Tumor_Sample_Barcode"

// Input is one MAF to append. A source that reads as empty is skipped.
type Input struct {
	ID                      string
	TumorAliquotSubmitterID string
	Source                  io.Reader
}

// Stats summarizes an aggregation.
type Stats struct {
	Files             int
	Skipped           int
	Rows              int
	Bytes             int64
	BarcodeMismatches int
}

// HeaderMismatchError is returned when a MAF has different columns than the
// first one written.
type HeaderMismatchError struct {
	ID   string
	Want string
	Got  string
}

func (e *HeaderMismatchError) Error() string {
	return fmt.Sprintf("column header of %s does not match the aggregate header", e.ID)
}

// Aggregator writes MAF inputs to one gzip stream. The comment lines and the
// column header of the first non-empty input are written once.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an Aggregator.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Aggregator{logger: logger.With("component", "aggregate")}
}

// Aggregate writes inputs, in order, to w. Read errors from an input are
// returned unchanged so callers can tell integrity failures apart.
func (a *Aggregator) Aggregate(inputs []Input, w io.Writer) (Stats, error) {
	var stats Stats
	zw := gzip.NewWriter(w)

	var header string
	for _, in := range inputs {
		n, err := a.appendOne(zw, in, &header, &stats)
		if err != nil {
			zw.Close()
			return stats, err
		}
		if n == 0 {
			stats.Skipped++
			continue
		}
		stats.Files++
	}

	if err := zw.Close(); err != nil {
		return stats, fmt.Errorf("close gzip stream: %w", err)
	}
	a.logger.Info("aggregate written", "files", stats.Files, "skipped", stats.Skipped, "rows", stats.Rows)
	return stats, nil
}

// appendOne returns the number of content bytes read from in.
func (a *Aggregator) appendOne(w io.Writer, in Input, header *string, stats *Stats) (int64, error) {
	raw, err := io.ReadAll(in.Source)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	stats.Bytes += int64(len(raw))

	var src io.Reader = bytes.NewReader(raw)
	if isGzip(raw) {
		zr, err := gzip.NewReader(src)
		if err != nil {
			return 0, fmt.Errorf("open gzip maf %s: %w", in.ID, err)
		}
		defer zr.Close()
		src = zr
	}

	first := *header == ""
	barcodeCol := -1
	seenHeader := false

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	bw := bufio.NewWriter(w)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			if first {
				fmt.Fprintln(bw, line)
			}
			continue
		case !seenHeader:
			seenHeader = true
			if first {
				*header = line
				fmt.Fprintln(bw, line)
			} else if line != *header {
				return 0, &HeaderMismatchError{ID: in.ID, Want: *header, Got: line}
			}
			barcodeCol = indexOf(strings.Split(line, "\t"), BarcodeColumn)
			continue
		}

		if barcodeCol >= 0 && in.TumorAliquotSubmitterID != "" {
			fields := strings.Split(line, "\t")
			if barcodeCol < len(fields) && fields[barcodeCol] != in.TumorAliquotSubmitterID {
				stats.BarcodeMismatches++
			}
		}
		fmt.Fprintln(bw, line)
		stats.Rows++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read maf %s: %w", in.ID, err)
	}
	if err := bw.Flush(); err != nil {
		return 0, fmt.Errorf("write aggregate: %w", err)
	}
	if !seenHeader {
		return 0, errors.New("maf " + in.ID + " has no column header")
	}
	return int64(len(raw)), nil
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func indexOf(fields []string, name string) int {
	for i, f := range fields {
		if f == name {
			return i
		}
	}
	return -1
}
