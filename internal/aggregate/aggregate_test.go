package aggregate

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

const mafHeader = "Hugo_Symbol\tChromosome\tTumor_Sample_Barcode"

func maf(rows ...string) string {
	return "#version gdc-1.0.0\n#annotation.spec gdc-2.0.0\n" + mafHeader + "\n" + strings.Join(rows, "\n") + "\n"
}

func gzipped(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(s))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func gunzip(t *testing.T, b []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("output is not gzip: %v", err)
	}
	out, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	return string(out)
}

func TestAggregate_ConcatenatesWithOneHeader(t *testing.T) {
	inputs := []Input{
		{ID: "f1", TumorAliquotSubmitterID: "A-01", Source: strings.NewReader(maf("TP53\tchr17\tA-01"))},
		{ID: "f2", TumorAliquotSubmitterID: "B-01", Source: bytes.NewReader(gzipped(t, maf("KRAS\tchr12\tB-01", "NPM1\tchr5\tB-01")))},
	}
	var out bytes.Buffer
	stats, err := New(nil).Aggregate(inputs, &out)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	want := "#version gdc-1.0.0\n#annotation.spec gdc-2.0.0\n" + mafHeader + "\n" +
		"TP53\tchr17\tA-01\nKRAS\tchr12\tB-01\nNPM1\tchr5\tB-01\n"
	if got := gunzip(t, out.Bytes()); got != want {
		t.Errorf("aggregate =\n%s\nwant\n%s", got, want)
	}
	if stats.Files != 2 || stats.Rows != 3 || stats.Skipped != 0 || stats.BarcodeMismatches != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAggregate_SkipsEmptyInputs(t *testing.T) {
	inputs := []Input{
		{ID: "failed", Source: strings.NewReader("")},
		{ID: "f1", Source: strings.NewReader(maf("TP53\tchr17\tA-01"))},
	}
	var out bytes.Buffer
	stats, err := New(nil).Aggregate(inputs, &out)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if stats.Files != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !strings.HasPrefix(gunzip(t, out.Bytes()), "#version") {
		t.Error("comment lines of the first written input are missing")
	}
}

func TestAggregate_NoInputsIsValidGzip(t *testing.T) {
	var out bytes.Buffer
	if _, err := New(nil).Aggregate(nil, &out); err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := gunzip(t, out.Bytes()); got != "" {
		t.Errorf("aggregate = %q, want empty", got)
	}
}

func TestAggregate_HeaderMismatch(t *testing.T) {
	inputs := []Input{
		{ID: "f1", Source: strings.NewReader(maf("TP53\tchr17\tA-01"))},
		{ID: "f2", Source: strings.NewReader("Hugo_Symbol\tStart_Position\nKRAS\t25245350\n")},
	}
	_, err := New(nil).Aggregate(inputs, io.Discard)
	var mismatch *HeaderMismatchError
	if !errors.As(err, &mismatch) || mismatch.ID != "f2" {
		t.Errorf("Aggregate() error = %v, want header mismatch for f2", err)
	}
}

func TestAggregate_PropagatesReadErrors(t *testing.T) {
	boom := errors.New("failed checksum")
	inputs := []Input{{ID: "f1", Source: io.MultiReader(strings.NewReader("x"), errReader{boom})}}
	if _, err := New(nil).Aggregate(inputs, io.Discard); !errors.Is(err, boom) {
		t.Errorf("Aggregate() error = %v, want %v", err, boom)
	}
}

func TestAggregate_CountsBarcodeMismatches(t *testing.T) {
	inputs := []Input{
		{ID: "f1", TumorAliquotSubmitterID: "A-01", Source: strings.NewReader(maf("TP53\tchr17\tA-01", "KRAS\tchr12\tOTHER"))},
	}
	stats, err := New(nil).Aggregate(inputs, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if stats.BarcodeMismatches != 1 {
		t.Errorf("BarcodeMismatches = %d, want 1", stats.BarcodeMismatches)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
