package fetch

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// countingRetriever returns a fixed response and counts calls.
type countingRetriever struct {
	resp  *Response
	err   error
	calls int
}

func (c *countingRetriever) Retrieve(ctx context.Context) (*Response, error) {
	c.calls++
	return c.resp, c.err
}

func ok(body string) *countingRetriever {
	return &countingRetriever{resp: &Response{StatusCode: 200, Body: []byte(body), URL: "https://api.gdc.cancer.gov/data/x"}}
}

func TestReader_ReadAll(t *testing.T) {
	r := NewReader(ok("one\ntwo\nthree"), "file-1", "")
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "one\ntwo\nthree" {
		t.Errorf("content = %q", got)
	}
}

func TestReader_DeferredUntilFirstRead(t *testing.T) {
	rt := ok("content")
	r := NewReader(rt, "file-1", "")
	if rt.calls != 0 {
		t.Fatalf("retrieval ran on construction")
	}
	if r.Realized() {
		t.Fatal("Realized() = true before first read")
	}
	if _, err := r.ReadN(1); err != nil {
		t.Fatalf("ReadN: %v", err)
	}
	if rt.calls != 1 || !r.Realized() {
		t.Errorf("calls = %d, realized = %v", rt.calls, r.Realized())
	}
}

func TestReader_ReadNSlices(t *testing.T) {
	rt := ok("abcdefg")
	r := NewReader(rt, "file-1", "")

	steps := []struct {
		n    int
		want string
	}{
		{3, "abc"},
		{0, ""},
		{2, "de"},
		{10, "fg"},
		{3, ""},
		{-1, ""},
	}
	for i, s := range steps {
		got, err := r.ReadN(s.n)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if string(got) != s.want {
			t.Errorf("step %d: ReadN(%d) = %q, want %q", i, s.n, got, s.want)
		}
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1", rt.calls)
	}
}

func TestReader_SecondReadIsEmptyWithoutNetworkCall(t *testing.T) {
	rt := ok("payload")
	r := NewReader(rt, "file-1", "")

	first, err := r.ReadN(-1)
	if err != nil || string(first) != "payload" {
		t.Fatalf("first ReadN = %q, %v", first, err)
	}
	second, err := r.ReadN(-1)
	if err != nil {
		t.Fatalf("second ReadN: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second ReadN = %q, want empty", second)
	}
	if n, err := r.Read(make([]byte, 8)); n != 0 || err != io.EOF {
		t.Errorf("Read after exhaustion = %d, %v; want 0, EOF", n, err)
	}
	if err := r.Realize(context.Background()); err != nil {
		t.Errorf("Realize: %v", err)
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1", rt.calls)
	}
}

func TestReader_SoftFailures(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{403, "not authorized"},
		{404, "file not found"},
		{500, "uncaught error code: 500"},
		{401, "uncaught error code: 401"},
		{302, "uncaught error code: 302"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			rt := &countingRetriever{resp: &Response{StatusCode: tt.status, Body: []byte("failed request")}}
			r := NewReader(rt, "file-1", "d8ab26d704d5d89a5356609ec42c2691")

			if r.FailedReason() != "" {
				t.Fatalf("FailedReason before realization = %q", r.FailedReason())
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if len(got) != 0 {
				t.Errorf("content = %q, want empty", got)
			}
			if !r.Failed() || r.FailedReason() != tt.want {
				t.Errorf("FailedReason() = %q, want %q", r.FailedReason(), tt.want)
			}
			if b, _ := r.ReadN(-1); len(b) != 0 {
				t.Errorf("ReadN after failure = %q", b)
			}
			if rt.calls != 1 {
				t.Errorf("calls = %d, want 1", rt.calls)
			}
		})
	}
}

func TestReader_RetrievalErrorIsSoft(t *testing.T) {
	rt := &countingRetriever{err: errors.New("connection reset by peer")}
	r := NewReader(rt, "file-1", "")
	if err := r.Realize(context.Background()); err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if !strings.HasPrefix(r.FailedReason(), "request failed: ") {
		t.Errorf("FailedReason() = %q", r.FailedReason())
	}
}

func TestReader_CancelledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rt := &countingRetriever{err: context.Canceled}
	r := NewReader(rt, "file-1", "")
	if err := r.Realize(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Realize() = %v, want context.Canceled", err)
	}
	if r.Failed() {
		t.Error("a cancelled download must not be recorded as a soft failure")
	}
}

func TestReader_MD5Match(t *testing.T) {
	r := NewReader(ok("md5_match\n"), "file-1", "d8ab26d704d5d89a5356609ec42c2691")
	got, err := r.ReadN(-1)
	if err != nil {
		t.Fatalf("ReadN: %v", err)
	}
	if string(got) != "md5_match\n" {
		t.Errorf("content = %q", got)
	}
}

func TestReader_MD5MismatchIsFatalOnFirstRead(t *testing.T) {
	rt := ok("md5_mismatch\n")
	r := NewReader(rt, "file-1", "d8ab26d704d5d89a5356609ec42c2691")
	if r.Err() != nil {
		t.Fatal("error reported on construction")
	}

	_, err := r.ReadN(-1)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("ReadN() error = %v, want checksum mismatch", err)
	}
	var ce *ChecksumError
	if !errors.As(err, &ce) || ce.ID != "file-1" || ce.Expected != "d8ab26d704d5d89a5356609ec42c2691" {
		t.Errorf("ChecksumError = %+v", ce)
	}

	// The error is sticky and the download is not repeated.
	if _, err := r.Read(make([]byte, 4)); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("second Read() error = %v", err)
	}
	if r.Failed() || r.FailedReason() != "" {
		t.Error("checksum mismatch must not be a soft failure")
	}
	if rt.calls != 1 {
		t.Errorf("calls = %d, want 1", rt.calls)
	}
}

func TestReader_RetrieverFunc(t *testing.T) {
	calls := 0
	r := NewReader(RetrieverFunc(func(ctx context.Context) (*Response, error) {
		calls++
		return &Response{StatusCode: 200, Body: []byte("x")}, nil
	}), "file-1", "")
	for i := 0; i < 3; i++ {
		if err := r.Realize(context.Background()); err != nil {
			t.Fatalf("Realize: %v", err)
		}
	}
	if calls != 1 || r.Len() != 1 || r.ID() != "file-1" {
		t.Errorf("calls = %d, len = %d, id = %q", calls, r.Len(), r.ID())
	}
}

func isDone(r *Reader) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

func TestReader_ContentDroppedAtEOF(t *testing.T) {
	r := NewReader(ok("abcdef"), "file-1", "")
	if err := r.Realize(context.Background()); err != nil {
		t.Fatalf("Realize: %v", err)
	}
	if isDone(r) || len(r.body) != 6 {
		t.Fatalf("realized reader: done = %v, resident = %d", isDone(r), len(r.body))
	}

	if _, err := r.ReadN(3); err != nil {
		t.Fatalf("ReadN: %v", err)
	}
	if isDone(r) {
		t.Fatal("Done closed before the content was read to the end")
	}
	rest, err := io.ReadAll(r)
	if err != nil || string(rest) != "def" {
		t.Fatalf("ReadAll() = %q, %v", rest, err)
	}
	if !isDone(r) || r.body != nil {
		t.Errorf("after EOF: done = %v, resident = %d", isDone(r), len(r.body))
	}
	if r.Len() != 6 {
		t.Errorf("Len() after EOF = %d, want 6", r.Len())
	}
	if b, err := r.ReadN(-1); err != nil || len(b) != 0 {
		t.Errorf("ReadN(-1) after EOF = %q, %v", b, err)
	}
}

func TestReader_DoneOnFailure(t *testing.T) {
	soft := NewReader(&countingRetriever{resp: &Response{StatusCode: 404}}, "file-1", "")
	soft.Realize(context.Background())
	if !isDone(soft) {
		t.Error("Done not closed after a soft failure")
	}

	broken := NewReader(ok("content"), "file-2", "00000000000000000000000000000000")
	if err := broken.Realize(context.Background()); err == nil {
		t.Fatal("Realize() with a wrong digest succeeded")
	}
	if !isDone(broken) {
		t.Error("Done not closed after a checksum mismatch")
	}
}
