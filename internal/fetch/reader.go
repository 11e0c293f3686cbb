// Package fetch provides a reader that defers a file download until the
// first read and verifies the downloaded content against its md5 digest.
package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/me/gdcmaf/internal/logging"
	"github.com/me/gdcmaf/pkg/model"
)

// Response describes the outcome of one retrieval.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
}

// Retriever performs the network fetch of one file.
type Retriever interface {
	Retrieve(ctx context.Context) (*Response, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context) (*Response, error)

// Retrieve calls f(ctx).
func (f RetrieverFunc) Retrieve(ctx context.Context) (*Response, error) {
	return f(ctx)
}

type state int

const (
	stateUnrealized state = iota
	stateRealized
	stateFailed // soft failure, reads behave as an empty stream
	stateBroken // fatal error, every read returns it
)

// Reader is a lazily realized download. The retrieval runs at most once, on
// the first Read, ReadN or Realize call. The content is dropped once it has
// been read to the end.
type Reader struct {
	id          string
	expectedMD5 string
	retriever   Retriever
	ctx         context.Context
	logger      *slog.Logger

	mu     sync.Mutex
	state  state
	body   []byte
	pos    int
	size   int
	reason string
	err    error
	done   chan struct{}
	closed bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for realization events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithContext sets the context used when realization is triggered by Read or
// ReadN. Realize uses the context it is given.
func WithContext(ctx context.Context) Option {
	return func(r *Reader) {
		if ctx != nil {
			r.ctx = ctx
		}
	}
}

// NewReader returns an unrealized Reader for the file identified by id.
// expectedMD5 may be empty to skip verification.
func NewReader(retriever Retriever, id, expectedMD5 string, opts ...Option) *Reader {
	r := &Reader{
		id:          id,
		expectedMD5: expectedMD5,
		retriever:   retriever,
		ctx:         context.Background(),
		logger:      logging.Discard(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the file identifier the reader was built for.
func (r *Reader) ID() string {
	return r.id
}

// Realize performs the retrieval if it has not happened yet. It returns a
// non-nil error only for fatal conditions: a checksum mismatch or a cancelled
// context. Soft failures are reported through FailedReason.
func (r *Reader) Realize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.realizeLocked(ctx)
}

func (r *Reader) realizeLocked(ctx context.Context) error {
	switch r.state {
	case stateRealized, stateFailed:
		return nil
	case stateBroken:
		return r.err
	}

	logger := r.logger.With("file_id", r.id)
	logger.Info("downloading file")

	resp, err := r.retriever.Retrieve(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.state, r.err = stateBroken, ctxErr
			r.release()
			return r.err
		}
		r.fail(logger, model.RequestFailedReason(err))
		return nil
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if err := VerifyMD5(resp.Body, r.expectedMD5); err != nil {
			var ce *ChecksumError
			if errors.As(err, &ce) {
				ce.ID = r.id
			}
			r.state, r.err = stateBroken, err
			r.release()
			logger.Error("checksum verification failed", "error", err)
			return err
		}
		r.state = stateRealized
		r.body = resp.Body
		r.size = len(resp.Body)
		r.pos = 0
		logger.Debug("file downloaded", "bytes", len(resp.Body), "url", resp.URL)
		if r.size == 0 {
			r.release()
		}
	case http.StatusForbidden:
		r.fail(logger, model.ReasonNotAuthorized)
	case http.StatusNotFound:
		r.fail(logger, model.ReasonFileNotFound)
	default:
		r.fail(logger, model.UncaughtStatusReason(resp.StatusCode))
	}
	return nil
}

func (r *Reader) fail(logger *slog.Logger, reason string) {
	r.state = stateFailed
	r.reason = reason
	r.release()
	logger.Warn("file will not be included in the output", "reason", reason)
}

// release drops the content and closes done. Callers hold r.mu.
func (r *Reader) release() {
	r.body = nil
	r.pos = 0
	if !r.closed {
		r.closed = true
		close(r.done)
	}
}

// Done returns a channel that is closed once the reader holds no content:
// it was read to the end, failed softly, or broke.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Read implements io.Reader. A softly failed reader reads as empty.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.realizeLocked(r.ctx); err != nil {
		return 0, err
	}
	if r.pos >= len(r.body) {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, r.body[r.pos:])
	r.pos += n
	if r.pos >= len(r.body) {
		r.release()
	}
	return n, nil
}

// ReadN returns up to n bytes, or everything that is left when n is negative.
// It returns an empty slice once the content is exhausted.
func (r *Reader) ReadN(n int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.realizeLocked(r.ctx); err != nil {
		return nil, err
	}
	remaining := len(r.body) - r.pos
	if remaining <= 0 || n == 0 {
		return []byte{}, nil
	}
	if n < 0 || n > remaining {
		n = remaining
	}
	out := r.body[r.pos : r.pos+n]
	r.pos += n
	if r.pos >= len(r.body) {
		r.release()
	}
	return out, nil
}

// Realized reports whether the retrieval has been performed.
func (r *Reader) Realized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != stateUnrealized
}

// Failed reports whether the retrieval ended in a soft failure.
func (r *Reader) Failed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateFailed
}

// FailedReason returns the soft failure reason, or "" while unrealized and on
// success.
func (r *Reader) FailedReason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Err returns the fatal error of a broken reader.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Len returns the size of the downloaded content, also after it was read
// and dropped.
func (r *Reader) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
