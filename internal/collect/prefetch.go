package collect

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/me/gdcmaf/pkg/model"
)

// Prefetcher downloads items in the background ahead of a consumer that reads
// them in item order.
type Prefetcher struct {
	g      *errgroup.Group
	cancel context.CancelFunc
}

// StartPrefetch realizes the readers of items in item order on at most window
// workers. A reader keeps its slot until it has been read to the end or has
// failed, so at most window downloaded files are held ahead of the consumer.
// The first fatal reader error cancels the remaining downloads.
func StartPrefetch(ctx context.Context, items []Item, window int) *Prefetcher {
	if window <= 0 {
		window = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	slots := make(chan struct{}, window)

	g.Go(func() error {
		for _, it := range items {
			select {
			case slots <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			if gctx.Err() != nil {
				<-slots
				return nil
			}
			r := it.Reader
			g.Go(func() error {
				defer func() { <-slots }()
				if err := r.Realize(gctx); err != nil {
					return err
				}
				select {
				case <-r.Done():
				case <-gctx.Done():
				}
				return nil
			})
		}
		return nil
	})
	return &Prefetcher{g: g, cancel: cancel}
}

// Wait blocks until every item was downloaded and consumed, and returns the
// first fatal reader error.
func (p *Prefetcher) Wait() error {
	defer p.cancel()
	return p.g.Wait()
}

// Stop cancels the downloads still running or queued and returns the first
// error the workers saw.
func (p *Prefetcher) Stop() error {
	p.cancel()
	return p.g.Wait()
}

// ReaderFailures returns one record per softly failed reader, in item order.
// Unrealized readers are skipped.
func ReaderFailures(items []Item) []model.FailureRecord {
	var records []model.FailureRecord
	for _, it := range items {
		if !it.Reader.Failed() {
			continue
		}
		records = append(records, model.FailureRecord{
			CaseID: it.CaseID,
			FileID: it.FileID,
			Reason: it.Reader.FailedReason(),
		})
	}
	return records
}
