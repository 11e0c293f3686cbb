// Package collect drives a collection run: it queries the metadata of the
// requested scope, selects one primary aliquot per case, and prepares one
// deferred download per selected file. Per-file problems become failure
// records. Only misuse and corruption abort the run.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/me/gdcmaf/internal/fetch"
	"github.com/me/gdcmaf/internal/logging"
	"github.com/me/gdcmaf/internal/metrics"
	"github.com/me/gdcmaf/internal/selection"
	"github.com/me/gdcmaf/pkg/gdc"
	"github.com/me/gdcmaf/pkg/model"
)

// MetadataSource returns every aliquot level MAF hit of a scope.
type MetadataSource interface {
	Files(ctx context.Context, scope gdc.Scope) ([]model.Hit, error)
}

// Downloader fetches the content of one file.
type Downloader interface {
	Download(ctx context.Context, fileID, token string) (*gdc.DataResponse, error)
}

// AccessProber checks whether a token may download a file without fetching it.
type AccessProber interface {
	CanDownload(ctx context.Context, fileID, token string) (bool, error)
}

// Item is one selected file ready for aggregation.
type Item struct {
	Reader                  *fetch.Reader
	TumorAliquotSubmitterID string
	CaseID                  string
	FileID                  string
	FileSize                int64
}

// Collector runs collections against a metadata source and a downloader.
type Collector struct {
	source     MetadataSource
	downloader Downloader
	prober     AccessProber
	logger     *slog.Logger
	tracer     trace.Tracer
	metrics    *metrics.Collector
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records run counters in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Collector) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithAccessProbe checks access to every selected file with a ranged request
// before building its reader. Files the token cannot read are recorded as
// "not authorized" and left out of the items.
func WithAccessProbe(p AccessProber) Option {
	return func(c *Collector) { c.prober = p }
}

// New creates a Collector.
func New(source MetadataSource, downloader Downloader, opts ...Option) *Collector {
	c := &Collector{
		source:     source,
		downloader: downloader,
		logger:     logging.Discard(),
		tracer:     noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "collector")
	return c
}

// Collect resolves scope into items, one per case, ordered by case id, and
// the failure records found so far. Download failures are only known once
// the item readers are realized; see ReaderFailures.
//
// The returned error is fatal: an empty scope, a failed metadata query, or
// hits spanning several projects.
func (c *Collector) Collect(ctx context.Context, scope gdc.Scope, token string) ([]Item, []model.FailureRecord, error) {
	if scope.Empty() {
		return nil, nil, gdc.ErrEmptyScope
	}

	ctx, span := c.tracer.Start(ctx, "collect", trace.WithAttributes(attribute.String("scope", scope.String())))
	defer span.End()

	hits, err := c.source.Files(ctx, scope)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("query metadata: %w", err)
	}
	c.metrics.Hits(len(hits))

	byFile, ordered := indexHits(hits)
	if err := checkSingleProject(ordered); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	failures := missingIDs(scope, ordered)

	results := selection.Sorted(selection.SelectPrimaryAliquots(buildCriteria(ordered)))
	c.metrics.Selected(len(results))
	span.SetAttributes(attribute.Int("hits", len(ordered)), attribute.Int("cases", len(results)))
	c.logger.Info("primary aliquots selected", "hits", len(ordered), "cases", len(results))

	items := make([]Item, 0, len(results))
	for _, r := range results {
		hit := byFile[r.ID]
		if r.SampleID == "" {
			c.logger.Warn("no aliquot found for case", "case_id", r.CaseID, "file_id", r.ID)
			failures = append(failures, model.FailureRecord{CaseID: r.CaseID, FileID: r.ID, Reason: model.ReasonNoAliquot})
			continue
		}

		if c.prober != nil {
			rec, err := c.probe(ctx, hit, token)
			if err != nil {
				return nil, nil, err
			}
			if rec != nil {
				failures = append(failures, *rec)
				continue
			}
		}

		items = append(items, Item{
			Reader: fetch.NewReader(c.retriever(hit.FileID, token), hit.FileID, hit.MD5Sum,
				fetch.WithLogger(c.logger), fetch.WithContext(ctx)),
			TumorAliquotSubmitterID: r.SampleID,
			CaseID:                  r.CaseID,
			FileID:                  hit.FileID,
			FileSize:                hit.FileSize,
		})
	}

	var total int64
	for _, it := range items {
		total += it.FileSize
	}
	c.logger.Info("downloads prepared", "files", len(items), "expected_size", humanize.Bytes(uint64(total)))

	for _, rec := range failures {
		c.metrics.Failure(rec.Reason)
	}
	return items, failures, nil
}

// probe returns a failure record when the token cannot read hit.
func (c *Collector) probe(ctx context.Context, hit model.Hit, token string) (*model.FailureRecord, error) {
	ok, err := c.prober.CanDownload(ctx, hit.FileID, token)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &model.FailureRecord{CaseID: hit.CaseID, FileID: hit.FileID, Reason: model.RequestFailedReason(err)}, nil
	}
	if !ok {
		c.logger.Warn("file not authorized", "file_id", hit.FileID)
		return &model.FailureRecord{CaseID: hit.CaseID, FileID: hit.FileID, Reason: model.ReasonNotAuthorized}, nil
	}
	return nil, nil
}

func (c *Collector) retriever(fileID, token string) fetch.Retriever {
	return fetch.RetrieverFunc(func(ctx context.Context) (*fetch.Response, error) {
		ctx, span := c.tracer.Start(ctx, "download", trace.WithAttributes(attribute.String("file_id", fileID)))
		defer span.End()

		start := time.Now()
		resp, err := c.downloader.Download(ctx, fileID, token)
		elapsed := time.Since(start).Seconds()
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			c.metrics.Download(metrics.OutcomeError, 0, elapsed)
			return nil, err
		}

		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode), attribute.Int("bytes", len(resp.Body)))
		outcome := metrics.OutcomeSuccess
		if resp.StatusCode != 200 {
			outcome = metrics.OutcomeFailed
		}
		c.metrics.Download(outcome, len(resp.Body), elapsed)
		return &fetch.Response{StatusCode: resp.StatusCode, Body: resp.Body, URL: resp.URL}, nil
	})
}

// indexHits keys hits by file id. The first row of a duplicated file wins.
func indexHits(hits []model.Hit) (map[string]model.Hit, []model.Hit) {
	byFile := make(map[string]model.Hit, len(hits))
	ordered := make([]model.Hit, 0, len(hits))
	for _, h := range hits {
		if _, dup := byFile[h.FileID]; dup {
			continue
		}
		byFile[h.FileID] = h
		ordered = append(ordered, h)
	}
	return byFile, ordered
}

func checkSingleProject(hits []model.Hit) error {
	seen := make(map[string]bool)
	var projects []string
	for _, h := range hits {
		if !seen[h.ProjectID] {
			seen[h.ProjectID] = true
			projects = append(projects, h.ProjectID)
		}
	}
	if len(projects) > 1 {
		sort.Strings(projects)
		return &MixedProjectsError{Projects: projects}
	}
	return nil
}

// missingIDs returns one record per requested id absent from hits. File ids
// take priority over case ids, matching the query that was issued.
func missingIDs(scope gdc.Scope, hits []model.Hit) []model.FailureRecord {
	var (
		kind      model.IDKind
		requested []string
		found     = make(map[string]bool)
	)
	switch {
	case len(scope.FileIDs) > 0:
		kind, requested = model.IDKindFile, scope.FileIDs
		for _, h := range hits {
			found[h.FileID] = true
		}
	case len(scope.CaseIDs) > 0:
		kind, requested = model.IDKindCase, scope.CaseIDs
		for _, h := range hits {
			found[h.CaseID] = true
		}
	default:
		return nil
	}

	var records []model.FailureRecord
	for _, id := range requested {
		if found[id] {
			continue
		}
		found[id] = true
		records = append(records, model.NewNotFoundRecord(kind, id))
	}
	return records
}

func buildCriteria(hits []model.Hit) []selection.Criterion {
	criteria := make([]selection.Criterion, 0, len(hits))
	for _, h := range hits {
		samples := make([]selection.SampleCriterion, 0, len(h.Samples))
		for _, s := range h.Samples {
			samples = append(samples, selection.SampleCriterion{
				ID:         s.AliquotSubmitterID,
				SampleType: s.SampleType,
				TissueType: s.TissueType,
			})
		}
		criteria = append(criteria, selection.Criterion{
			ID:              h.FileID,
			CaseID:          h.CaseID,
			Samples:         samples,
			MAFCreationDate: h.CreatedDatetime,
		})
	}
	return criteria
}
