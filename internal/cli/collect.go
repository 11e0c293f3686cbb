package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/gdcmaf/internal/aggregate"
	"github.com/me/gdcmaf/internal/collect"
	"github.com/me/gdcmaf/internal/metrics"
	"github.com/me/gdcmaf/internal/report"
	"github.com/me/gdcmaf/internal/sink"
	"github.com/me/gdcmaf/internal/store"
	"github.com/me/gdcmaf/internal/tracing"
	"github.com/me/gdcmaf/pkg/gdc"
	"github.com/me/gdcmaf/pkg/model"
)

type collectOptions struct {
	projectID     string
	fileManifest  string
	caseManifest  string
	tokenFile     string
	output        string
	failureReport string
	apiURL        string
	concurrency   int
	historyDB     string
	metricsFile   string
	otlpEndpoint  string
	timeout       time.Duration
	probeAccess   bool
}

func newCollectCmd() *cobra.Command {
	var opts collectOptions

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Download and concatenate aliquot level MAFs",
		Example: "  gdc-maf-tool collect -p TARGET-AML\n" +
			"  gdc-maf-tool collect -c cases.tsv -t gdc-token.txt -o laml.maf.gz",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyCollectFlags(cmd, &opts)
			return runCollect(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.projectID, "project", "p", "", "Project from which to gather MAF files")
	f.StringVarP(&opts.fileManifest, "file-manifest", "f", "", "Specify MAF files with a GDC manifest")
	f.StringVarP(&opts.caseManifest, "case-manifest", "c", "", "Specify case ids associated with MAF files with a GDC manifest")
	f.StringVarP(&opts.tokenFile, "token", "t", "", "File holding the GDC user token required for controlled access data")
	f.StringVarP(&opts.output, "output", "o", "", "Output file or s3://bucket/key for the aggregate MAF (default outfile.maf.gz)")
	f.StringVar(&opts.failureReport, "failure-report", "", "Failure report path (default failed-downloads-<timestamp>.tsv)")
	f.StringVar(&opts.apiURL, "api-url", "", "GDC API base URL")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Parallel downloads (default 4)")
	f.StringVar(&opts.historyDB, "history-db", "", "SQLite database recording run history")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "OTLP/gRPC endpoint (host:port) for traces")
	f.DurationVar(&opts.timeout, "timeout", 0, "Deadline for the whole run (0 for none)")
	f.BoolVar(&opts.probeAccess, "probe-access", false, "Check access to every file with a ranged request before downloading")

	cmd.MarkFlagsMutuallyExclusive("project", "file-manifest", "case-manifest")
	cmd.MarkFlagsOneRequired("project", "file-manifest", "case-manifest")
	return cmd
}

// applyCollectFlags lets explicitly set flags win over the loaded config.
func applyCollectFlags(cmd *cobra.Command, opts *collectOptions) {
	f := cmd.Flags()
	if f.Changed("output") {
		cfg.Output.Path = opts.output
	}
	if f.Changed("failure-report") {
		cfg.Output.FailureReport = opts.failureReport
	}
	if f.Changed("api-url") {
		cfg.API.URL = opts.apiURL
	}
	if f.Changed("concurrency") {
		cfg.Download.Concurrency = opts.concurrency
	}
	if f.Changed("history-db") {
		cfg.History.DBPath = opts.historyDB
	}
	if f.Changed("metrics-file") {
		cfg.Metrics.File = opts.metricsFile
	}
	if f.Changed("otlp-endpoint") {
		cfg.Tracing.Endpoint = opts.otlpEndpoint
	}
	if f.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if f.Changed("probe-access") {
		cfg.Download.ProbeAccess = opts.probeAccess
	}
}

func scopeFromOptions(opts collectOptions) (gdc.Scope, error) {
	switch {
	case opts.caseManifest != "":
		ids, err := IDsFromManifest(opts.caseManifest)
		if err != nil {
			return gdc.Scope{}, err
		}
		return gdc.Scope{CaseIDs: ids}, nil
	case opts.fileManifest != "":
		ids, err := IDsFromManifest(opts.fileManifest)
		if err != nil {
			return gdc.Scope{}, err
		}
		return gdc.Scope{FileIDs: ids}, nil
	}
	return gdc.Scope{ProjectID: opts.projectID}, nil
}

func readToken(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func runCollect(ctx context.Context, opts collectOptions, out io.Writer) (err error) {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	scope, err := scopeFromOptions(opts)
	if err != nil {
		return err
	}
	token, err := readToken(opts.tokenFile)
	if err != nil {
		return err
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing.Endpoint, cfg.Tracing.ServiceName, cfg.Tracing.Environment, logger)
	if err != nil {
		return err
	}
	defer func() {
		if serr := shutdown(context.Background()); serr != nil {
			logger.Warn("tracing shutdown failed", "error", serr)
		}
	}()

	var m *metrics.Collector
	if cfg.Metrics.File != "" {
		m = metrics.New()
		defer func() {
			if merr := m.WriteToTextfile(cfg.Metrics.File); merr != nil {
				logger.Warn("write metrics failed", "path", cfg.Metrics.File, "error", merr)
			}
		}()
	}

	run := &model.Run{
		ID:        "run_" + uuid.New().String(),
		Scope:     scope.String(),
		Output:    cfg.Output.Path,
		State:     model.RunStateRunning,
		StartedAt: time.Now().UTC(),
	}
	history, err := openHistory(ctx, run)
	if err != nil {
		return err
	}
	var failures []model.FailureRecord
	defer func() {
		finishHistory(history, run, failures, err)
	}()

	log := logger.With("run_id", run.ID)
	log.Info("collecting MAFs", "scope", scope.String(), "output", cfg.Output.Path)

	client := gdc.NewClient(cfg.GDC(), logger)
	collectorOpts := []collect.Option{
		collect.WithLogger(logger),
		collect.WithMetrics(m),
		collect.WithTracer(tracing.Tracer()),
	}
	if cfg.Download.ProbeAccess {
		collectorOpts = append(collectorOpts, collect.WithAccessProbe(client))
	}
	collector := collect.New(client, client, collectorOpts...)

	items, failures, err := collector.Collect(ctx, scope, token)
	if err != nil {
		return err
	}

	w, err := sink.Open(ctx, cfg.Output.Path, sink.S3Config{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		return err
	}

	var prefetch *collect.Prefetcher
	if cfg.Download.Concurrency > 1 {
		prefetch = collect.StartPrefetch(ctx, items, cfg.Download.Concurrency)
	}
	stats, err := writeAggregate(items, w)
	if prefetch != nil {
		if err != nil {
			// A reader cancelled by a failing download reports context.Canceled;
			// the download error is the cause.
			if perr := prefetch.Stop(); perr != nil && !errors.Is(perr, context.Canceled) {
				err = perr
			}
		} else if perr := prefetch.Wait(); perr != nil {
			err = perr
		}
	}
	if err != nil {
		return err
	}
	m.OutputRows(stats.Rows)

	readerFailures := collect.ReaderFailures(items)
	for _, rec := range readerFailures {
		m.Failure(rec.Reason)
	}
	failures = append(failures, readerFailures...)
	run.Succeeded = len(items) - len(readerFailures)
	run.Failed = len(failures)

	if len(failures) > 0 {
		path := cfg.Output.FailureReport
		if path == "" {
			path = report.DefaultFilename(time.Now())
		}
		if err := report.NewWriter(path).Write(failures); err != nil {
			return err
		}
		run.ReportPath = path

		ids := make([]string, 0, len(readerFailures))
		for _, rec := range readerFailures {
			ids = append(ids, rec.FileID)
		}
		if len(ids) > 0 {
			log.Warn("files not included in the output MAF", "file_ids", strings.Join(ids, ", "))
		}
		log.Warn("failure report written", "path", path, "failures", len(failures))
	}

	log.Info("collection complete",
		"succeeded", run.Succeeded,
		"failed", run.Failed,
		"rows", stats.Rows,
		"downloaded", humanize.Bytes(uint64(stats.Bytes)),
	)
	fmt.Fprintf(out, "Successfully downloaded %d files (%s)\n", run.Succeeded, humanize.Bytes(uint64(stats.Bytes)))
	if len(failures) > 0 {
		fmt.Fprintf(out, "Failed to download %d files, see %s\n", len(failures), run.ReportPath)
	}
	fmt.Fprintf(out, "Wrote %s\n", cfg.Output.Path)
	return nil
}

// writeAggregate writes items to w and commits it. On any failure the
// partial output is discarded.
func writeAggregate(items []collect.Item, w sink.Writer) (aggregate.Stats, error) {
	inputs := make([]aggregate.Input, 0, len(items))
	for _, it := range items {
		inputs = append(inputs, aggregate.Input{
			ID:                      it.FileID,
			TumorAliquotSubmitterID: it.TumorAliquotSubmitterID,
			Source:                  it.Reader,
		})
	}

	stats, err := aggregate.New(logger).Aggregate(inputs, w)
	if err != nil {
		w.Abort(err)
		return stats, err
	}
	if stats.BarcodeMismatches > 0 {
		logger.Warn("rows with an unexpected tumor sample barcode", "rows", stats.BarcodeMismatches)
	}
	if err := w.Close(); err != nil {
		w.Abort(err)
		return stats, err
	}
	logger.Debug("aggregate committed", "location", w.Location())
	return stats, nil
}

func openHistory(ctx context.Context, run *model.Run) (store.Store, error) {
	if cfg.History.DBPath == "" {
		return nil, nil
	}
	st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	if err := st.CreateRun(ctx, run); err != nil {
		st.Close()
		return nil, fmt.Errorf("record run: %w", err)
	}
	return st, nil
}

// finishHistory records the outcome of a run. History problems are logged,
// never returned, so they cannot mask the run result.
func finishHistory(st store.Store, run *model.Run, failures []model.FailureRecord, runErr error) {
	if st == nil {
		return
	}
	defer st.Close()

	ctx := context.Background()
	run.State = model.RunStateCompleted
	if runErr != nil {
		run.State = model.RunStateFailed
		run.Error = runErr.Error()
	}
	if err := st.FinishRun(ctx, run); err != nil {
		logger.Warn("record run result failed", "run_id", run.ID, "error", err)
		return
	}
	if err := st.AddFailures(ctx, run.ID, failures); err != nil {
		logger.Warn("record failures failed", "run_id", run.ID, "error", err)
	}
}
