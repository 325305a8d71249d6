package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"graph-loader/internal/executor"
	"graph-loader/internal/mapping"
	"graph-loader/internal/progress"
	"graph-loader/internal/reader"
	"graph-loader/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pipeline loads every enabled file in the configuration into the sink.
// Entity files finish before any relationship file starts so relationships
// never reference endpoints that have not been written yet. Files within a
// phase are independent and run concurrently up to the worker limit.
type Pipeline struct {
	cfg      *types.Config
	sink     executor.Sink
	registry *mapping.Registry
	log      *logrus.Entry
}

func New(cfg *types.Config, sink executor.Sink, registry *mapping.Registry, log *logrus.Entry) *Pipeline {
	return &Pipeline{cfg: cfg, sink: sink, registry: registry, log: log}
}

// Result summarizes a full run.
type Result struct {
	Summary progress.Summary
	Failed  int
}

// Run executes both phases and returns the run result. Failed files are
// counted and the run keeps going unless ContinueOnError is explicitly
// false; a context cancellation always stops it.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	entities := enabledSpecs(p.cfg.Entities)
	relationships := enabledSpecs(p.cfg.Relationships)

	total := len(entities) + len(relationships)
	tracker := progress.New(p.log, total, "graph load")

	if err := p.runPhase(ctx, tracker, "entities", entities); err != nil {
		return p.finish(tracker), err
	}
	if err := p.runPhase(ctx, tracker, "relationships", relationships); err != nil {
		return p.finish(tracker), err
	}

	res := p.finish(tracker)
	if res.Failed > 0 && !p.continueOnError() {
		return res, fmt.Errorf("%d of %d files failed", res.Failed, total)
	}
	return res, nil
}

// continueOnError reports whether file failures are counted rather than
// aborting the run. Unset means true, matching the config default.
func (p *Pipeline) continueOnError() bool {
	if v := p.cfg.Processing.ContinueOnError; v != nil {
		return *v
	}
	return true
}

func (p *Pipeline) finish(tracker *progress.Tracker) Result {
	tracker.LogSummary()
	s := tracker.Summary()
	fmt.Printf("FINAL files=%d succeeded=%d failed=%d records=%d duration=%s exit=%d\n",
		s.TotalFiles, s.SuccessfulFiles, s.FailedFiles, s.TotalRecords, s.Duration.Round(time.Millisecond), boolToExit(s.FailedFiles > 0))
	return Result{Summary: s, Failed: s.FailedFiles}
}

func (p *Pipeline) runPhase(ctx context.Context, tracker *progress.Tracker, phase string, specs []types.FileSpec) error {
	if len(specs) == 0 {
		return nil
	}
	workers := p.cfg.Processing.Workers
	if workers <= 0 {
		workers = 1
	}
	p.log.Infof("Starting %s phase: %d files, %d workers", phase, len(specs), workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			err := p.runFile(gctx, tracker, spec)
			if err != nil && p.continueOnError() && gctx.Err() == nil {
				p.log.Errorf("Continuing after failure in %s: %v", spec.Name, err)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

func (p *Pipeline) runFile(ctx context.Context, tracker *progress.Tracker, spec types.FileSpec) error {
	path := filepath.Join(p.cfg.Input.Dir, spec.File)
	log := p.log.WithField("file", spec.Name)

	schema, err := p.registry.Lookup(spec.Name)
	if err != nil {
		tracker.StartFile(path, 0)
		tracker.CompleteFile(path, 0, false, err.Error())
		return err
	}

	opts := reader.Options{
		Delimiter:    delimiterRune(p.cfg.Input.Delimiter),
		Encoding:     p.cfg.Input.Encoding,
		BatchSize:    spec.BatchSize,
		DropOverflow: p.cfg.Input.DropOverflow,
		Logger:       log,
	}

	rd, err := reader.Open(path, opts)
	if err != nil {
		tracker.StartFile(path, 0)
		tracker.CompleteFile(path, 0, false, err.Error())
		return fmt.Errorf("failed to open %s: %w", spec.File, err)
	}
	defer rd.Close()

	info, err := rd.FileInfo()
	if err != nil {
		tracker.StartFile(path, 0)
		tracker.CompleteFile(path, 0, false, err.Error())
		return fmt.Errorf("failed to analyze %s: %w", spec.File, err)
	}

	tracker.StartFile(path, info.EstimatedRows)

	interactive := p.cfg.Processing.Workers <= 1 && isatty.IsTerminal(os.Stderr.Fd())

	var sp *spinner.Spinner
	if interactive && os.Getenv("NO_SPINNER") == "" {
		sp = spinner.New(spinner.CharSets[14], 120*time.Millisecond)
		// spinner goes to stderr so stdout stays machine-parseable
		sp.Writer = os.Stderr
		sp.Suffix = fmt.Sprintf(" Loading %s", spec.Name)
		sp.Start()
		defer sp.Stop()
	}

	var bar *progressbar.ProgressBar
	if interactive && sp == nil && os.Getenv("NO_PROGRESS") == "" {
		bar = progressbar.NewOptions64(info.EstimatedRows,
			progressbar.OptionSetDescription(spec.Name),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
		)
		defer bar.Finish()
	}

	heartbeat := p.cfg.Processing.HeartbeatBatchInterval
	if heartbeat <= 0 {
		heartbeat = 10
	}

	var keyless int64
	next := func(ctx context.Context) ([]map[string]any, error) {
		recs, err := rd.ReadBatch()
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, 0, len(recs))
		for _, rec := range recs {
			row := schema.Apply(rec)
			if !schema.HasKey(row) {
				keyless++
				continue
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	exec := &executor.Executor{
		Sink:        p.sink,
		MaxRetries:  p.cfg.Processing.MaxRetries,
		BaseBackoff: time.Duration(p.cfg.Processing.BaseBackoffMs) * time.Millisecond,
		Log:         log,
		OnBatch: func(stats executor.RunStats) {
			tracker.UpdateProgress(path, stats.ProcessedCount, info.EstimatedRows)
			if sp != nil {
				sp.Suffix = fmt.Sprintf(" Loading %s - %d/%d (batch %d)",
					spec.Name, stats.ProcessedCount, info.EstimatedRows, stats.BatchCount)
			}
			if bar != nil {
				bar.Set64(stats.ProcessedCount)
			}
			if stats.BatchCount > 0 && stats.BatchCount%int64(heartbeat) == 0 {
				fmt.Printf("PROGRESS file=%s processed=%d total=%d batch=%d errors=%d\n",
					spec.Name, stats.ProcessedCount, info.EstimatedRows, stats.BatchCount, stats.ErrorCount)
			}
		},
	}

	stats, err := exec.Execute(ctx, spec.Name, next)
	if keyless > 0 {
		log.Warnf("Skipped %d records with missing key values in %s", keyless, spec.File)
	}
	if err != nil {
		tracker.CompleteFile(path, stats.ProcessedCount, false, err.Error())
		return fmt.Errorf("failed to load %s: %w", spec.File, err)
	}
	if skipped := rd.Cursor().Skipped; skipped > 0 {
		log.Warnf("Dropped %d malformed lines in %s", skipped, spec.File)
	}

	if stats.ErrorCount > 0 {
		msg := fmt.Sprintf("%d batches failed", stats.ErrorCount)
		tracker.CompleteFile(path, stats.ProcessedCount, false, msg)
		return fmt.Errorf("%s: %s", spec.File, msg)
	}

	tracker.CompleteFile(path, stats.ProcessedCount, true, "")
	return nil
}

// Analyze reports file facts for every enabled file without touching the
// database.
func (p *Pipeline) Analyze() ([]reader.Info, error) {
	opts := reader.Options{
		Delimiter: delimiterRune(p.cfg.Input.Delimiter),
		Encoding:  p.cfg.Input.Encoding,
		Logger:    p.log,
	}
	var infos []reader.Info
	for _, spec := range append(enabledSpecs(p.cfg.Entities), enabledSpecs(p.cfg.Relationships)...) {
		rd, err := reader.Open(filepath.Join(p.cfg.Input.Dir, spec.File), opts)
		if err != nil {
			return infos, fmt.Errorf("failed to analyze %s: %w", spec.File, err)
		}
		info, err := rd.FileInfo()
		rd.Close()
		if err != nil {
			return infos, fmt.Errorf("failed to analyze %s: %w", spec.File, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ValidationResult reports the post-load row count of one table next to the
// estimated row count of its source file.
type ValidationResult struct {
	Name          string
	Table         string
	Rows          int64
	EstimatedRows int64
	OK            bool
}

// Validate checks every enabled table after a load by counting its rows via
// count and comparing against the source file's estimate. Merge semantics
// dedupe on the key and the estimate is approximate, so the check fails only
// when a table is empty while its source file has data.
func (p *Pipeline) Validate(count func(table string) (int64, error)) ([]ValidationResult, error) {
	opts := reader.Options{
		Delimiter: delimiterRune(p.cfg.Input.Delimiter),
		Encoding:  p.cfg.Input.Encoding,
		Logger:    p.log,
	}
	var results []ValidationResult
	for _, spec := range append(enabledSpecs(p.cfg.Entities), enabledSpecs(p.cfg.Relationships)...) {
		rows, err := count(spec.Table)
		if err != nil {
			return results, fmt.Errorf("failed to validate %s: %w", spec.Table, err)
		}

		var estimated int64
		rd, err := reader.Open(filepath.Join(p.cfg.Input.Dir, spec.File), opts)
		if err == nil {
			info, ierr := rd.FileInfo()
			rd.Close()
			if ierr == nil {
				estimated = info.EstimatedRows
			}
		}

		res := ValidationResult{
			Name:          spec.Name,
			Table:         spec.Table,
			Rows:          rows,
			EstimatedRows: estimated,
			OK:            rows > 0 || estimated == 0,
		}
		if !res.OK {
			p.log.Errorf("Table %s is empty but %s has an estimated %d rows", spec.Table, spec.File, estimated)
		}
		results = append(results, res)
	}
	return results, nil
}

func enabledSpecs(specs []types.FileSpec) []types.FileSpec {
	var out []types.FileSpec
	for _, s := range specs {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

func delimiterRune(s string) rune {
	if s == "" {
		return '\t'
	}
	return []rune(s)[0]
}

func boolToExit(failed bool) int {
	if failed {
		return 1
	}
	return 0
}
