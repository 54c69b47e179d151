// Package perimeter runs the perimeter pipeline for one disaster: it reads
// the raw perimeter files, resolves duplicate products, fills missing days
// and computes the daily change layer before handing both layers to a Sink.
package perimeter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/observability"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

// ErrNoInput is returned by a Source when the disaster has no perimeter
// input files.
var ErrNoInput = errors.New("no perimeter input files")

// Run statuses reported in RunReport.Status and the runs_total metric.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusNoInput = "no_input"
	StatusFailed  = "failed"
)

// Input locates the files a Source reads for one disaster.
type Input struct {
	Disaster domain.Disaster
	Dir      string
	// TempDir is the parent for scratch extraction directories.
	TempDir string
}

// Source reads and normalizes the perimeter observations of one disaster.
// Per-file failures are reported in the FileResults, not as an error.
type Source interface {
	Name() domain.PerimeterSource
	Read(ctx context.Context, in Input) ([]domain.Observation, []FileResult, error)
}

// Downloader stages a disaster's raw perimeter files from an upstream
// service into its perimeter input folder and returns the paths written.
type Downloader interface {
	Name() domain.PerimeterSource
	Download(ctx context.Context, d domain.Disaster) ([]string, error)
}

// Sink persists a disaster's perimeter and difference layers and returns
// the paths it wrote.
type Sink interface {
	Write(ctx context.Context, d domain.Disaster, perimeters []domain.Observation, diffs []domain.DifferenceRecord) ([]string, error)
}

// Notifier announces a finished run.
type Notifier interface {
	Notify(ctx context.Context, report RunReport) error
}

// FileResult is the outcome of ingesting one input file.
type FileResult struct {
	Path         string
	Observations int
	Err          error
}

// IncidentResult is the outcome of processing one incident.
type IncidentResult struct {
	Incident    string
	Days        int
	Filled      int
	Differences int
	Repeated    int
	Err         error
}

// RunReport summarizes one processing run of a disaster.
type RunReport struct {
	RunID       uuid.UUID
	DisasterID  string
	Source      domain.PerimeterSource
	StartedAt   time.Time
	FinishedAt  time.Time
	Files       []FileResult
	Incidents   []IncidentResult
	Resolutions []domain.Resolution
	Outputs     []string
	Status      string
}

// FailedFiles counts the input files that were skipped.
func (r RunReport) FailedFiles() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// FailedIncidents counts the incidents dropped from the output.
func (r RunReport) FailedIncidents() int {
	n := 0
	for _, inc := range r.Incidents {
		if inc.Err != nil {
			n++
		}
	}
	return n
}

// Pipeline turns a disaster's raw perimeter files into its daily perimeter
// and difference layers.
type Pipeline struct {
	sources  map[domain.PerimeterSource]Source
	differ   domain.Differ
	sink     Sink
	notifier Notifier
	layout   workspace.Layout
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu   sync.Mutex
	last map[string]RunReport
}

// New creates a Pipeline. notifier may be nil.
func New(layout workspace.Layout, sources []Source, differ domain.Differ, sink Sink, notifier Notifier, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	bySource := make(map[domain.PerimeterSource]Source, len(sources))
	for _, s := range sources {
		bySource[s.Name()] = s
	}
	return &Pipeline{
		sources:  bySource,
		differ:   differ,
		sink:     sink,
		notifier: notifier,
		layout:   layout,
		logger:   logger,
		metrics:  metrics,
		last:     make(map[string]RunReport),
	}
}

// CheckReadiness returns nil once a run has written output.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Run processes one disaster end to end. A missing or empty input folder is
// not an error: the report comes back with StatusNoInput. Descriptor errors,
// unreadable input folders and output failures are returned.
func (p *Pipeline) Run(ctx context.Context, d domain.Disaster) (RunReport, error) {
	start := time.Now()
	report := RunReport{
		RunID:      uuid.New(),
		DisasterID: d.ID,
		Source:     d.Source(),
		StartedAt:  domain.Now(),
	}
	logger := p.logger.With("disaster", d.ID, "source", report.Source, "run_id", report.RunID)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	finish := func(status string, err error) (RunReport, error) {
		report.Status = status
		report.FinishedAt = domain.Now()
		p.metrics.Runs.WithLabelValues(status).Inc()
		p.metrics.RunDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			logger.Error("run failed", "error", err)
		}
		p.remember(report)
		return report, err
	}

	if err := d.Validate(); err != nil {
		return finish(StatusFailed, err)
	}
	src, ok := p.sources[report.Source]
	if !ok {
		return finish(StatusFailed, fmt.Errorf("no source registered for %q", report.Source))
	}

	logger.Info("run started")
	obs, files, err := src.Read(ctx, Input{
		Disaster: d,
		Dir:      p.layout.PerimeterInputDir(d.ID),
		TempDir:  p.layout.TempDir(d.ID),
	})
	report.Files = files
	p.recordFiles(logger, report.Source, files)
	if errors.Is(err, ErrNoInput) {
		logger.Info("no input files, nothing to do")
		return finish(StatusNoInput, nil)
	}
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("read %s perimeters: %w", report.Source, err))
	}

	// Duplicates resolve before the box filter so a preferred product outside
	// the box cannot hand its day to a lower tier.
	if report.Source == domain.SourceCopernicus {
		obs, report.Resolutions = domain.Deduplicate(obs)
		p.recordResolutions(logger, report.Resolutions)
	}

	obs = p.filterBBox(logger, d, obs)
	p.metrics.Observations.Add(float64(len(obs)))
	if len(obs) == 0 {
		logger.Info("no observations inside the disaster bounding box")
		return finish(StatusNoInput, nil)
	}

	filled, err := domain.FillIncidents(obs, d)
	if err != nil {
		return finish(StatusFailed, err)
	}

	perimeters, diffs, incidents := p.processIncidents(logger, filled)
	report.Incidents = incidents

	outputs, err := p.sink.Write(ctx, d, perimeters, diffs)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("write outputs: %w", err))
	}
	report.Outputs = outputs

	status := StatusOK
	if report.FailedIncidents() > 0 {
		status = StatusPartial
	}
	p.metrics.LastSuccessfulRun.Set(float64(domain.Now().Unix()))
	p.ready.Store(true)

	report, _ = finish(status, nil)
	logger.Info("run finished",
		"status", status,
		"files", len(report.Files),
		"failed_files", report.FailedFiles(),
		"incidents", len(incidents),
		"perimeters", len(perimeters),
		"differences", len(diffs),
		"duration", time.Since(start),
	)
	p.notify(ctx, logger, report)
	return report, nil
}

// LastReports returns the latest report of every disaster run so far,
// ordered by disaster id.
func (p *Pipeline) LastReports() []RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	reports := make([]RunReport, 0, len(p.last))
	for _, r := range p.last {
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].DisasterID < reports[j].DisasterID })
	return reports
}

func (p *Pipeline) remember(report RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[report.DisasterID] = report
}

// processIncidents computes each incident's difference records. An incident
// whose geometry fails is left out of both layers.
func (p *Pipeline) processIncidents(logger *slog.Logger, filled []domain.Observation) ([]domain.Observation, []domain.DifferenceRecord, []IncidentResult) {
	names, groups := domain.GroupByIncident(filled)
	var (
		perimeters []domain.Observation
		diffs      []domain.DifferenceRecord
		results    = make([]IncidentResult, 0, len(names))
	)
	for _, name := range names {
		seq := groups[name]
		res := IncidentResult{Incident: name, Days: countDays(seq)}
		for _, o := range seq {
			if o.Filled {
				res.Filled++
			}
		}

		recs, err := domain.ComputeDifferences(seq, p.differ)
		if err != nil {
			res.Err = err
			results = append(results, res)
			p.metrics.IncidentsFailed.Inc()
			logger.Warn("incident skipped, difference computation failed", "incident", name, "error", err)
			continue
		}
		for _, r := range recs {
			if r.Repeated {
				res.Repeated++
			}
		}
		res.Differences = len(recs)
		results = append(results, res)

		perimeters = append(perimeters, seq...)
		diffs = append(diffs, recs...)
		p.metrics.FilledDays.Add(float64(res.Filled))
		p.metrics.DifferenceRecords.WithLabelValues("changed").Add(float64(res.Differences - res.Repeated))
		p.metrics.DifferenceRecords.WithLabelValues("repeated").Add(float64(res.Repeated))
	}
	return perimeters, diffs, results
}

func (p *Pipeline) filterBBox(logger *slog.Logger, d domain.Disaster, obs []domain.Observation) []domain.Observation {
	kept := domain.FilterByBBox(obs, d, func(o domain.Observation) (orb.Bound, bool) {
		if o.Geometry == nil {
			return orb.Bound{}, false
		}
		return o.Geometry.Bound(), true
	})
	if dropped := len(obs) - len(kept); dropped > 0 {
		logger.Debug("observations outside bounding box dropped", "count", dropped)
	}
	return kept
}

func (p *Pipeline) recordFiles(logger *slog.Logger, source domain.PerimeterSource, files []FileResult) {
	for _, f := range files {
		if f.Err != nil {
			p.metrics.FilesIngested.WithLabelValues(string(source), "failed").Inc()
			logger.Warn("input file skipped", "path", f.Path, "error", f.Err)
			continue
		}
		p.metrics.FilesIngested.WithLabelValues(string(source), "ok").Inc()
	}
}

func (p *Pipeline) recordResolutions(logger *slog.Logger, resolutions []domain.Resolution) {
	for _, r := range resolutions {
		p.metrics.DuplicateResolutions.WithLabelValues(r.Outcome.String()).Inc()
		attrs := []any{
			"incident", r.Key.Incident,
			"date", r.Key.Date,
			"rule", r.Rule,
			"candidates", productCodes(append(append([]domain.Observation{}, r.Keep...), r.Delete...)),
		}
		switch r.Outcome {
		case domain.OutcomeResolved:
			logger.Debug("duplicate products resolved", append(attrs, "kept", productCodes(r.Keep))...)
		default:
			logger.Warn("duplicate products not resolved, keeping all", append(attrs, "outcome", r.Outcome.String())...)
		}
	}
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, report RunReport) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, report); err != nil {
		logger.Warn("run notification failed", "error", err)
	}
}

func productCodes(obs []domain.Observation) []string {
	codes := make([]string, len(obs))
	for i, o := range obs {
		codes[i] = o.Product.Code
	}
	return codes
}

func countDays(seq []domain.Observation) int {
	days := make(map[domain.Date]struct{}, len(seq))
	for _, o := range seq {
		days[o.Date] = struct{}{}
	}
	return len(days)
}
