package perimeter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
)

// Refresher stages fresh upstream files for a disaster before processing it.
type Refresher struct {
	pipeline    *Pipeline
	downloaders map[domain.PerimeterSource]Downloader
	logger      *slog.Logger
}

// NewRefresher creates a Refresher that downloads with the downloader
// matching each disaster's perimeter source.
func NewRefresher(p *Pipeline, downloaders []Downloader, logger *slog.Logger) *Refresher {
	bySource := make(map[domain.PerimeterSource]Downloader, len(downloaders))
	for _, dl := range downloaders {
		bySource[dl.Name()] = dl
	}
	return &Refresher{pipeline: p, downloaders: bySource, logger: logger}
}

// Download stages the disaster's raw perimeter files and returns the paths
// written. Paths may be returned alongside an error when only some files
// could be fetched.
func (r *Refresher) Download(ctx context.Context, d domain.Disaster) ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	dl, ok := r.downloaders[d.Source()]
	if !ok {
		return nil, fmt.Errorf("no downloader registered for %q", d.Source())
	}
	paths, err := dl.Download(ctx, d)
	r.logger.Info("perimeter files staged", "disaster", d.ID, "source", d.Source(), "files", len(paths))
	return paths, err
}

// Refresh downloads and then processes a disaster. A failed download does
// not stop processing of the files already staged; both errors are returned.
func (r *Refresher) Refresh(ctx context.Context, d domain.Disaster) (RunReport, error) {
	_, dlErr := r.Download(ctx, d)
	if dlErr != nil {
		if errors.Is(dlErr, domain.ErrInvalidDisaster) {
			return RunReport{DisasterID: d.ID, Status: StatusFailed}, dlErr
		}
		r.logger.Warn("download incomplete, processing staged files", "disaster", d.ID, "error", dlErr)
		dlErr = fmt.Errorf("download: %w", dlErr)
	}
	if err := ctx.Err(); err != nil {
		return RunReport{DisasterID: d.ID, Status: StatusFailed}, errors.Join(dlErr, err)
	}
	report, err := r.pipeline.Run(ctx, d)
	return report, errors.Join(dlErr, err)
}
