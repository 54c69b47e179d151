// Package copernicus downloads Copernicus EMS rapid mapping activation
// archives for international disasters.
package copernicus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/workspace"
)

// Fetcher downloads a URL into a file.
type Fetcher interface {
	Download(ctx context.Context, url, dst string) (int64, error)
}

// Downloader fetches <base>/<code>/<code>_products.zip for every activation
// code of a disaster into its perimeter input folder.
type Downloader struct {
	fetcher     Fetcher
	baseURL     string
	layout      workspace.Layout
	concurrency int
	logger      *slog.Logger
}

// NewDownloader creates a Downloader fetching at most concurrency
// activations at a time.
func NewDownloader(fetcher Fetcher, baseURL string, layout workspace.Layout, concurrency int, logger *slog.Logger) *Downloader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Downloader{
		fetcher:     fetcher,
		baseURL:     strings.TrimRight(baseURL, "/"),
		layout:      layout,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Name implements perimeter.Downloader.
func (d *Downloader) Name() domain.PerimeterSource { return domain.SourceCopernicus }

// ArchiveURL returns the products archive URL of an activation.
func (d *Downloader) ArchiveURL(code string) string {
	return fmt.Sprintf("%s/%s/%s_products.zip", d.baseURL, code, code)
}

// Download implements perimeter.Downloader. Every activation is attempted;
// failures are joined into the returned error alongside the archives that
// did arrive.
func (d *Downloader) Download(ctx context.Context, dis domain.Disaster) ([]string, error) {
	codes := dis.ActivationCodes()
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: %s: no Copernicus activation codes", domain.ErrInvalidDisaster, dis.ID)
	}
	dir := d.layout.PerimeterInputDir(dis.ID)

	var (
		mu    sync.Mutex
		errs  []error
		paths = make([]string, len(codes))
	)
	addError := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for i, code := range codes {
		eg.Go(func() error {
			dst := filepath.Join(dir, code+"_products.zip")
			n, err := d.fetcher.Download(egCtx, d.ArchiveURL(code), dst)
			if err != nil {
				addError(fmt.Errorf("activation %s: %w", code, err))
				d.logger.Warn("activation download failed", "disaster", dis.ID, "activation", code, "error", err)
				return nil
			}
			d.logger.Info("activation downloaded", "disaster", dis.ID, "activation", code, "bytes", n)
			paths[i] = dst
			return nil
		})
	}
	_ = eg.Wait()

	written := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			written = append(written, p)
		}
	}
	return written, errors.Join(errs...)
}
