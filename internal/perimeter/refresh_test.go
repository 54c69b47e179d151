package perimeter_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-perimeter-etl/internal/domain"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/geo"
	"github.com/couchcryptid/disaster-perimeter-etl/internal/perimeter"
)

type mockDownloader struct {
	name  domain.PerimeterSource
	paths []string
	err   error
	calls int
}

func (m *mockDownloader) Name() domain.PerimeterSource { return m.name }

func (m *mockDownloader) Download(_ context.Context, _ domain.Disaster) ([]string, error) {
	m.calls++
	return m.paths, m.err
}

func TestRefresher_Refresh(t *testing.T) {
	src := &mockSource{
		name: domain.SourceWFIGS,
		obs:  []domain.Observation{observation("Marshall", "20211230", square(-105.2, 39.9, 0.02))},
	}
	dl := &mockDownloader{name: domain.SourceWFIGS, paths: []string{"Marshall/20211230.geojson"}}
	p, _ := newPipeline(src, geo.NewEngine(), &mockSink{}, nil)
	r := perimeter.NewRefresher(p, []perimeter.Downloader{dl}, slog.Default())

	report, err := r.Refresh(context.Background(), marshallFire())
	require.NoError(t, err)
	assert.Equal(t, 1, dl.calls)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, perimeter.StatusOK, report.Status)
}

func TestRefresher_DownloadFailureStillProcesses(t *testing.T) {
	src := &mockSource{
		name: domain.SourceWFIGS,
		obs:  []domain.Observation{observation("Marshall", "20211230", square(-105.2, 39.9, 0.02))},
	}
	dl := &mockDownloader{name: domain.SourceWFIGS, err: errors.New("GET: unexpected status 503")}
	p, _ := newPipeline(src, geo.NewEngine(), &mockSink{}, nil)
	r := perimeter.NewRefresher(p, []perimeter.Downloader{dl}, slog.Default())

	report, err := r.Refresh(context.Background(), marshallFire())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, perimeter.StatusOK, report.Status)
}

func TestRefresher_InvalidDisasterSkipsEverything(t *testing.T) {
	src := &mockSource{name: domain.SourceWFIGS}
	dl := &mockDownloader{name: domain.SourceWFIGS}
	p, _ := newPipeline(src, geo.NewEngine(), &mockSink{}, nil)
	r := perimeter.NewRefresher(p, []perimeter.Downloader{dl}, slog.Default())

	_, err := r.Refresh(context.Background(), domain.Disaster{ID: "Bad ID"})
	require.ErrorIs(t, err, domain.ErrInvalidDisaster)
	assert.Zero(t, dl.calls)
	assert.Zero(t, src.calls)
}

func TestRefresher_NoDownloader(t *testing.T) {
	p, _ := newPipeline(&mockSource{name: domain.SourceWFIGS}, geo.NewEngine(), &mockSink{}, nil)
	r := perimeter.NewRefresher(p, nil, slog.Default())

	_, err := r.Download(context.Background(), marshallFire())
	assert.ErrorContains(t, err, "no downloader registered")
}
