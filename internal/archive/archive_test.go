package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/stockscan/internal/config"
	"github.com/aristath/stockscan/internal/domain"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	body map[string]string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, *input.Key)
	if f.body == nil {
		f.body = make(map[string]string)
	}
	f.body[*input.Key] = string(data)
	return &manager.UploadOutput{}, nil
}

// TestObjectKey tests bucket key construction
func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		scanDate string
		file     string
		want     string
	}{
		{"full", "charts", "2026-10-14", "/data/charts/TCS_d_121.png", "charts/2026-10-14/TCS_d_121.png"},
		{"trimmed prefix", "/charts/", "2026-10-14", "TCS_w_504.png", "charts/2026-10-14/TCS_w_504.png"},
		{"no prefix", "", "2026-10-14", "TCS_d_121.png", "2026-10-14/TCS_d_121.png"},
		{"no date", "charts", "", "TCS_d_121.png", "charts/TCS_d_121.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.scanDate, tt.file))
		})
	}
}

// TestS3Archiver_Archive tests that every captured file is uploaded
func TestS3Archiver_Archive(t *testing.T) {
	dir := t.TempDir()
	daily := filepath.Join(dir, "TCS_d_121.png")
	weekly := filepath.Join(dir, "TCS_w_504.png")
	require.NoError(t, os.WriteFile(daily, []byte("daily"), 0o644))
	require.NoError(t, os.WriteFile(weekly, []byte("weekly"), 0o644))

	up := &fakeUploader{}
	a := NewS3Archiver(up, "bucket", "charts", zerolog.Nop())

	n, err := a.Archive(context.Background(), "2026-10-14", []domain.ChartResult{
		{Stock: domain.Stock{Code: "TCS"}, DownloadedPaths: []string{daily, weekly}},
		{Stock: domain.Stock{Code: "FAIL"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "daily", up.body["charts/2026-10-14/TCS_d_121.png"])
	assert.Equal(t, "weekly", up.body["charts/2026-10-14/TCS_w_504.png"])
}

// TestS3Archiver_MissingFile tests that a missing file is reported without stopping the batch
func TestS3Archiver_MissingFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "INFY_d_121.png")
	require.NoError(t, os.WriteFile(good, []byte("png"), 0o644))

	up := &fakeUploader{}
	a := NewS3Archiver(up, "bucket", "", zerolog.Nop())

	n, err := a.Archive(context.Background(), "2026-10-14", []domain.ChartResult{
		{DownloadedPaths: []string{filepath.Join(dir, "missing.png"), good}},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"2026-10-14/INFY_d_121.png"}, up.keys)
}

// TestS3Archiver_UploadError tests that upload failures are surfaced
func TestS3Archiver_UploadError(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "TCS_d_121.png")
	require.NoError(t, os.WriteFile(file, []byte("png"), 0o644))

	a := NewS3Archiver(&fakeUploader{err: errors.New("denied")}, "bucket", "charts", zerolog.Nop())
	n, err := a.Archive(context.Background(), "", []domain.ChartResult{{DownloadedPaths: []string{file}}})
	assert.ErrorContains(t, err, "denied")
	assert.Zero(t, n)
}

// TestNew_Disabled tests that a disabled archive returns the no-op archiver
func TestNew_Disabled(t *testing.T) {
	a, err := New(context.Background(), config.ArchiveConfig{}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, a)

	n, err := a.Archive(context.Background(), "", nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
