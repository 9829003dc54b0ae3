// Package archive uploads captured chart screenshots to S3-compatible storage.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/stockscan/internal/config"
	"github.com/aristath/stockscan/internal/domain"
)

// Archiver stores chart files off-host
type Archiver interface {
	Archive(ctx context.Context, scanDate string, results []domain.ChartResult) (int, error)
}

// Uploader is the subset of manager.Uploader used here
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads charts to an S3 or R2 bucket
type S3Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// New builds an archiver for cfg. A disabled archive yields Nop.
func New(ctx context.Context, cfg config.ArchiveConfig, log zerolog.Logger) (Archiver, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3Archiver(manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3Archiver wraps an uploader for bucket
func NewS3Archiver(uploader Uploader, bucket, prefix string, log zerolog.Logger) *S3Archiver {
	return &S3Archiver{
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("service", "chart_archive").Logger(),
	}
}

// ObjectKey returns the bucket key for a chart file captured on scanDate
func ObjectKey(prefix, scanDate, file string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	if scanDate != "" {
		parts = append(parts, scanDate)
	}
	parts = append(parts, filepath.Base(file))
	return path.Join(parts...)
}

// Archive uploads every captured file and returns how many were stored.
// Upload failures are logged per file; the first one is returned after
// the rest have been attempted.
func (a *S3Archiver) Archive(ctx context.Context, scanDate string, results []domain.ChartResult) (int, error) {
	uploaded := 0
	var firstErr error

	for _, r := range results {
		for _, file := range r.DownloadedPaths {
			if err := ctx.Err(); err != nil {
				return uploaded, err
			}
			if err := a.upload(ctx, scanDate, file); err != nil {
				a.log.Error().Err(err).Str("file", file).Msg("Failed to archive chart")
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			uploaded++
		}
	}

	a.log.Info().Int("uploaded", uploaded).Str("bucket", a.bucket).Msg("Charts archived")
	return uploaded, firstErr
}

func (a *S3Archiver) upload(ctx context.Context, scanDate, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open chart: %w", err)
	}
	defer f.Close()

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(ObjectKey(a.prefix, scanDate, file)),
		Body:        f,
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload chart: %w", err)
	}
	return nil
}

// Nop discards archive requests
type Nop struct{}

// Archive does nothing
func (Nop) Archive(context.Context, string, []domain.ChartResult) (int, error) {
	return 0, nil
}
