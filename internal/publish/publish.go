// Package publish uploads archived media to an S3 bucket so the WordPress importer can
// sideload it from there.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/hyperjump/lotuswxr/internal/config"
	"github.com/hyperjump/lotuswxr/internal/models"
	"github.com/hyperjump/lotuswxr/pkg/metrics"
	"go.uber.org/zap"
)

const (
	pipeline      = "publish"
	defaultRegion = "us-east-1"
)

// ObjectStore is the part of the S3 client used for publishing.
type ObjectStore interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient builds an S3 client from cfg. Credentials come from AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY and the optional AWS_SESSION_TOKEN.
func NewClient(cfg config.PublishConfig) (*s3.Client, error) {
	accessKey := strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	if accessKey == "" || secretKey == "" {
		return nil, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = defaultRegion
	}
	opts := s3.Options{
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, os.Getenv("AWS_SESSION_TOKEN")),
		UsePathStyle: cfg.PathStyle,
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(strings.TrimSuffix(endpoint, "/"))
		// S3-compatible stores rarely support virtual-hosted buckets
		opts.UsePathStyle = true
	}
	return s3.New(opts), nil
}

// Summary counts the outcome of one publish run.
type Summary struct {
	Uploaded int
	Skipped  int
	Bytes    int64
}

// Counts returns the summary as metric kinds.
func (s *Summary) Counts() map[string]int {
	return map[string]int{"uploaded": s.Uploaded, "skipped": s.Skipped}
}

// Publisher copies pages/media/* into a bucket.
type Publisher struct {
	store   ObjectStore
	bucket  string
	prefix  string
	force   bool
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for per-object progress.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithForce uploads every file even when the object already exists.
func WithForce(force bool) Option {
	return func(p *Publisher) { p.force = force }
}

// New returns a publisher writing to bucket under prefix.
func New(store ObjectStore, bucket, prefix string, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the object key for an archived media filename.
func (p *Publisher) Key(name string) string {
	return p.prefix + name
}

// Publish uploads the media of the archive at archiveDir. Media files are named by content
// hash, so an existing object with the same key already holds the same bytes and is skipped.
func (p *Publisher) Publish(ctx context.Context, archiveDir string) (*Summary, error) {
	started := time.Now()
	s, err := p.publish(ctx, archiveDir)
	p.metrics.ObserveRun(pipeline, started, err)
	if err == nil {
		p.metrics.SetObjects(pipeline, s.Counts())
	}
	return s, err
}

func (p *Publisher) publish(ctx context.Context, archiveDir string) (*Summary, error) {
	dir := models.MediaPath(archiveDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read media dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	s := &Summary{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		key := p.Key(name)
		if !p.force {
			exists, err := p.exists(ctx, key)
			if err != nil {
				return s, err
			}
			if exists {
				p.logger.Debug("object exists", zap.String("key", key))
				s.Skipped++
				continue
			}
		}
		n, err := p.upload(ctx, filepath.Join(dir, name), key)
		if err != nil {
			return s, err
		}
		s.Uploaded++
		s.Bytes += n
	}
	p.logger.Info("published media",
		zap.String("bucket", p.bucket), zap.String("prefix", p.prefix),
		zap.Int("uploaded", s.Uploaded), zap.Int("skipped", s.Skipped), zap.Int64("bytes", s.Bytes))
	return s, nil
}

func (p *Publisher) exists(ctx context.Context, key string) (bool, error) {
	_, err := p.store.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(p.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

func (p *Publisher) upload(ctx context.Context, path, key string) (int64, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, fmt.Errorf("detect type of %s: %w", filepath.Base(path), err)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open media: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat media: %w", err)
	}
	_, err = p.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(mt.String()),
	})
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", key, err)
	}
	p.logger.Debug("uploaded", zap.String("key", key), zap.String("type", mt.String()), zap.Int64("bytes", info.Size()))
	return info.Size(), nil
}

// normalizePrefix cleans separators and ensures a non-empty prefix ends with a slash.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(strings.ReplaceAll(prefix, "\\", "/"))
	for strings.Contains(prefix, "//") {
		prefix = strings.ReplaceAll(prefix, "//", "/")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
