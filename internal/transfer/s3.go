package transfer

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// S3Config holds connection settings for one S3-compatible tier.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
}

// S3Replicator copies objects between two S3-compatible tiers using
// minio-go. The destination bucket may be overridden per run through the
// dest argument of Replicate; the band's thread hint drives the multipart
// upload parallelism.
type S3Replicator struct {
	src       *minio.Client
	dst       *minio.Client
	srcBucket string
	dstBucket string
	logger    *zap.Logger
}

// NewS3Replicator creates clients for both tiers.
func NewS3Replicator(src, dst S3Config, logger *zap.Logger) (*S3Replicator, error) {
	srcClient, err := newClient(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create source client: %w", err)
	}
	dstClient, err := newClient(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination client: %w", err)
	}

	return &S3Replicator{
		src:       srcClient,
		dst:       dstClient,
		srcBucket: src.Bucket,
		dstBucket: dst.Bucket,
		logger:    logger,
	}, nil
}

// Replicate copies each path from the source bucket to the destination
// bucket. The first error aborts the rest of the batch; the pool treats
// the whole batch as failed either way.
func (r *S3Replicator) Replicate(ctx context.Context, dest string, threads int, paths []string) error {
	bucket := r.dstBucket
	if dest != "" {
		bucket = dest
	}

	for _, path := range paths {
		if err := r.copyObject(ctx, bucket, threads, path); err != nil {
			return fmt.Errorf("failed to replicate %s: %w", path, err)
		}
	}
	return nil
}

func (r *S3Replicator) copyObject(ctx context.Context, bucket string, threads int, path string) error {
	key := strings.TrimPrefix(path, "/")

	obj, err := r.src.GetObject(ctx, r.srcBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get source object: %w", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source object: %w", err)
	}

	opts := minio.PutObjectOptions{
		ContentType:  info.ContentType,
		UserMetadata: info.UserMetadata,
	}
	if threads > 1 {
		opts.NumThreads = uint(threads)
	}

	_, err = r.dst.PutObject(ctx, bucket, key, obj, info.Size, opts)
	if err != nil {
		return fmt.Errorf("failed to put destination object: %w", err)
	}

	r.logger.Debug("object replicated",
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.Int("threads", threads),
	)
	return nil
}

func newClient(cfg S3Config) (*minio.Client, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	return minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
}

// cleanEndpoint strips the protocol from an endpoint URL to get the
// host:port form minio-go expects.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}

	return parsedURL.Host, nil
}
