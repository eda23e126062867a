// Package blob implements the durable-storage boundary the finalizer
// attaches asset bytes through.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/Jonathanamir1/WubHub-sub004/internal/port"
)

// S3Store attaches asset bytes to an S3 bucket. The returned reference is
// "s3://bucket/key", stable enough to regenerate a download URL later.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ port.BlobStore = (*S3Store)(nil)

func NewS3Store(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3Store) Attach(ctx context.Context, r io.Reader, filename, contentType string, size int64) (string, error) {
	key := path.Join(s.prefix, uuid.NewString(), filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        awsv2.String(s.bucket),
		Key:           awsv2.String(key),
		Body:          r,
		ContentType:   awsv2.String(contentType),
		ContentLength: awsv2.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach %s to s3: %w", filename, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
