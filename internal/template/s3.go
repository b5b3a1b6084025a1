package template

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sagestack-io/sagestack/internal/logging"
)

// S3API is the subset of the S3 API the uploader calls, satisfied by
// *s3.Client.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader publishes assembled templates to S3 so CloudFormation can launch
// them by URL.
type Uploader struct {
	api S3API
}

func NewUploader(api S3API) *Uploader {
	return &Uploader{api: api}
}

// Upload writes body to the given s3://bucket/key destination.
func (u *Uploader) Upload(ctx context.Context, dest string, body []byte) error {
	bucket, key, err := parseS3URL(dest)
	if err != nil {
		return err
	}

	_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-yaml"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload template to %s: %w", dest, err)
	}

	logging.Info("uploaded template", "bucket", bucket, "key", key, "bytes", len(body))
	return nil
}

func parseS3URL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return "", "", fmt.Errorf("destination %q is not an s3:// URL", raw)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("destination %q must be s3://bucket/key", raw)
	}
	return bucket, key, nil
}
