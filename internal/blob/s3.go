package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/oriys/labthings/internal/domain"
)

// S3Store persists blobs as objects in a single S3-compatible bucket,
// for deployments that want blob storage decoupled from the server's local
// disk (supplementing spec.md's Blob contract, which only specifies local
// and in-memory backends at the distillation level).
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket string
	Prefix string // key prefix within the bucket, e.g. "labthings/blobs/"
	Region string
	// Endpoint overrides the default AWS endpoint resolution, for
	// S3-compatible services (MinIO, etc.) run outside AWS.
	Endpoint string
}

// NewS3Store loads AWS credentials from the environment/shared config
// (the default credential chain) and returns an S3Store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(id string) string {
	return s.prefix + id
}

// Put buffers data (S3 PutObject needs a seekable/known-length body) and
// uploads it under a freshly generated blob ID.
func (s *S3Store) Put(contentType string, data io.Reader) (domain.Blob, error) {
	id := uuid.New().String()

	buf, err := io.ReadAll(data)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("blob: read body for upload: %w", err)
	}

	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(id)),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.Blob{}, fmt.Errorf("blob: s3 put %s: %w", id, err)
	}

	return domain.Blob{
		ID:          id,
		ContentType: contentType,
		Size:        int64(len(buf)),
		Backend:     "s3",
		Key:         s.key(id),
	}, nil
}

// Open streams the object's body back to the caller.
func (s *S3Store) Open(id string) (domain.Reader, domain.Blob, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, domain.Blob{}, fmt.Errorf("%w: %s", domain.ErrNotFound, err)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	b := domain.Blob{ID: id, ContentType: contentType, Size: size, Backend: "s3", Key: s.key(id)}
	return out.Body, b, nil
}

// Delete removes the S3 object for id. S3's DeleteObject is itself
// idempotent against missing keys, matching domain.Store's contract.
func (s *S3Store) Delete(id string) error {
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("blob: s3 delete %s: %w", id, err)
	}
	return nil
}
