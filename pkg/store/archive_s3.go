package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/22388o/sapio/pkg/canonical"
)

// S3Archive keeps bundles in an S3 bucket under prefix+digest+".blob".
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3ArchiveConfig configures an S3 archive. Endpoint overrides the AWS
// endpoint for MinIO or LocalStack.
type S3ArchiveConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Archive builds an S3-backed archive using the default AWS
// credential chain.
func NewS3Archive(ctx context.Context, cfg S3ArchiveConfig) (*S3Archive, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("store: load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}
	return &S3Archive{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archive) key(digest string) string {
	return a.prefix + digest + ".blob"
}

func (a *S3Archive) Put(ctx context.Context, data []byte) (string, error) {
	hash, err := canonical.HashBytes(data)
	if err != nil {
		return "", err
	}
	key := a.key(strings.TrimPrefix(hash, canonical.HashPrefix))

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return hash, nil
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("store: s3 put: %w", err)
	}
	return hash, nil
}

func (a *S3Archive) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := rawDigest(hash)
	if err != nil {
		return nil, err
	}
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(digest)),
	})
	if err != nil {
		return nil, fmt.Errorf("store: s3 get %s: %w", hash, err)
	}
	defer func() { _ = result.Body.Close() }()
	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("store: s3 read %s: %w", hash, err)
	}
	return data, nil
}

func (a *S3Archive) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := rawDigest(hash)
	if err != nil {
		return false, err
	}
	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(digest)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (a *S3Archive) Delete(ctx context.Context, hash string) error {
	digest, err := rawDigest(hash)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(digest)),
	})
	if err != nil {
		return fmt.Errorf("store: s3 delete %s: %w", hash, err)
	}
	return nil
}
