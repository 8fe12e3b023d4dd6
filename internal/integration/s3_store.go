package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/abelzeko/plant-monitor/internal/config"
)

// S3Store uploads archive files to an S3-compatible bucket (AWS S3 or MinIO)
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates a store for cfg.Bucket. Credentials come from the
// config when set, otherwise from the default AWS chain.
func NewS3Store(ctx context.Context, cfg config.ArchiveConfig) (*S3Store, error) {
	return newS3Store(ctx, cfg, nil)
}

func newS3Store(ctx context.Context, cfg config.ArchiveConfig, httpClient *http.Client) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "eu-west-2"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// Bucket returns the target bucket name
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Put uploads body under key
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, key, err)
	}
	log.Printf("Uploaded %d bytes to s3://%s/%s", len(body), s.bucket, key)
	return nil
}
