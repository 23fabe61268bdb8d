// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/cinevault/internal/media"
	"github.com/ManuGH/cinevault/internal/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"
)

// S3Config configures an S3-compatible backend (AWS, MinIO, R2 ...).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint for S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// Anonymous disables request signing; presigning then returns ErrCannotSign.
	Anonymous bool
}

// S3Store implements Store on top of aws-sdk-go-v2.
type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	endpoint string
	region   string
	canSign  bool
	log      zerolog.Logger
}

// NewS3Store loads the AWS SDK configuration and builds the client.
func NewS3Store(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store: bucket is required")
	}

	opts := []func(*awscfg.LoadOptions) error{awscfg.WithRegion(cfg.Region)}
	switch {
	case cfg.Anonymous:
		opts = append(opts, awscfg.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case cfg.AccessKeyID != "":
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsConfig, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Str("region", cfg.Region).
		Bool("signing", !cfg.Anonymous).
		Msg("s3 object store initialized")

	return NewS3StoreFromClient(client, cfg, logger), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, cfg S3Config, logger zerolog.Logger) *S3Store {
	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		region:   cfg.Region,
		canSign:  !cfg.Anonymous,
		log:      logger,
	}
}

func (s *S3Store) Backend() string { return "s3" }

func (s *S3Store) Upload(ctx context.Context, name string, body io.ReadSeeker) (uri string, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "upload", err) }()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        body,
		ContentType: aws.String(media.ContentType(name)),
	})
	if err != nil {
		if isTransportErr(err) {
			return "", fmt.Errorf("%w: put %s: %v", ErrStorageUnavailable, name, err)
		}
		return "", fmt.Errorf("%w: put %s: %v", ErrWriteFailed, name, err)
	}
	return "s3://" + s.bucket + "/" + name, nil
}

func (s *S3Store) head(ctx context.Context, name string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: head %s: %v", ErrStorageUnavailable, name, err)
	}
	return out, nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	out, err := s.head(ctx, name)
	metrics.IncStoreOp(s.Backend(), "exists", err)
	return out != nil, err
}

func (s *S3Store) Size(ctx context.Context, name string) (int64, error) {
	out, err := s.head(ctx, name)
	metrics.IncStoreOp(s.Backend(), "size", err)
	if err != nil || out == nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

func (s *S3Store) Delete(ctx context.Context, name string) (err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "delete", err) }()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil && !isNotFound(err) {
		if isTransportErr(err) {
			return fmt.Errorf("%w: delete %s: %v", ErrStorageUnavailable, name, err)
		}
		return fmt.Errorf("%w: delete %s: %v", ErrWriteFailed, name, err)
	}
	return nil
}

func (s *S3Store) ListByPrefix(ctx context.Context, prefix string) (names []string, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "list", err) }()
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list %q: %v", ErrStorageUnavailable, prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, aws.ToString(obj.Key))
		}
	}
	return names, nil
}

func (s *S3Store) SignedURL(ctx context.Context, name string, ttl time.Duration) (Grant, error) {
	if err := checkTTL(ttl); err != nil {
		return Grant{}, err
	}
	ok, err := s.Exists(ctx, name)
	if err != nil {
		return Grant{}, err
	}
	if !ok {
		return Grant{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if !s.canSign {
		return Grant{}, ErrCannotSign
	}

	issued := time.Now()
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		s.log.Error().Err(err).Str("object", name).Msg("presign failed")
		return Grant{}, fmt.Errorf("%w: %s: %v", ErrCannotSign, name, err)
	}

	metrics.IncSignedGrant(s.Backend())
	return Grant{
		Name:       name,
		URL:        req.URL,
		ExpiresAt:  issued.Add(ttl).UTC(),
		Permission: PermissionRead,
	}, nil
}

func (s *S3Store) Open(ctx context.Context, name string) (rc io.ReadCloser, err error) {
	defer func() { metrics.IncStoreOp(s.Backend(), "open", err) }()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: get %s: %v", ErrStorageUnavailable, name, err)
	}
	return out.Body, nil
}

func (s *S3Store) DownloadToLocal(ctx context.Context, name, dir string) (string, error) {
	rc, err := s.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()
	return copyToLocal(ctx, rc, name, dir)
}

func (s *S3Store) DirectURL(name string) string {
	key := url.PathEscape(name)
	if s.endpoint != "" {
		return s.endpoint + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

func isTransportErr(err error) bool {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
