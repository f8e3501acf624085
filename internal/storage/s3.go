package storage

import (
	"alcyxob/fitmate/internal/config"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Storage keeps profile images in one S3-compatible bucket. It only ever
// signs or deletes keys under the profiles/ prefix.
type s3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Storage connects to the configured bucket. Static credentials are used
// when an access key is configured; otherwise the default AWS chain applies.
func NewS3Storage(cfg config.S3Config) (FileStorage, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("s3: bucket_name is required")
	}

	opts := []func(*awsCfg.LoadOptions) error{awsCfg.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsCfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	if endpoint != "" {
		opts = append(opts, awsCfg.WithBaseEndpoint(endpoint))
	}

	sdkConfig, err := awsCfg.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		// MinIO and most self-hosted providers only route path-style requests.
		o.UsePathStyle = endpoint != ""
	})
	log.Printf("INFO: Profile image storage ready (bucket %s, endpoint %q)", cfg.BucketName, endpoint)

	return &s3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.BucketName,
	}, nil
}

// endpointURL adds a scheme to a bare host:port endpoint.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func checkProfileKey(objectKey string) error {
	if !strings.HasPrefix(objectKey, profilePrefix+"/") || strings.Contains(objectKey, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidObjectKey, objectKey)
	}
	return nil
}

// GeneratePresignedUploadURL signs a PUT for an image. The client has to send
// the same Content-Type header with the upload.
func (s *s3Storage) GeneratePresignedUploadURL(ctx context.Context, objectKey string, contentType string, expires time.Duration) (string, error) {
	if !isImageType(contentType) {
		return "", ErrUnsupportedContentType
	}
	if err := checkProfileKey(objectKey); err != nil {
		return "", err
	}
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3: presign upload of %s: %w", objectKey, err)
	}
	return req.URL, nil
}

func (s *s3Storage) GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if err := checkProfileKey(objectKey); err != nil {
		return "", err
	}
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("s3: presign download of %s: %w", objectKey, err)
	}
	return req.URL, nil
}

// DeleteObject removes a replaced profile image. S3 reports success for
// keys that are already gone.
func (s *s3Storage) DeleteObject(ctx context.Context, objectKey string) error {
	if err := checkProfileKey(objectKey); err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("s3: delete %s: %w", objectKey, err)
	}
	log.Printf("INFO: Deleted profile image %s", objectKey)
	return nil
}
