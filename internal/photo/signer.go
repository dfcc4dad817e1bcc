// Package photo signs read URLs for profile photos kept in S3-compatible
// object storage.
package photo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultURLExpiry is how long a signed photo URL stays valid.
const DefaultURLExpiry = time.Hour

// ErrInvalidPath is returned for an empty or traversing object path.
var ErrInvalidPath = errors.New("invalid photo path")

// Config holds the object storage settings.
type Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string        // Default: auto
	URLExpiry       time.Duration // Default: 1 hour
}

// Signer presigns GET requests for photo objects.
type Signer struct {
	presign    *s3.PresignClient
	bucketName string
	expiry     time.Duration
}

// NewSigner creates a Signer for an S3-compatible bucket.
func NewSigner(cfg Config) (*Signer, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("access key ID and secret access key are required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Signer{
		presign:    s3.NewPresignClient(client),
		bucketName: cfg.BucketName,
		expiry:     cfg.URLExpiry,
	}, nil
}

// SignURL returns a presigned GET URL for the object at path.
func (s *Signer) SignURL(ctx context.Context, path string) (string, error) {
	key, err := objectKey(path)
	if err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign photo: %w", err)
	}
	return req.URL, nil
}

// SignURLs signs every path in order.
func (s *Signer) SignURLs(ctx context.Context, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return paths, nil
	}
	urls := make([]string, len(paths))
	for i, p := range paths {
		u, err := s.SignURL(ctx, p)
		if err != nil {
			return nil, err
		}
		urls[i] = u
	}
	return urls, nil
}

func objectKey(path string) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(path), "/")
	if key == "" {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}
	return key, nil
}
