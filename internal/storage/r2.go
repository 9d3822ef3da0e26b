package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"postboard/internal/config"
)

const (
	// PostImageFolder is the key prefix for mirrored post attachments.
	PostImageFolder = "posts"
	cacheControl    = "public, max-age=31536000"
)

// R2Mirror copies processed attachments to Cloudflare R2. The local upload
// directory stays the source of truth; the mirror only serves public URLs.
type R2Mirror struct {
	s3Client  *s3.Client
	bucket    string
	publicURL string
}

// NewR2Mirror constructs an S3-compatible client for Cloudflare R2.
func NewR2Mirror(ctx context.Context, cfg *config.Config) (*R2Mirror, error) {
	if !cfg.R2Configured() {
		return nil, fmt.Errorf("missing Cloudflare R2 configuration")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.R2AccessKeyID, cfg.R2SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for R2: %w", err)
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.R2AccountID)
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	return &R2Mirror{
		s3Client:  s3Client,
		bucket:    cfg.R2BucketName,
		publicURL: strings.TrimSuffix(cfg.R2PublicURL, "/"),
	}, nil
}

// ObjectKey maps an attachment filename to its bucket key.
func ObjectKey(filename string) string {
	return PostImageFolder + "/" + filename
}

// PutFile uploads the file at path under its base name.
func (m *R2Mirror) PutFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = m.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(ObjectKey(name)),
		Body:         f,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to r2: %w", err)
	}
	return nil
}

// DeleteFile removes the mirrored copy of an attachment.
func (m *R2Mirror) DeleteFile(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	_, err := m.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(ObjectKey(filename)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from r2: %w", err)
	}
	return nil
}

// URL returns the public URL of a mirrored attachment.
func (m *R2Mirror) URL(filename string) string {
	return fmt.Sprintf("%s/%s", m.publicURL, ObjectKey(filename))
}
