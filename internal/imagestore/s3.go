// internal/imagestore/s3.go

// Package imagestore uploads meal photos to S3 and returns their public URL.
package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// PutObjectAPI is the part of *s3.Client the store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client  PutObjectAPI
	bucket  string
	prefix  string
	baseURL string
	newID   func() string
}

func NewS3Store(client PutObjectAPI, bucket, prefix, publicBaseURL string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		newID:   uuid.NewString,
	}
}

// NewS3StoreFromEnv loads AWS credentials the usual way (env, shared config,
// instance role) for the given region.
func NewS3StoreFromEnv(ctx context.Context, region, bucket, prefix, publicBaseURL string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config for S3: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, prefix, publicBaseURL), nil
}

// Put stores one image under <prefix>/<user>/<uuid><ext> and returns its URL.
func (s *S3Store) Put(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	key := s.objectKey(userID, filename, contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	return s.publicURL(key), nil
}

func (s *S3Store) objectKey(userID, filename, contentType string) string {
	parts := []string{}
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if userID == "" {
		userID = "unknown"
	}
	parts = append(parts, url.PathEscape(userID), s.newID()+extension(filename, contentType))
	return path.Join(parts...)
}

func (s *S3Store) publicURL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

func extension(filename, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		return ext
	}
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	if _, sub, ok := strings.Cut(contentType, "/"); ok && sub != "" {
		return "." + sub
	}
	return ""
}
