// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package objectstore adapts an S3-compatible object store for EPUB uploads.

Responsibilities:

  - Signed URLs: Time-limited presigned PUT URLs so the API never proxies
    file bytes.
  - Key Scoping: Every key lives under the caller's own prefix; the prefix is
    derived from the authenticated identity, never from client input.
  - Download: Streams an uploaded object back to the ingestion pipeline.
*/
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/taibuivan/flowreader/internal/platform/constants"
	"github.com/taibuivan/flowreader/pkg/uuid"
)

// SignedUpload is the material a client needs to perform a direct upload.
type SignedUpload struct {
	URL       string
	UploadKey string
	ExpiresAt time.Time
}

// Store wraps the S3 client and presigner.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
}

// Options configures the object store connection.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// New constructs a Store against an S3-compatible endpoint.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket must be configured")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			// R2/minio style endpoints address buckets by path.
			o.UsePathStyle = true
		}
	})

	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    opts.Bucket,
	}, nil
}

/*
SignUpload issues a presigned PUT URL under the caller's key prefix.

Description: The key is users/{userID}/uploads/{uuidv7}/{fileName}. The
UUID segment makes keys unguessable; the prefix comes from the verified
identity, so one user can never mint a URL into another user's space.

Parameters:
  - ctx: context.Context
  - userID: string (Verified caller identity)
  - fileName: string (Already validated and normalized by the handler)

Returns:
  - SignedUpload: URL, storage key, and expiry
  - error: Presigner failures
*/
func (store *Store) SignUpload(ctx context.Context, userID, fileName string) (SignedUpload, error) {
	key := fmt.Sprintf("users/%s/uploads/%s/%s", userID, uuid.New(), fileName)

	request, err := store.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = constants.SignedURLTTL
	})
	if err != nil {
		return SignedUpload{}, fmt.Errorf("objectstore: failed to presign upload: %w", err)
	}

	return SignedUpload{
		URL:       request.URL,
		UploadKey: key,
		ExpiresAt: time.Now().Add(constants.SignedURLTTL),
	}, nil
}

// OwnsKey reports whether the key lives under the user's prefix.
//
// Ingestion re-checks this before downloading, so a stolen or guessed key
// from another tenant is rejected before any bytes move.
func (store *Store) OwnsKey(userID, key string) bool {
	return strings.HasPrefix(key, "users/"+userID+"/uploads/")
}

/*
Download streams the object at key.

Returns:
  - io.ReadCloser: Object body (caller closes)
  - int64: Declared content length (-1 when unknown)
  - error: Fetch failures
*/
func (store *Store) Download(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	output, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("objectstore: failed to download %q: %w", key, err)
	}

	length := int64(-1)
	if output.ContentLength != nil {
		length = *output.ContentLength
	}

	return output.Body, length, nil
}
