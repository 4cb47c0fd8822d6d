// Package s3store is a remote.Store kept as one JSON object per context in
// an S3-compatible bucket (AWS S3 or MinIO). The object's ETag is the
// snapshot version, so PeekVersion is a HEAD request.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/hivelog/hivesync/internal/replica/remote"
	"github.com/hivelog/hivesync/internal/replica/schema"
	"github.com/hivelog/hivesync/internal/replica/scope"
	"github.com/hivelog/hivesync/internal/replica/tombstone"
)

// Config holds construction parameters.
type Config struct {
	Bucket          string
	Prefix          string // optional key prefix, e.g. "prod/"
	Region          string // default us-east-1
	Endpoint        string // optional; enables a custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional (falls back to the default credentials chain)
	SecretAccessKey string // optional
	PathStyle       bool
}

// Store is an S3-backed remote replica.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New creates a store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key holding the snapshot of c.
func (s *Store) Key(c scope.Context) string {
	return s.prefix + "replicas/" + c.String() + ".json"
}

// Pull implements remote.Store.
func (s *Store) Pull(ctx context.Context, c scope.Context) (remote.Snapshot, error) {
	key := s.Key(c)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return remote.Snapshot{}, classify("get "+key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("%w: read %s: %v", remote.ErrUnreachable, key, err)
	}
	snap, err := remote.DecodePayload(data)
	if err != nil {
		return remote.Snapshot{}, fmt.Errorf("object %s: %w", key, err)
	}
	snap.Version = etagVersion(out.ETag)
	return snap, nil
}

// Push implements remote.Store.
func (s *Store) Push(ctx context.Context, c scope.Context, ds *schema.Dataset, tombs tombstone.Set) (remote.Version, error) {
	payload, err := remote.EncodePayload(ds, tombs, "")
	if err != nil {
		return "", err
	}
	key := s.Key(c)
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", classify("put "+key, err)
	}
	if out.ETag != nil {
		return etagVersion(out.ETag), nil
	}
	return s.PeekVersion(ctx, c)
}

// PeekVersion implements remote.Store.
func (s *Store) PeekVersion(ctx context.Context, c scope.Context) (remote.Version, error) {
	key := s.Key(c)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return "", classify("head "+key, err)
	}
	return etagVersion(out.ETag), nil
}

func etagVersion(etag *string) remote.Version {
	return remote.Version(strings.Trim(aws.ToString(etag), `"`))
}

// classify maps an SDK error onto the remote sentinels.
func classify(op string, err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, remote.ErrNotFound)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("%s: %w: %v", op, remote.ErrRejected, err)
		}
	}
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		switch re.HTTPStatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, remote.ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, remote.ErrRejected, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, remote.ErrUnreachable, err)
}

var _ remote.Store = (*Store)(nil)
