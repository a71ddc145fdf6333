// Package archive keeps the raw changelog and the rendered result of every
// persisted replay in an S3-compatible bucket, so reports can be re-run with
// different thresholds later.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("archive object not found")

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type bucket interface {
	put(ctx context.Context, key string, data []byte, contentType string) error
	get(ctx context.Context, key string) ([]byte, error)
}

type Store struct {
	objects bucket
}

// New connects to MinIO and creates the bucket if it is missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &Store{objects: &minioBucket{client: client, name: cfg.Bucket}}, nil
}

func ChangelogKey(documentID, reportID string) string {
	return "changelogs/" + url.PathEscape(documentID) + "/" + reportID + ".json"
}

func ReportKey(documentID, reportID string) string {
	return "reports/" + url.PathEscape(documentID) + "/" + reportID + ".json"
}

// PutChangelog stores the raw changelog export and returns its key.
func (s *Store) PutChangelog(ctx context.Context, documentID, reportID string, raw []byte) (string, error) {
	key := ChangelogKey(documentID, reportID)
	if err := s.objects.put(ctx, key, raw, "application/json"); err != nil {
		return "", fmt.Errorf("archive changelog: %w", err)
	}
	return key, nil
}

// PutReport stores the replay result JSON and returns its key.
func (s *Store) PutReport(ctx context.Context, documentID, reportID string, result []byte) (string, error) {
	key := ReportKey(documentID, reportID)
	if err := s.objects.put(ctx, key, result, "application/json"); err != nil {
		return "", fmt.Errorf("archive report: %w", err)
	}
	return key, nil
}

func (s *Store) GetChangelog(ctx context.Context, key string) ([]byte, error) {
	if !strings.HasPrefix(key, "changelogs/") {
		return nil, fmt.Errorf("get changelog %q: %w", key, ErrNotFound)
	}
	data, err := s.objects.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get changelog: %w", err)
	}
	return data, nil
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (b *minioBucket) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}
