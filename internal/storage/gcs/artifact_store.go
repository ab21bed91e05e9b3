// Package gcs uploads run artifacts to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// ArtifactStore writes files to a configured bucket.
type ArtifactStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed artifact store.
func New(client *storage.Client, cfg Config) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ArtifactStore{client: client, bucket: cfg.Bucket}, nil
}

// Dial creates a client using Application Default Credentials.
func Dial(ctx context.Context, cfg Config) (*ArtifactStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	store, err := New(client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the storage client.
func (s *ArtifactStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// PutFile uploads localPath to objectPath and returns a gs:// URI.
func (s *ArtifactStore) PutFile(ctx context.Context, localPath, objectPath string) (string, error) {
	objectPath = strings.TrimLeft(objectPath, "/")
	if strings.TrimSpace(objectPath) == "" {
		return "", fmt.Errorf("object path is required")
	}
	f, err := os.Open(localPath) // #nosec G304 -- path comes from the csv sink.
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	return s.PutObject(ctx, objectPath, contentType(localPath), f)
}

// PutObject streams r to objectPath.
func (s *ArtifactStore) PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error) {
	writer := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return URI(s.bucket, objectPath), nil
}

// URI formats a gs:// location.
func URI(bucket, objectPath string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, strings.TrimLeft(objectPath, "/"))
}

func contentType(name string) string {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return "text/csv; charset=utf-8"
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
