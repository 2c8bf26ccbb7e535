package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
)

// Sink stores finished export objects
type Sink interface {
	// Put stores the content of r under name, a slash separated relative path
	Put(ctx context.Context, name string, r io.Reader) error
	Close() error
	String() string
}

// NewSink returns a GCS sink for gs://bucket/prefix destinations and a local
// directory sink otherwise.
func NewSink(ctx context.Context, destination string) (Sink, error) {
	if strings.HasPrefix(destination, "gs://") {
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(destination, "gs://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("missing bucket in %q", destination)
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		return NewGCSSink(client, bucket, prefix), nil
	}
	return NewLocalSink(destination), nil
}

// LocalSink writes objects below a directory
type LocalSink struct {
	dir string
}

// NewLocalSink creates a sink rooted at dir
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

func (s *LocalSink) Put(_ context.Context, name string, r io.Reader) error {
	target := filepath.Join(s.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return f.Close()
}

func (s *LocalSink) Close() error { return nil }

func (s *LocalSink) String() string { return s.dir }

// GCSSink uploads objects to a Cloud Storage bucket
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink creates a sink writing to bucket under prefix. The sink owns client.
func NewGCSSink(client *storage.Client, bucket, prefix string) *GCSSink {
	return &GCSSink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *GCSSink) Put(ctx context.Context, name string, r io.Reader) error {
	object := path.Join(s.prefix, name)
	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload gs://%s/%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, object, err)
	}
	return nil
}

func (s *GCSSink) Close() error { return s.client.Close() }

func (s *GCSSink) String() string {
	return "gs://" + path.Join(s.bucket, s.prefix)
}
