package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSProvider stores objects in a Google Cloud Storage bucket. Firebase
// Storage buckets are GCS buckets, so it backs the FIREBASE tag.
type GCSProvider struct {
	client *gcs.Client
	bucket string
	tag    ProviderTag
	now    func() time.Time
}

// NewGCSProvider connects to GCS. credentialsFile may be empty to use
// application default credentials.
func NewGCSProvider(ctx context.Context, tag ProviderTag, bucket, credentialsFile string) (*GCSProvider, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSProvider{client: client, bucket: bucket, tag: tag, now: time.Now}, nil
}

func (p *GCSProvider) Tag() ProviderTag {
	return p.tag
}

func (p *GCSProvider) Upload(ctx context.Context, data []byte) (string, error) {
	key := NewObjectPath(p.now().UTC())
	obj := p.client.Bucket(p.bucket).Object(key).If(gcs.Conditions{DoesNotExist: true})
	if err := p.write(ctx, obj, data); err != nil {
		return "", err
	}
	return key, nil
}

func (p *GCSProvider) Replace(ctx context.Context, path string, data []byte) error {
	handle := p.client.Bucket(p.bucket).Object(path)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return fmt.Errorf("gcs attrs: %w", err)
	}
	return p.write(ctx, handle.If(gcs.Conditions{GenerationMatch: attrs.Generation}), data)
}

func (p *GCSProvider) Download(ctx context.Context, path string) ([]byte, error) {
	r, err := p.client.Bucket(p.bucket).Object(path).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return nil, fmt.Errorf("gcs open: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gcs read: %w", err)
	}
	return data, nil
}

func (p *GCSProvider) Delete(ctx context.Context, path string) error {
	err := p.client.Bucket(p.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (p *GCSProvider) Close() error {
	return p.client.Close()
}

func (p *GCSProvider) write(ctx context.Context, obj *gcs.ObjectHandle, data []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs commit: %w", err)
	}
	return nil
}

var _ Provider = (*GCSProvider)(nil)
