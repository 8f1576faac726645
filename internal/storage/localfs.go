package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FilesystemProvider stores objects as files under a root directory.
type FilesystemProvider struct {
	root string
	now  func() time.Time
}

// NewFilesystemProvider creates the root directory if needed.
func NewFilesystemProvider(root string) (*FilesystemProvider, error) {
	if root == "" {
		return nil, errors.New("storage root folder is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FilesystemProvider{root: abs, now: time.Now}, nil
}

func (p *FilesystemProvider) Tag() ProviderTag {
	return ProviderFilesystem
}

// Root returns the absolute root directory.
func (p *FilesystemProvider) Root() string {
	return p.root
}

func (p *FilesystemProvider) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel := NewObjectPath(p.now())
	full, err := p.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create bucket: %w", err)
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create object: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("close object: %w", err)
	}
	return rel, nil
}

// Replace writes to a temporary sibling and renames it over the target, so a
// reader never observes a partially written object.
func (p *FilesystemProvider) Replace(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return fmt.Errorf("stat object: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".replace-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp object: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace object: %w", err)
	}
	return nil
}

func (p *FilesystemProvider) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := p.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, path)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (p *FilesystemProvider) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := p.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// resolve maps a relative object path to an absolute file path under root.
func (p *FilesystemProvider) resolve(path string) (string, error) {
	clean := filepath.FromSlash(path)
	if clean == "" || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrPathOutsideRoot, path)
	}
	return filepath.Join(p.root, clean), nil
}

var _ Provider = (*FilesystemProvider)(nil)
