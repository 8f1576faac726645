package storage

import (
	"context"

	"github.com/memohai/assetd/internal/config"
	"github.com/memohai/assetd/internal/errs"
)

// NewProvider builds the backend selected by cfg.Provider. Tags without a
// backend fail here so a misconfiguration surfaces at startup.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	tag, err := ParseProviderTag(cfg.Provider)
	if err != nil {
		return nil, errs.BadInput("storage.provider", err.Error())
	}
	switch tag {
	case ProviderFilesystem:
		p, err := NewFilesystemProvider(cfg.RootFolder)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderFirebase:
		p, err := NewGCSProvider(ctx, tag, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, errs.NotImplemented("storage provider " + string(tag) + " is not implemented")
	}
}
