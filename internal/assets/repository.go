package assets

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by a Repository when no row has the given id.
	ErrNotFound = errors.New("asset not found")
	// ErrVersionConflict is returned by Update when the stored version no
	// longer matches the expected one.
	ErrVersionConflict = errors.New("asset version conflict")
)

// Repository persists asset rows and their shares.
type Repository interface {
	// FindByID returns the asset with its shares, soft-deleted or not.
	FindByID(ctx context.Context, id string) (Asset, error)
	// Create writes the asset, its thumbnail and both share lists in one
	// transaction.
	Create(ctx context.Context, asset, thumbnail Asset) error
	// Update stores metadata of the asset and its thumbnail in one
	// transaction, provided the asset is live and still at expectedVersion.
	Update(ctx context.Context, asset, thumbnail Asset, expectedVersion int) error
	// SoftDelete flags every given row as deleted in one statement.
	SoftDelete(ctx context.Context, ids ...string) error
	// Delete removes the given rows and their shares.
	Delete(ctx context.Context, ids ...string) error
	// ListSoftDeleted returns up to limit soft-deleted rows last touched
	// before the cutoff.
	ListSoftDeleted(ctx context.Context, before time.Time, limit int) ([]Asset, error)
}
