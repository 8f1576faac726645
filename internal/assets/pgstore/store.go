// Package pgstore persists assets in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/memohai/assetd/internal/assets"
	"github.com/memohai/assetd/internal/db"
	"github.com/memohai/assetd/internal/storage"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db     DBTX
	logger *slog.Logger
}

func New(log *slog.Logger, conn DBTX) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: conn, logger: log.With(slog.String("repository", "postgres"))}
}

const selectAsset = `
SELECT a.id, a.owner_id, a.name, a.size, a.mime_type, a.path, a.provider,
       a.visibility, a.version, a.is_deleted, a.checksum, a.thumbnail_id,
       o.id, a.created_at, a.updated_at
FROM assets a
LEFT JOIN assets o ON o.thumbnail_id = a.id
`

func (s *Store) FindByID(ctx context.Context, id string) (assets.Asset, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return assets.Asset{}, assets.ErrNotFound
	}
	asset, err := scanAsset(s.db.QueryRow(ctx, selectAsset+`WHERE a.id = $1`, pgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assets.Asset{}, assets.ErrNotFound
		}
		return assets.Asset{}, fmt.Errorf("select asset: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT sharer_id, mode FROM asset_shares WHERE asset_id = $1 ORDER BY sharer_id`, pgID)
	if err != nil {
		return assets.Asset{}, fmt.Errorf("select shares: %w", err)
	}
	shares, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (assets.Share, error) {
		var sharerID, mode string
		if err := row.Scan(&sharerID, &mode); err != nil {
			return assets.Share{}, err
		}
		return assets.Share{SharerID: sharerID, Mode: assets.SharingMode(mode)}, nil
	})
	if err != nil {
		return assets.Asset{}, fmt.Errorf("scan shares: %w", err)
	}
	if len(shares) > 0 {
		asset.Shares = shares
	}
	return asset, nil
}

func (s *Store) Create(ctx context.Context, asset, thumbnail assets.Asset) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// the thumbnail row must exist before the primary references it
		if err := insertAsset(ctx, tx, thumbnail); err != nil {
			return fmt.Errorf("insert thumbnail: %w", err)
		}
		if err := insertAsset(ctx, tx, asset); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
		if err := insertShares(ctx, tx, asset.ID, asset.Shares); err != nil {
			return err
		}
		return insertShares(ctx, tx, thumbnail.ID, thumbnail.Shares)
	})
}

func (s *Store) Update(ctx context.Context, asset, thumbnail assets.Asset, expectedVersion int) error {
	assetID, err := db.ParseUUID(asset.ID)
	if err != nil {
		return assets.ErrNotFound
	}
	thumbID, err := db.ParseUUID(thumbnail.ID)
	if err != nil {
		return fmt.Errorf("thumbnail id: %w", err)
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE assets
SET name = $2, size = $3, mime_type = $4, visibility = $5, version = $6,
    checksum = $7, updated_at = $8
WHERE id = $1 AND version = $9 AND NOT is_deleted`,
			assetID, db.TextFromString(asset.Name), asset.Size, asset.Mime, string(asset.Visibility),
			asset.Version, db.TextFromString(asset.Checksum), asset.UpdatedAt, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var deleted bool
			err := tx.QueryRow(ctx, `SELECT is_deleted FROM assets WHERE id = $1`, assetID).Scan(&deleted)
			if errors.Is(err, pgx.ErrNoRows) || (err == nil && deleted) {
				return assets.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check asset: %w", err)
			}
			return assets.ErrVersionConflict
		}
		_, err = tx.Exec(ctx, `
UPDATE assets
SET size = $2, mime_type = $3, visibility = $4, checksum = $5, updated_at = $6
WHERE id = $1`,
			thumbID, thumbnail.Size, thumbnail.Mime, string(thumbnail.Visibility),
			db.TextFromString(thumbnail.Checksum), thumbnail.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update thumbnail: %w", err)
		}
		return nil
	})
}

func (s *Store) SoftDelete(ctx context.Context, ids ...string) error {
	pgIDs, err := parseIDs(ids)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `UPDATE assets SET is_deleted = TRUE, updated_at = now() WHERE id = ANY($1)`, pgIDs); err != nil {
		return fmt.Errorf("soft delete assets: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	pgIDs, err := parseIDs(ids)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM assets WHERE id = ANY($1)`, pgIDs)
	if err != nil {
		return fmt.Errorf("delete assets: %w", err)
	}
	s.logger.Debug("asset rows deleted", slog.Int64("rows", tag.RowsAffected()))
	return nil
}

func (s *Store) ListSoftDeleted(ctx context.Context, before time.Time, limit int) ([]assets.Asset, error) {
	rows, err := s.db.Query(ctx, selectAsset+`WHERE a.is_deleted AND a.updated_at < $1 ORDER BY a.updated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list deleted assets: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (assets.Asset, error) {
		return scanAsset(row)
	})
}

func scanAsset(row pgx.Row) (assets.Asset, error) {
	var (
		id, thumbnailID, originalID pgtype.UUID
		name, checksum              pgtype.Text
		createdAt, updatedAt        pgtype.Timestamptz
		provider, visibility        string
		a                           assets.Asset
	)
	err := row.Scan(
		&id, &a.OwnerID, &name, &a.Size, &a.Mime, &a.Path, &provider,
		&visibility, &a.Version, &a.IsDeleted, &checksum, &thumbnailID,
		&originalID, &createdAt, &updatedAt,
	)
	if err != nil {
		return assets.Asset{}, err
	}
	a.ID = db.UUIDToString(id)
	a.Name = db.TextToString(name)
	a.Checksum = db.TextToString(checksum)
	a.Provider = storage.ProviderTag(provider)
	a.Visibility = assets.Visibility(visibility)
	a.ThumbnailID = db.UUIDToString(thumbnailID)
	a.OriginalID = db.UUIDToString(originalID)
	a.CreatedAt = db.TimeFromPg(createdAt)
	a.UpdatedAt = db.TimeFromPg(updatedAt)
	return a, nil
}

func insertAsset(ctx context.Context, tx pgx.Tx, a assets.Asset) error {
	id, err := db.ParseUUID(a.ID)
	if err != nil {
		return err
	}
	var thumbnailID pgtype.UUID
	if a.ThumbnailID != "" {
		if thumbnailID, err = db.ParseUUID(a.ThumbnailID); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
INSERT INTO assets (id, owner_id, name, size, mime_type, path, provider, visibility,
                    version, is_deleted, checksum, thumbnail_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		id, a.OwnerID, db.TextFromString(a.Name), a.Size, a.Mime, a.Path, string(a.Provider),
		string(a.Visibility), a.Version, a.IsDeleted, db.TextFromString(a.Checksum), thumbnailID,
		a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func insertShares(ctx context.Context, tx pgx.Tx, assetID string, shares []assets.Share) error {
	if len(shares) == 0 {
		return nil
	}
	id, err := db.ParseUUID(assetID)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, sh := range shares {
		batch.Queue(`INSERT INTO asset_shares (asset_id, sharer_id, mode) VALUES ($1, $2, $3)`, id, sh.SharerID, string(sh.Mode))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("duplicate share on asset %s: %w", assetID, err)
		}
		return fmt.Errorf("insert shares: %w", err)
	}
	return nil
}

func parseIDs(ids []string) ([]pgtype.UUID, error) {
	out := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		pgID, err := db.ParseUUID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, pgID)
	}
	return out, nil
}

var _ assets.Repository = (*Store)(nil)
