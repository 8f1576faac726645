// Package sqlitestore persists assets in an embedded SQLite database for
// single-node deployments and tests.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/memohai/assetd/internal/assets"
	"github.com/memohai/assetd/internal/storage"
)

//go:embed schema.sql
var schema string

// fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, log *slog.Logger, path string) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps an in-memory database alive and serializes writes
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: conn, logger: log.With(slog.String("repository", "sqlite"))}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectAsset = `
SELECT a.id, a.owner_id, a.name, a.size, a.mime_type, a.path, a.provider,
       a.visibility, a.version, a.is_deleted, a.checksum, a.thumbnail_id,
       o.id, a.created_at, a.updated_at
FROM assets a
LEFT JOIN assets o ON o.thumbnail_id = a.id
`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) FindByID(ctx context.Context, id string) (assets.Asset, error) {
	asset, err := scanAsset(s.db.QueryRowContext(ctx, selectAsset+`WHERE a.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return assets.Asset{}, assets.ErrNotFound
		}
		return assets.Asset{}, fmt.Errorf("select asset: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT sharer_id, mode FROM asset_shares WHERE asset_id = ? ORDER BY sharer_id`, id)
	if err != nil {
		return assets.Asset{}, fmt.Errorf("select shares: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sharerID, mode string
		if err := rows.Scan(&sharerID, &mode); err != nil {
			return assets.Asset{}, fmt.Errorf("scan share: %w", err)
		}
		asset.Shares = append(asset.Shares, assets.Share{SharerID: sharerID, Mode: assets.SharingMode(mode)})
	}
	if err := rows.Err(); err != nil {
		return assets.Asset{}, fmt.Errorf("iterate shares: %w", err)
	}
	return asset, nil
}

func (s *Store) Create(ctx context.Context, asset, thumbnail assets.Asset) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
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
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE assets
SET name = ?, size = ?, mime_type = ?, visibility = ?, version = ?, checksum = ?, updated_at = ?
WHERE id = ? AND version = ? AND is_deleted = 0`,
			nullString(asset.Name), asset.Size, asset.Mime, string(asset.Visibility), asset.Version,
			nullString(asset.Checksum), formatTime(asset.UpdatedAt), asset.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update asset: %w", err)
		}
		if n == 0 {
			var deleted bool
			err := tx.QueryRowContext(ctx, `SELECT is_deleted FROM assets WHERE id = ?`, asset.ID).Scan(&deleted)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
				return assets.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("check asset: %w", err)
			}
			return assets.ErrVersionConflict
		}
		_, err = tx.ExecContext(ctx, `
UPDATE assets
SET size = ?, mime_type = ?, visibility = ?, checksum = ?, updated_at = ?
WHERE id = ?`,
			thumbnail.Size, thumbnail.Mime, string(thumbnail.Visibility),
			nullString(thumbnail.Checksum), formatTime(thumbnail.UpdatedAt), thumbnail.ID,
		)
		if err != nil {
			return fmt.Errorf("update thumbnail: %w", err)
		}
		return nil
	})
}

func (s *Store) SoftDelete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	args = append([]any{formatTime(time.Now())}, args...)
	if _, err := s.db.ExecContext(ctx, `UPDATE assets SET is_deleted = 1, updated_at = ? WHERE id IN `+in, args...); err != nil {
		return fmt.Errorf("soft delete assets: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM asset_shares WHERE asset_id IN `+in, args...); err != nil {
			return fmt.Errorf("delete shares: %w", err)
		}
		// drop back-references first so either row can go regardless of order
		if _, err := tx.ExecContext(ctx, `UPDATE assets SET thumbnail_id = NULL WHERE id IN `+in, args...); err != nil {
			return fmt.Errorf("unlink thumbnails: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id IN `+in, args...); err != nil {
			return fmt.Errorf("delete assets: %w", err)
		}
		return nil
	})
}

func (s *Store) ListSoftDeleted(ctx context.Context, before time.Time, limit int) ([]assets.Asset, error) {
	rows, err := s.db.QueryContext(ctx,
		selectAsset+`WHERE a.is_deleted = 1 AND a.updated_at < ? ORDER BY a.updated_at LIMIT ?`,
		formatTime(before), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deleted assets: %w", err)
	}
	defer rows.Close()
	var out []assets.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", slog.Any("error", rbErr))
		}
		return err
	}
	return tx.Commit()
}

func scanAsset(row scanner) (assets.Asset, error) {
	var (
		a                                  assets.Asset
		name, checksum, thumbID, originID  sql.NullString
		provider, visibility, created, upd string
	)
	err := row.Scan(
		&a.ID, &a.OwnerID, &name, &a.Size, &a.Mime, &a.Path, &provider,
		&visibility, &a.Version, &a.IsDeleted, &checksum, &thumbID,
		&originID, &created, &upd,
	)
	if err != nil {
		return assets.Asset{}, err
	}
	a.Name = name.String
	a.Checksum = checksum.String
	a.ThumbnailID = thumbID.String
	a.OriginalID = originID.String
	a.Provider = storage.ProviderTag(provider)
	a.Visibility = assets.Visibility(visibility)
	if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return assets.Asset{}, fmt.Errorf("parse created_at: %w", err)
	}
	if a.UpdatedAt, err = time.Parse(timeLayout, upd); err != nil {
		return assets.Asset{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return a, nil
}

func insertAsset(ctx context.Context, tx *sql.Tx, a assets.Asset) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO assets (id, owner_id, name, size, mime_type, path, provider, visibility,
                    version, is_deleted, checksum, thumbnail_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, nullString(a.Name), a.Size, a.Mime, a.Path, string(a.Provider),
		string(a.Visibility), a.Version, a.IsDeleted, nullString(a.Checksum), nullString(a.ThumbnailID),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return err
}

func insertShares(ctx context.Context, tx *sql.Tx, assetID string, shares []assets.Share) error {
	for _, sh := range shares {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO asset_shares (asset_id, sharer_id, mode) VALUES (?, ?, ?)`,
			assetID, sh.SharerID, string(sh.Mode),
		); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
	}
	return nil
}

func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var _ assets.Repository = (*Store)(nil)
