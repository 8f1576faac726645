package assets

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/media"
	"github.com/memohai/assetd/internal/storage"
)

const purgeBatchSize = 100

// Cipher encrypts content at rest.
type Cipher interface {
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// SafetyGate rejects unsafe content before it is stored.
type SafetyGate interface {
	Supports(mime string) bool
	IsUnsafe(ctx context.Context, a media.Artifact) (bool, error)
}

// Options tunes the ingestion pipeline.
type Options struct {
	MaxImageWidth   int
	AllowFullDelete bool
}

// Service orchestrates asset ingestion, mutation and retrieval.
type Service struct {
	repo      Repository
	registry  *media.Registry
	gate      SafetyGate
	previewer *media.Previewer
	cipher    Cipher
	storage   storage.Provider
	opts      Options
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(
	log *slog.Logger,
	repo Repository,
	registry *media.Registry,
	gate SafetyGate,
	previewer *media.Previewer,
	cipher Cipher,
	provider storage.Provider,
	opts Options,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		gate:      gate,
		previewer: previewer,
		cipher:    cipher,
		storage:   provider,
		opts:      opts,
		logger:    log.With(slog.String("service", "assets")),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Create ingests new content and persists it with a thumbnail. Nothing is
// persisted unless both uploads succeed.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (CreateResult, error) {
	if userID == "" {
		return CreateResult{}, errs.Unauthorized("missing user identity")
	}
	req, err := normalizeCreate(userID, req)
	if err != nil {
		return CreateResult{}, err
	}

	primary, err := s.ingest(ctx, req.Data)
	if err != nil {
		return CreateResult{}, err
	}
	thumb, err := s.previewer.Thumbnail(primary)
	if err != nil {
		return CreateResult{}, err
	}

	primaryPath, thumbPath, err := s.uploadPair(ctx, primary, thumb)
	if err != nil {
		return CreateResult{}, err
	}

	now := s.now().UTC()
	asset := Asset{
		ID:         s.newID(),
		OwnerID:    userID,
		Name:       req.Name,
		Size:       primary.Size(),
		Mime:       primary.Mime,
		Path:       primaryPath,
		Provider:   s.storage.Tag(),
		Visibility: req.Visibility,
		Version:    1,
		Checksum:   checksum(primary.Data),
		Shares:     req.Shares,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	thumbnail := Asset{
		ID:         s.newID(),
		OwnerID:    userID,
		Size:       thumb.Size(),
		Mime:       thumb.Mime,
		Path:       thumbPath,
		Provider:   s.storage.Tag(),
		Visibility: req.Visibility,
		Version:    1,
		Checksum:   checksum(thumb.Data),
		OriginalID: asset.ID,
		Shares:     req.Shares,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	asset.ThumbnailID = thumbnail.ID

	if err := s.repo.Create(ctx, asset, thumbnail); err != nil {
		s.discard(ctx, primaryPath, thumbPath)
		return CreateResult{}, errs.Internalf(err, "cannot persist asset")
	}

	s.logger.Info("asset created",
		slog.String("asset_id", asset.ID),
		slog.String("thumbnail_id", thumbnail.ID),
		slog.String("mime", asset.Mime),
		slog.Int64("size", asset.Size),
	)
	return CreateResult{ID: asset.ID, ThumbnailID: thumbnail.ID}, nil
}

// Update changes metadata and, when data is given, replaces the stored
// content and thumbnail in place. The version is bumped on every success.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (Asset, error) {
	if err := validateUpdate(req); err != nil {
		return Asset{}, err
	}
	asset, err := s.loadLive(ctx, req.AssetID)
	if err != nil {
		return Asset{}, err
	}
	if asset.Visibility == VisibilityCensored || !asset.Grants(userID, ModeReadWrite) {
		return Asset{}, errs.Unauthorized("not allowed to update asset")
	}
	thumb, err := s.loadThumbnail(ctx, asset, "update")
	if err != nil {
		return Asset{}, err
	}

	updated, updatedThumb := asset, thumb
	if req.Data != nil {
		primary, err := s.ingest(ctx, *req.Data)
		if err != nil {
			return Asset{}, err
		}
		preview, err := s.previewer.Thumbnail(primary)
		if err != nil {
			return Asset{}, err
		}
		if err := s.replacePair(ctx, asset.Path, primary, thumb.Path, preview); err != nil {
			return Asset{}, err
		}
		updated.Mime, updated.Size, updated.Checksum = primary.Mime, primary.Size(), checksum(primary.Data)
		updatedThumb.Mime, updatedThumb.Size, updatedThumb.Checksum = preview.Mime, preview.Size(), checksum(preview.Data)
	}
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Visibility != nil {
		updated.Visibility = *req.Visibility
		updatedThumb.Visibility = *req.Visibility
	}
	now := s.now().UTC()
	updated.Version = asset.Version + 1
	updated.UpdatedAt = now
	updatedThumb.UpdatedAt = now

	if err := s.repo.Update(ctx, updated, updatedThumb, asset.Version); err != nil {
		switch {
		case errors.Is(err, ErrVersionConflict):
			return Asset{}, errs.Conflict("asset was modified concurrently")
		case errors.Is(err, ErrNotFound):
			return Asset{}, errs.NotFound("asset", asset.ID)
		}
		return Asset{}, errs.Internalf(err, "cannot update asset")
	}

	s.logger.Info("asset updated",
		slog.String("asset_id", updated.ID),
		slog.Int("version", updated.Version),
		slog.Bool("content", req.Data != nil),
	)
	return updated, nil
}

// Delete soft-deletes an asset with its thumbnail, then removes bytes and
// rows unless full deletion is disabled. Censored assets cannot be deleted.
func (s *Service) Delete(ctx context.Context, userID string, req DeleteRequest) error {
	if err := validateID(req.AssetID); err != nil {
		return err
	}
	asset, err := s.loadLive(ctx, req.AssetID)
	if err != nil {
		return err
	}
	if asset.Visibility == VisibilityCensored || !asset.Grants(userID, ModeReadWriteDelete) {
		return errs.Unauthorized("not allowed to delete asset")
	}
	thumb, err := s.loadThumbnail(ctx, asset, "delete")
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, asset.ID, thumb.ID); err != nil {
		return errs.Internalf(err, "cannot delete asset")
	}
	s.logger.Info("asset soft-deleted", slog.String("asset_id", asset.ID))

	if !s.opts.AllowFullDelete {
		return nil
	}
	if err := s.erase(ctx, asset, thumb); err != nil {
		return err
	}
	s.logger.Info("asset purged", slog.String("asset_id", asset.ID))
	return nil
}

// Download returns the decrypted content of an asset the user may read.
func (s *Service) Download(ctx context.Context, userID string, req DownloadRequest) (DownloadResult, error) {
	if err := validateID(req.AssetID); err != nil {
		return DownloadResult{}, err
	}
	asset, err := s.loadLive(ctx, req.AssetID)
	if err != nil {
		return DownloadResult{}, err
	}
	if asset.Visibility == VisibilityCensored {
		return DownloadResult{}, errs.Unauthorized("asset is censored")
	}
	if !asset.Grants(userID, ModeRead) {
		return DownloadResult{}, errs.Unauthorized("not allowed to read asset")
	}

	encrypted, err := s.storage.Download(ctx, asset.Path)
	if err != nil {
		return DownloadResult{}, errs.Internalf(err, "cannot download from storage provider")
	}
	plain, err := s.cipher.Decrypt(encrypted)
	if err != nil {
		return DownloadResult{}, errs.Internalf(err, "cannot download from storage provider")
	}
	return DownloadResult{Data: plain, Mime: asset.Mime, Asset: asset}, nil
}

// Purge hard-deletes rows soft-deleted before the cutoff and their bytes. It
// does nothing when full deletion is disabled.
func (s *Service) Purge(ctx context.Context, before time.Time) (int, error) {
	if !s.opts.AllowFullDelete {
		return 0, nil
	}
	rows, err := s.repo.ListSoftDeleted(ctx, before, purgeBatchSize)
	if err != nil {
		return 0, errs.Internalf(err, "cannot list deleted assets")
	}

	var (
		ids      []string
		failures []error
	)
	for _, row := range rows {
		if err := s.storage.Delete(ctx, row.Path); err != nil {
			s.logger.Warn("purge: delete bytes failed", slog.String("asset_id", row.ID), slog.Any("error", err))
			failures = append(failures, err)
			continue
		}
		ids = append(ids, row.ID)
	}
	if len(ids) > 0 {
		if err := s.repo.Delete(ctx, ids...); err != nil {
			return 0, errs.Internalf(err, "cannot delete asset rows")
		}
	}
	return len(ids), errors.Join(failures...)
}

// ingest decodes request data, gates it and applies the registry transform
// for images.
func (s *Service) ingest(ctx context.Context, data string) (media.Artifact, error) {
	art, err := decodeArtifact(data)
	if err != nil {
		return media.Artifact{}, err
	}
	handler, ok := s.registry.Resolve(art.Mime)
	if !ok {
		return media.Artifact{}, errs.BadInput("asset.data", media.ErrUnsupportedMediaType.Error())
	}

	if s.gate != nil && s.gate.Supports(art.Mime) {
		unsafe, err := s.gate.IsUnsafe(ctx, art)
		if err != nil {
			return media.Artifact{}, err
		}
		if unsafe {
			return media.Artifact{}, errs.BadInput("asset.data", "content is not allowed")
		}
	}

	if handler.Kind != media.KindImage {
		return art, nil
	}
	resized, err := handler.Transform(art.Data, s.opts.MaxImageWidth)
	if err != nil {
		if errors.Is(err, media.ErrUndecodable) {
			return media.Artifact{}, errs.BadInput("asset.data", "cannot decode image")
		}
		return media.Artifact{}, err
	}
	return resized, nil
}

func (s *Service) uploadPair(ctx context.Context, primary, thumb media.Artifact) (string, string, error) {
	encPrimary, err := s.cipher.Encrypt(primary.Data)
	if err != nil {
		return "", "", errs.Internalf(err, "cannot encrypt asset")
	}
	encThumb, err := s.cipher.Encrypt(thumb.Data)
	if err != nil {
		return "", "", errs.Internalf(err, "cannot encrypt thumbnail")
	}

	var primaryPath, thumbPath string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.storage.Upload(gctx, encPrimary)
		if err != nil {
			return err
		}
		primaryPath = p
		return nil
	})
	g.Go(func() error {
		p, err := s.storage.Upload(gctx, encThumb)
		if err != nil {
			return err
		}
		thumbPath = p
		return nil
	})
	if err := g.Wait(); err != nil {
		s.discard(ctx, primaryPath, thumbPath)
		return "", "", storageFailure(err)
	}
	return primaryPath, thumbPath, nil
}

func (s *Service) replacePair(ctx context.Context, primaryPath string, primary media.Artifact, thumbPath string, thumb media.Artifact) error {
	encPrimary, err := s.cipher.Encrypt(primary.Data)
	if err != nil {
		return errs.Internalf(err, "cannot encrypt asset")
	}
	encThumb, err := s.cipher.Encrypt(thumb.Data)
	if err != nil {
		return errs.Internalf(err, "cannot encrypt thumbnail")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.storage.Replace(gctx, primaryPath, encPrimary) })
	g.Go(func() error { return s.storage.Replace(gctx, thumbPath, encThumb) })
	if err := g.Wait(); err != nil {
		return storageFailure(err)
	}
	return nil
}

// erase removes the stored bytes of an asset and its thumbnail, then rows.
func (s *Service) erase(ctx context.Context, asset, thumb Asset) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.storage.Delete(gctx, asset.Path) })
	g.Go(func() error { return s.storage.Delete(gctx, thumb.Path) })
	if err := g.Wait(); err != nil {
		return errs.Internalf(err, "cannot delete from storage provider")
	}
	if err := s.repo.Delete(ctx, asset.ID, thumb.ID); err != nil {
		return errs.Internalf(err, "cannot delete asset rows")
	}
	return nil
}

// discard deletes bytes uploaded by a create that will not be persisted.
func (s *Service) discard(ctx context.Context, paths ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.storage.Delete(ctx, p); err != nil {
			s.logger.Warn("discard orphaned upload failed", slog.String("path", p), slog.Any("error", err))
		}
	}
}

func (s *Service) loadLive(ctx context.Context, id string) (Asset, error) {
	asset, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Asset{}, errs.NotFound("asset", id)
		}
		return Asset{}, errs.Internalf(err, "cannot load asset")
	}
	if asset.IsDeleted {
		return Asset{}, errs.NotFound("asset", id)
	}
	return asset, nil
}

func (s *Service) loadThumbnail(ctx context.Context, asset Asset, op string) (Asset, error) {
	if asset.IsThumbnail() {
		return Asset{}, errs.BadInput("assetId", "cannot "+op+" thumbnail, "+op+" original asset instead")
	}
	if asset.ThumbnailID == "" {
		return Asset{}, errs.Internal("asset does not have a thumbnail")
	}
	thumb, err := s.repo.FindByID(ctx, asset.ThumbnailID)
	if err != nil {
		return Asset{}, errs.Internalf(err, "cannot load thumbnail of asset %s", asset.ID)
	}
	return thumb, nil
}

// storageFailure keeps classified errors and marks the rest unavailable.
func storageFailure(err error) error {
	if _, ok := errs.KindOf(err); ok {
		return err
	}
	return errs.StorageUnavailable("cannot upload to storage provider", err)
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
