package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/assetd/internal/codec"
	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/media"
	"github.com/memohai/assetd/internal/safety"
	"github.com/memohai/assetd/internal/storage"
)

const (
	owner    = "owner-1"
	stranger = "user-9"
)

type memRepo struct {
	mu        sync.Mutex
	rows      map[string]Asset
	createErr error
	updateErr error
	creates   int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]Asset{}}
}

func (r *memRepo) FindByID(_ context.Context, id string) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	return a, nil
}

func (r *memRepo) Create(_ context.Context, asset, thumbnail Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	r.rows[asset.ID] = asset
	r.rows[thumbnail.ID] = thumbnail
	return nil
}

func (r *memRepo) Update(_ context.Context, asset, thumbnail Asset, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	cur, ok := r.rows[asset.ID]
	if !ok || cur.IsDeleted {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.rows[asset.ID] = asset
	r.rows[thumbnail.ID] = thumbnail
	return nil
}

func (r *memRepo) SoftDelete(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if a, ok := r.rows[id]; ok {
			a.IsDeleted = true
			r.rows[id] = a
		}
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.rows, id)
	}
	return nil
}

func (r *memRepo) ListSoftDeleted(_ context.Context, before time.Time, limit int) ([]Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Asset
	for _, a := range r.rows {
		if a.IsDeleted && a.UpdatedAt.Before(before) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) setVisibility(id string, v Visibility) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.rows[id]
	a.Visibility = v
	r.rows[id] = a
}

// failingProvider rejects every write.
type failingProvider struct {
	storage.Provider
	mu     sync.Mutex
	writes int
}

func (f *failingProvider) Upload(context.Context, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return "", errors.New("disk on fire")
}

type flaggingModerator struct{}

func (flaggingModerator) IsNSFW(context.Context, media.Artifact) (bool, error) { return true, nil }

type fixture struct {
	svc     *Service
	repo    *memRepo
	backend *storage.FilesystemProvider
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	opts      Options
	moderator safety.Moderator
	provider  func(*storage.FilesystemProvider) storage.Provider
}

func withOptions(opts Options) fixtureOption {
	return func(c *fixtureConfig) { c.opts = opts }
}

func newFixture(t *testing.T, options ...fixtureOption) fixture {
	t.Helper()
	cfg := fixtureConfig{
		opts:      Options{MaxImageWidth: 2500, AllowFullDelete: true},
		moderator: safety.StubModerator{},
	}
	for _, o := range options {
		o(&cfg)
	}
	backend, err := storage.NewFilesystemProvider(t.TempDir())
	require.NoError(t, err)
	var provider storage.Provider = backend
	if cfg.provider != nil {
		provider = cfg.provider(backend)
	}
	cipher, err := codec.New(codec.AES128ECB, "0123456789abcdef", nil)
	require.NoError(t, err)

	registry := media.DefaultRegistry()
	repo := newMemRepo()
	gate := safety.NewGate(nil, registry, cfg.moderator, safety.StubScanner{}, true)
	svc := NewService(nil, repo, registry, gate, media.NewPreviewer(registry, 200), cipher, provider, cfg.opts)
	return fixture{svc: svc, repo: repo, backend: backend}
}

func pngBase64(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 7 {
		img.Set(x, x%height, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func imageSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	return cfg.Width, cfg.Height
}

func create(t *testing.T, f fixture, req CreateRequest) CreateResult {
	t.Helper()
	if req.Data == "" {
		req.Data = pngBase64(t, 400, 200)
	}
	res, err := f.svc.Create(context.Background(), owner, req)
	require.NoError(t, err)
	return res
}

func assertKind(t *testing.T, err error, kind errs.Kind) {
	t.Helper()
	require.Error(t, err)
	got, ok := errs.KindOf(err)
	require.True(t, ok, "unclassified error: %v", err)
	assert.Equal(t, kind, got, err.Error())
}

func TestCreateLargePNGIsResizedWithThumbnail(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{Name: "holiday", Data: pngBase64(t, 4000, 2000)})

	asset, err := f.repo.FindByID(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", asset.Mime)
	assert.Equal(t, res.ThumbnailID, asset.ThumbnailID)
	assert.Equal(t, VisibilityPrivate, asset.Visibility)
	assert.Equal(t, 1, asset.Version)
	assert.Equal(t, storage.ProviderFilesystem, asset.Provider)

	dl, err := f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: res.ID})
	require.NoError(t, err)
	w, h := imageSize(t, dl.Data)
	assert.Equal(t, 2500, w)
	assert.Equal(t, 1250, h)
	assert.Equal(t, asset.Size, int64(len(dl.Data)))
	assert.Equal(t, checksum(dl.Data), asset.Checksum)

	thumb, err := f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: res.ThumbnailID})
	require.NoError(t, err)
	tw, _ := imageSize(t, thumb.Data)
	assert.Equal(t, 200, tw)
	assert.Equal(t, res.ID, thumb.Asset.OriginalID)
}

func TestCreateStoresCiphertext(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{})
	asset, err := f.repo.FindByID(context.Background(), res.ID)
	require.NoError(t, err)

	stored, err := f.backend.Download(context.Background(), asset.Path)
	require.NoError(t, err)
	dl, err := f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: res.ID})
	require.NoError(t, err)
	assert.NotEqual(t, dl.Data, stored)
}

func TestCreateDownloadRoundTripForDocuments(t *testing.T) {
	// documents cannot produce a thumbnail yet
	f := newFixture(t)
	pdf := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))
	_, err := f.svc.Create(context.Background(), owner, CreateRequest{Data: pdf})
	assertKind(t, err, errs.KindNotImplemented)
	assert.Equal(t, 0, f.repo.creates)
}

func TestCreateRejectsUnknownBytes(t *testing.T) {
	f := newFixture(t)
	data := base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0x02, 0x03, 0xfe})
	_, err := f.svc.Create(context.Background(), owner, CreateRequest{Data: data})
	assertKind(t, err, errs.KindBadInput)
	assert.Contains(t, errs.FieldsOf(err), "asset.data")
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		req   CreateRequest
		field string
	}{
		{"missing data", CreateRequest{}, "asset.data"},
		{"bad base64", CreateRequest{Data: "!!!"}, "asset.data"},
		{"bad visibility", CreateRequest{Data: "aGk=", Visibility: "SECRET"}, "asset.visibility"},
		{"blank name", CreateRequest{Data: "aGk=", Name: "  "}, "asset.name"},
		{"share without sharer", CreateRequest{Data: "aGk=", Shares: []Share{{Mode: ModeRead}}}, "asset.shares.0.sharerId"},
		{"share with self", CreateRequest{Data: "aGk=", Shares: []Share{{SharerID: owner}}}, "asset.shares.0.sharerId"},
		{"bad mode", CreateRequest{Data: "aGk=", Shares: []Share{{SharerID: "u2", Mode: "ALL"}}}, "asset.shares.0.mode"},
		{"duplicate sharer", CreateRequest{Data: "aGk=", Shares: []Share{{SharerID: "u2"}, {SharerID: "u2"}}}, "asset.shares.1.sharerId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), owner, tc.req)
			assertKind(t, err, errs.KindBadInput)
			assert.Contains(t, errs.FieldsOf(err), tc.field)
		})
	}
}

func TestCreateRejectsUnsafeContent(t *testing.T) {
	f := newFixture(t, func(c *fixtureConfig) { c.moderator = flaggingModerator{} })
	_, err := f.svc.Create(context.Background(), owner, CreateRequest{Data: pngBase64(t, 10, 10)})
	assertKind(t, err, errs.KindBadInput)
	assert.Contains(t, errs.FieldsOf(err), "asset.data")
	assert.Equal(t, 0, f.repo.creates)
}

func TestCreateFailsWhenUploadsExhausted(t *testing.T) {
	failing := &failingProvider{}
	f := newFixture(t, func(c *fixtureConfig) {
		c.provider = func(backend *storage.FilesystemProvider) storage.Provider {
			failing.Provider = backend
			return storage.NewRetryingProvider(nil, failing, 5, func() backoff.BackOff { return &backoff.ZeroBackOff{} })
		}
	})
	_, err := f.svc.Create(context.Background(), owner, CreateRequest{Data: pngBase64(t, 40, 20)})
	assertKind(t, err, errs.KindStorageUnavailable)
	assert.Equal(t, 0, f.repo.creates)
	assert.Empty(t, f.repo.rows)
	assert.LessOrEqual(t, failing.writes, 10)
	assert.GreaterOrEqual(t, failing.writes, 5)
}

func TestCreateDiscardsUploadsWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("db down")
	_, err := f.svc.Create(context.Background(), owner, CreateRequest{Data: pngBase64(t, 40, 20)})
	assertKind(t, err, errs.KindInternal)
	assert.Empty(t, f.repo.rows)
}

func TestDownloadAuthorization(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{Shares: []Share{
		{SharerID: "reader", Mode: ModeRead},
		{SharerID: "writer", Mode: ModeReadWrite},
		{SharerID: "deleter", Mode: ModeReadWriteDelete},
	}})
	ctx := context.Background()

	for _, user := range []string{owner, "reader", "writer", "deleter"} {
		_, err := f.svc.Download(ctx, user, DownloadRequest{AssetID: res.ID})
		assert.NoError(t, err, user)
		_, err = f.svc.Download(ctx, user, DownloadRequest{AssetID: res.ThumbnailID})
		assert.NoError(t, err, user)
	}
	_, err := f.svc.Download(ctx, stranger, DownloadRequest{AssetID: res.ID})
	assertKind(t, err, errs.KindUnauthorized)
}

func TestPublicAssetStillRequiresReadGrant(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{Visibility: VisibilityPublic, Shares: []Share{{SharerID: "reader", Mode: ModeRead}}})
	ctx := context.Background()

	_, err := f.svc.Download(ctx, stranger, DownloadRequest{AssetID: res.ID})
	assertKind(t, err, errs.KindUnauthorized)
	_, err = f.svc.Download(ctx, "reader", DownloadRequest{AssetID: res.ID})
	require.NoError(t, err)
}

func TestCensoredAssetIsUndownloadableByOwner(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{})
	f.repo.setVisibility(res.ID, VisibilityCensored)

	_, err := f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: res.ID})
	assertKind(t, err, errs.KindUnauthorized)

	name := "renamed"
	_, err = f.svc.Update(context.Background(), owner, UpdateRequest{AssetID: res.ID, Name: &name})
	assertKind(t, err, errs.KindUnauthorized)
}

func TestCensoredAssetCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{Shares: []Share{{SharerID: "deleter", Mode: ModeReadWriteDelete}}})
	f.repo.setVisibility(res.ID, VisibilityCensored)
	ctx := context.Background()

	for _, user := range []string{owner, "deleter"} {
		err := f.svc.Delete(ctx, user, DeleteRequest{AssetID: res.ID})
		assertKind(t, err, errs.KindUnauthorized)
	}
	stored, err := f.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
}

func TestTextPayloadIsUnsupported(t *testing.T) {
	f := newFixture(t)
	for _, payload := range []string{"hello world", "not an image at all", `{"a":1}`} {
		_, err := f.svc.Create(context.Background(), owner, CreateRequest{
			Name: "notes.txt",
			Data: base64.StdEncoding.EncodeToString([]byte(payload)),
		})
		assertKind(t, err, errs.KindBadInput)
		assert.Contains(t, errs.FieldsOf(err), "asset.data", payload)
	}
	assert.Zero(t, f.repo.creates)
}

func TestShareModeMatrix(t *testing.T) {
	cases := []struct {
		mode      SharingMode
		canUpdate bool
		canDelete bool
	}{
		{ModeRead, false, false},
		{ModeReadWrite, true, false},
		{ModeReadWriteDelete, true, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			f := newFixture(t)
			res := create(t, f, CreateRequest{Shares: []Share{{SharerID: "sharer", Mode: tc.mode}}})
			ctx := context.Background()

			_, err := f.svc.Download(ctx, "sharer", DownloadRequest{AssetID: res.ID})
			require.NoError(t, err)

			name := "new name"
			_, err = f.svc.Update(ctx, "sharer", UpdateRequest{AssetID: res.ID, Name: &name})
			if tc.canUpdate {
				assert.NoError(t, err)
			} else {
				assertKind(t, err, errs.KindUnauthorized)
			}

			err = f.svc.Delete(ctx, "sharer", DeleteRequest{AssetID: res.ID})
			if tc.canDelete {
				assert.NoError(t, err)
			} else {
				assertKind(t, err, errs.KindUnauthorized)
			}
		})
	}
}

func TestUpdateMetadataBumpsVersion(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{Name: "a"})
	ctx := context.Background()
	before, err := f.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)

	name := "b"
	vis := VisibilityPublic
	updated, err := f.svc.Update(ctx, owner, UpdateRequest{AssetID: res.ID, Name: &name, Visibility: &vis})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Name)
	assert.Equal(t, VisibilityPublic, updated.Visibility)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, before.Checksum, updated.Checksum)
	assert.Equal(t, before.Path, updated.Path)

	thumb, err := f.repo.FindByID(ctx, res.ThumbnailID)
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, thumb.Visibility)
}

func TestUpdateContentReplacesInPlace(t *testing.T) {
	f := newFixture(t, withOptions(Options{MaxImageWidth: 500, AllowFullDelete: true}))
	res := create(t, f, CreateRequest{Data: pngBase64(t, 400, 200)})
	ctx := context.Background()
	before, err := f.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)

	data := pngBase64(t, 600, 1200)
	updated, err := f.svc.Update(ctx, owner, UpdateRequest{AssetID: res.ID, Data: &data})
	require.NoError(t, err)
	assert.Equal(t, before.Path, updated.Path)
	assert.Equal(t, 2, updated.Version)
	assert.NotEqual(t, before.Checksum, updated.Checksum)

	dl, err := f.svc.Download(ctx, owner, DownloadRequest{AssetID: res.ID})
	require.NoError(t, err)
	w, h := imageSize(t, dl.Data)
	assert.Equal(t, 250, w)
	assert.Equal(t, 500, h)

	thumb, err := f.svc.Download(ctx, owner, DownloadRequest{AssetID: res.ThumbnailID})
	require.NoError(t, err)
	tw, th := imageSize(t, thumb.Data)
	assert.Equal(t, 100, tw)
	assert.Equal(t, 200, th)
	assert.Equal(t, thumb.Asset.Size, int64(len(thumb.Data)))
}

func TestUpdateRejectsThumbnailTarget(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{})
	name := "x"
	_, err := f.svc.Update(context.Background(), owner, UpdateRequest{AssetID: res.ThumbnailID, Name: &name})
	assertKind(t, err, errs.KindBadInput)
	err = f.svc.Delete(context.Background(), owner, DeleteRequest{AssetID: res.ThumbnailID})
	assertKind(t, err, errs.KindBadInput)
}

func TestUpdateWithoutThumbnailIsInternal(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	require.NoError(t, f.repo.Create(context.Background(), Asset{ID: id, OwnerID: owner, Version: 1, Visibility: VisibilityPrivate}, Asset{ID: uuid.NewString()}))
	name := "x"
	_, err := f.svc.Update(context.Background(), owner, UpdateRequest{AssetID: id, Name: &name})
	assertKind(t, err, errs.KindInternal)
}

func TestUpdateMapsVersionConflict(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{})
	f.repo.updateErr = ErrVersionConflict

	name := "late"
	_, err := f.svc.Update(context.Background(), owner, UpdateRequest{AssetID: res.ID, Name: &name})
	assertKind(t, err, errs.KindConflict)
}

func TestSoftDeletedAssetIsNotFound(t *testing.T) {
	f := newFixture(t, withOptions(Options{MaxImageWidth: 2500, AllowFullDelete: false}))
	res := create(t, f, CreateRequest{Visibility: VisibilityPublic})
	ctx := context.Background()
	asset, err := f.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, owner, DeleteRequest{AssetID: res.ID}))

	_, err = f.svc.Download(ctx, owner, DownloadRequest{AssetID: res.ID})
	assertKind(t, err, errs.KindNotFound)
	_, err = f.svc.Download(ctx, owner, DownloadRequest{AssetID: res.ThumbnailID})
	assertKind(t, err, errs.KindNotFound)
	name := "x"
	_, err = f.svc.Update(ctx, owner, UpdateRequest{AssetID: res.ID, Name: &name})
	assertKind(t, err, errs.KindNotFound)
	err = f.svc.Delete(ctx, owner, DeleteRequest{AssetID: res.ID})
	assertKind(t, err, errs.KindNotFound)

	// bytes stay recoverable from the backend
	stored, err := f.backend.Download(ctx, asset.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, stored)
}

func TestFullDeleteRemovesBytesAndRows(t *testing.T) {
	f := newFixture(t)
	res := create(t, f, CreateRequest{})
	ctx := context.Background()
	asset, err := f.repo.FindByID(ctx, res.ID)
	require.NoError(t, err)
	thumb, err := f.repo.FindByID(ctx, res.ThumbnailID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, owner, DeleteRequest{AssetID: res.ID}))

	assert.Empty(t, f.repo.rows)
	_, err = f.backend.Download(ctx, asset.Path)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	_, err = f.backend.Download(ctx, thumb.Path)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestPurgeRemovesExpiredSoftDeletes(t *testing.T) {
	f := newFixture(t, withOptions(Options{MaxImageWidth: 2500, AllowFullDelete: false}))
	res := create(t, f, CreateRequest{})
	ctx := context.Background()
	require.NoError(t, f.svc.Delete(ctx, owner, DeleteRequest{AssetID: res.ID}))

	n, err := f.svc.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "purge is disabled without full delete")

	f.svc.opts.AllowFullDelete = true
	n, err = f.svc.Purge(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, f.repo.rows)
}

func TestInvalidAssetID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: "nope"})
	assertKind(t, err, errs.KindBadInput)
	assert.Contains(t, errs.FieldsOf(err), "assetId")

	_, err = f.svc.Download(context.Background(), owner, DownloadRequest{AssetID: uuid.NewString()})
	assertKind(t, err, errs.KindNotFound)
}

func TestSharingModeIncludes(t *testing.T) {
	assert.True(t, ModeReadWriteDelete.Includes(ModeRead))
	assert.True(t, ModeReadWrite.Includes(ModeRead))
	assert.False(t, ModeRead.Includes(ModeReadWrite))
	assert.False(t, ModeReadWrite.Includes(ModeReadWriteDelete))
	assert.False(t, SharingMode("").Includes(ModeRead))
}
