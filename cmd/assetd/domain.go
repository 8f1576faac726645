package main

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/memohai/assetd/internal/assets"
	"github.com/memohai/assetd/internal/boot"
	"github.com/memohai/assetd/internal/codec"
	"github.com/memohai/assetd/internal/janitor"
	"github.com/memohai/assetd/internal/media"
	"github.com/memohai/assetd/internal/safety"
	"github.com/memohai/assetd/internal/storage"
)

var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		media.DefaultRegistry,
		providePreviewer,
		provideSafetyGate,
		provideCodec,
		provideAssetsService,
		provideJanitor,
	),
)

func providePreviewer(registry *media.Registry, rc *boot.RuntimeConfig) *media.Previewer {
	return media.NewPreviewer(registry, rc.Assets.ThumbnailWidth)
}

func provideSafetyGate(log *slog.Logger, registry *media.Registry, rc *boot.RuntimeConfig) *safety.Gate {
	return safety.NewGate(log, registry, safety.StubModerator{}, safety.StubScanner{}, rc.Assets.CensorNSFW)
}

func provideCodec(rc *boot.RuntimeConfig) (*codec.Codec, error) {
	return codec.New(rc.EncryptionAlgorithm, rc.EncryptionKey, rc.EncryptionIV)
}

type assetsParams struct {
	fx.In

	Logger        *slog.Logger
	RuntimeConfig *boot.RuntimeConfig
	Repository    assets.Repository
	Registry      *media.Registry
	Gate          *safety.Gate
	Previewer     *media.Previewer
	Codec         *codec.Codec
	Storage       storage.Provider
}

func provideAssetsService(p assetsParams) *assets.Service {
	return assets.NewService(p.Logger, p.Repository, p.Registry, p.Gate, p.Previewer, p.Codec, p.Storage, assets.Options{
		MaxImageWidth:   p.RuntimeConfig.Assets.MaxImageWidth,
		AllowFullDelete: p.RuntimeConfig.Assets.AllowFullDelete,
	})
}

func provideJanitor(log *slog.Logger, svc *assets.Service, rc *boot.RuntimeConfig) (*janitor.Janitor, error) {
	return janitor.New(log, svc, rc.JanitorSchedule, rc.JanitorRetention)
}
