// Package safety decides whether uploaded content may be ingested.
package safety

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/media"
)

// Moderator classifies content as not safe for work.
type Moderator interface {
	IsNSFW(ctx context.Context, a media.Artifact) (bool, error)
}

// Scanner detects malware.
type Scanner interface {
	IsMalicious(ctx context.Context, a media.Artifact) (bool, error)
}

// Gate composes moderation and malware scanning. Moderation can be disabled;
// malware scanning always runs.
type Gate struct {
	registry  *media.Registry
	moderator Moderator
	scanner   Scanner
	moderate  bool
	logger    *slog.Logger
}

// NewGate builds a gate over image and video content.
func NewGate(log *slog.Logger, registry *media.Registry, moderator Moderator, scanner Scanner, moderate bool) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{
		registry:  registry,
		moderator: moderator,
		scanner:   scanner,
		moderate:  moderate,
		logger:    log.With(slog.String("service", "safety")),
	}
}

// Supports reports whether mime is eligible for the gate.
func (g *Gate) Supports(mime string) bool {
	kind, ok := g.registry.KindOf(mime)
	return ok && (kind == media.KindImage || kind == media.KindVideo)
}

// IsUnsafe reports whether either signal flags a. It fails with an internal
// error for artifacts the gate does not support.
func (g *Gate) IsUnsafe(ctx context.Context, a media.Artifact) (bool, error) {
	if a.Mime == "" {
		return false, errs.Internal("cannot read buffer")
	}
	if !g.Supports(a.Mime) {
		return false, errs.Internal(fmt.Sprintf("'%s' not supported for censorship", a.Mime))
	}

	if g.scanner != nil {
		malicious, err := g.scanner.IsMalicious(ctx, a)
		if err != nil {
			return false, errs.Internalf(err, "malware scan")
		}
		if malicious {
			g.logger.Warn("malware detected", slog.String("mime", a.Mime), slog.Int64("size", a.Size()))
			return true, nil
		}
	}

	if g.moderate && g.moderator != nil {
		nsfw, err := g.moderator.IsNSFW(ctx, a)
		if err != nil {
			return false, errs.Internalf(err, "content moderation")
		}
		if nsfw {
			g.logger.Warn("nsfw content detected", slog.String("mime", a.Mime), slog.Int64("size", a.Size()))
			return true, nil
		}
	}

	g.logger.Debug("content passed safety checks", slog.String("mime", a.Mime), slog.Bool("moderated", g.moderate))
	return false, nil
}

// StubModerator never flags content.
type StubModerator struct{}

func (StubModerator) IsNSFW(context.Context, media.Artifact) (bool, error) { return false, nil }

// StubScanner never flags content.
type StubScanner struct{}

func (StubScanner) IsMalicious(context.Context, media.Artifact) (bool, error) { return false, nil }
