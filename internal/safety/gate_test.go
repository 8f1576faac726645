package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/assetd/internal/errs"
	"github.com/memohai/assetd/internal/media"
)

type fixedModerator struct {
	nsfw  bool
	err   error
	calls int
}

func (m *fixedModerator) IsNSFW(context.Context, media.Artifact) (bool, error) {
	m.calls++
	return m.nsfw, m.err
}

type fixedScanner struct {
	malicious bool
	err       error
	calls     int
}

func (s *fixedScanner) IsMalicious(context.Context, media.Artifact) (bool, error) {
	s.calls++
	return s.malicious, s.err
}

var png = media.Artifact{Data: []byte{0x89, 'P', 'N', 'G'}, Mime: "image/png"}

func TestGateSupports(t *testing.T) {
	g := NewGate(nil, media.DefaultRegistry(), StubModerator{}, StubScanner{}, true)
	assert.True(t, g.Supports("image/jpeg"))
	assert.True(t, g.Supports("video/mp4"))
	assert.False(t, g.Supports("application/pdf"))
	assert.False(t, g.Supports("application/zip"))
}

func TestGateStubsAreSafe(t *testing.T) {
	g := NewGate(nil, media.DefaultRegistry(), StubModerator{}, StubScanner{}, true)
	unsafe, err := g.IsUnsafe(context.Background(), png)
	require.NoError(t, err)
	assert.False(t, unsafe)
}

func TestGateEitherSignalRejects(t *testing.T) {
	tests := []struct {
		name      string
		nsfw      bool
		malicious bool
		want      bool
	}{
		{"clean", false, false, false},
		{"nsfw", true, false, true},
		{"malware", false, true, true},
		{"both", true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(nil, media.DefaultRegistry(), &fixedModerator{nsfw: tt.nsfw}, &fixedScanner{malicious: tt.malicious}, true)
			got, err := g.IsUnsafe(context.Background(), png)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGateModerationToggle(t *testing.T) {
	moderator := &fixedModerator{nsfw: true}
	scanner := &fixedScanner{}
	g := NewGate(nil, media.DefaultRegistry(), moderator, scanner, false)
	unsafe, err := g.IsUnsafe(context.Background(), png)
	require.NoError(t, err)
	assert.False(t, unsafe)
	assert.Equal(t, 0, moderator.calls)
	assert.Equal(t, 1, scanner.calls, "malware scan stays mandatory")

	scanner.malicious = true
	unsafe, err = g.IsUnsafe(context.Background(), png)
	require.NoError(t, err)
	assert.True(t, unsafe)
}

func TestGateUnsupportedIsInternal(t *testing.T) {
	g := NewGate(nil, media.DefaultRegistry(), StubModerator{}, StubScanner{}, true)
	_, err := g.IsUnsafe(context.Background(), media.Artifact{Data: []byte("%PDF"), Mime: "application/pdf"})
	assert.True(t, errs.Is(err, errs.KindInternal))

	_, err = g.IsUnsafe(context.Background(), media.Artifact{Data: []byte("x")})
	assert.True(t, errs.Is(err, errs.KindInternal))
}

func TestGateSignalErrorsAreInternal(t *testing.T) {
	g := NewGate(nil, media.DefaultRegistry(), StubModerator{}, &fixedScanner{err: errors.New("clamd down")}, true)
	_, err := g.IsUnsafe(context.Background(), png)
	assert.True(t, errs.Is(err, errs.KindInternal))
}
