package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/memohai/assetd/internal/boot"
)

func TestDependencyGraphIsComplete(t *testing.T) {
	err := fx.ValidateApp(
		fx.Supply(serveOptions{}),
		fx.Provide(provideConfig, boot.ProvideRuntimeConfig, provideLogger),
		InfrastructureModule,
		DomainModule,
		ServerModule,
		fx.NopLogger,
	)
	require.NoError(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(out.String(), "assetd "))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	fsys, err := migrationsFS()
	require.NoError(t, err)
	up, err := fsys.Open("0001_assets.up.sql")
	require.NoError(t, err)
	require.NoError(t, up.Close())
}
