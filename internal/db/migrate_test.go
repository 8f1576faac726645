package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/assetd/internal/config"
)

func TestRunMigrateUnknownCommand(t *testing.T) {
	cfg := config.PostgresConfig{Host: "localhost", Port: 5432, User: "assetd", Database: "assetd", SSLMode: "disable"}
	err := RunMigrate(nil, cfg, nil, "invalid", nil)
	assert.Error(t, err)
}

func TestParseMigrateCommand(t *testing.T) {
	cmd, err := ParseMigrateCommand("up", nil)
	require.NoError(t, err)
	assert.Equal(t, "up", cmd.Name)

	cmd, err = ParseMigrateCommand("force", []string{"3"})
	require.NoError(t, err)
	assert.Equal(t, MigrateCommand{Name: "force", Version: 3}, cmd)

	_, err = ParseMigrateCommand("force", nil)
	assert.Error(t, err)
	_, err = ParseMigrateCommand("force", []string{"x"})
	assert.Error(t, err)
}
