package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/memohai/assetd/internal/auth"
	"github.com/memohai/assetd/internal/boot"
	"github.com/memohai/assetd/internal/config"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user",
	Long: `Sign a JWT whose subject is the given user id, using the configured secret
and algorithm. Intended for local testing and service-to-service calls.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		rc, err := boot.ProvideRuntimeConfig(cfg)
		if err != nil {
			return err
		}
		token, expiresAt, err := auth.GenerateToken(args[0], rc.Auth.JWTSecret, rc.Auth.JWTAlgorithm, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
