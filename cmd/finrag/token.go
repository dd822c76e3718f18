package main

import (
	"errors"

	"github.com/spf13/cobra"

	appsvc "finrag/internal/app"
	"finrag/internal/config"
	"finrag/internal/logger"
)

var (
	tokenSubject string
	tokenHashKey string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin JWT or hash an admin key",
	Long: `Without flags beyond --subject, signs an admin token with the configured
JWT secret. With --hash, prints the bcrypt hash to store in
auth.admin_key_hash so operators can exchange the key at /api/v1/auth/token.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().StringVar(&tokenHashKey, "hash", "", "admin key to hash")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenHashKey != "" {
		hash, err := appsvc.HashAdminKey(tokenHashKey)
		if err != nil {
			return err
		}
		cmd.Println(hash)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is empty")
	}

	auth := appsvc.NewAuthService(cfg.Auth.AdminKeyHash, cfg.Auth.JWTSecret, cfg.JWTExpiration())
	result, err := auth.Mint(tokenSubject)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}
