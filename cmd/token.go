package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	Run: func(cmd *cobra.Command, _ []string) {
		token(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("subject", app, "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

func token(cmd *cobra.Command) {
	logger, config := setup()

	secret, err := loadJWTSecret(config.API)
	if err != nil {
		logger.Fatal("loading the jwt secret", zap.Error(err))
	}
	if secret == "" {
		logger.Fatal("jwt secret is not configured", zap.String("hint", "set CAREER_MINIMAX_JWT_SECRET_FILE or api.jwt-secret-file"))
	}

	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	signed, err := api.IssueToken(secret, subject, ttl)
	if err != nil {
		logger.Fatal("issuing a token", zap.Error(err))
	}
	fmt.Println(signed)
}
