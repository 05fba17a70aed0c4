package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show stored outcomes of a session, or the known sessions",
	Run: func(cmd *cobra.Command, _ []string) {
		history(cmd)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringP("session", "s", "", "session id. Without it the known sessions are listed")
	historyCmd.Flags().IntP("limit", "l", 20, "maximum number of outcomes to show")
}

func history(cmd *cobra.Command) {
	ctx := context.Background()

	logger, config := setup()

	st, err := newStore(config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	sessionID, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	if sessionID == "" {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			logger.Fatal("listing sessions", zap.Error(err))
		}
		logger.Info("known sessions", zap.Int("count", len(sessions)))
		for _, s := range sessions {
			fmt.Println(s)
		}
		return
	}

	records, err := st.List(ctx, sessionID, limit)
	if err != nil {
		logger.Fatal("listing outcomes", zap.Error(err))
	}

	logger.Info("session history", zap.String("session_id", sessionID), zap.Int("count", len(records)))
	for _, r := range records {
		fmt.Println(recordLine(r))
	}
}
