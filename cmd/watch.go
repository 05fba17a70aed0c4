package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/scheduler"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-evaluate stored sessions on a schedule with fresh market data",
	Run: func(cmd *cobra.Command, _ []string) {
		watch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().Bool("once", false, "re-evaluate every session once and exit")
}

func watch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	session, err := decision.New(config.Engine, logger)
	if err != nil {
		logger.Fatal("building the decision session", zap.Error(err))
	}

	st, err := newStore(config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	chain, err := newProvider(config, nil, logger)
	if err != nil {
		logger.Fatal("building providers", zap.Error(err))
	}

	sched := scheduler.New(ctx, config.Watch, scheduler.Deps{
		Provider: chain,
		Decider:  session,
		Store:    st,
		Screen:   newScreener(config, logger),
		Logger:   logger,
	})

	if once, _ := cmd.Flags().GetBool("once"); once {
		changes, err := sched.RunNow(ctx)
		for _, c := range changes {
			marker := " "
			if c.Changed() {
				marker = "*"
			}
			fmt.Printf("%s %s  %s -> %s\n", marker, c.SessionID, c.Previous, c.Current)
		}
		if err != nil {
			logger.Fatal("re-evaluation failed", zap.Error(err))
		}
		return
	}

	if err := sched.Register(); err != nil {
		logger.Fatal("registering the watch task", zap.Error(err))
	}
	sched.Start()

	<-ctx.Done()
	logger.Info("stopping the scheduler")
	sched.Stop()
}
