package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/api"
	"github.com/spigell/career-minimax/internal/decision"
	"github.com/spigell/career-minimax/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the decision engine over HTTP",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "address to listen on (default 127.0.0.1:8080)")
	serveCmd.Flags().Bool("watch", false, "run the re-evaluation scheduler in the same process")

	viper.BindPFlag("api.listen", serveCmd.Flags().Lookup("listen"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the career-minimax server", zap.String("version", version))

	session, err := decision.New(config.Engine, logger)
	if err != nil {
		logger.Fatal("building the decision session", zap.Error(err))
	}

	st, err := newStore(config.Store, logger)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}
	defer st.Close()

	gen, providerName, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("building the ai generator", zap.Error(err))
	}

	secret, err := loadJWTSecret(config.API)
	if err != nil {
		logger.Fatal("loading the jwt secret", zap.Error(err), zap.String("hint", "set CAREER_MINIMAX_JWT_SECRET_FILE or api.jwt-secret-file"))
	}
	if secret == "" {
		logger.Warn("api authentication is disabled", zap.String("hint", "set api.jwt-secret-file to require bearer tokens"))
	}

	screen := newScreener(config, logger)

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		chain, err := newProvider(config, nil, logger)
		if err != nil {
			logger.Fatal("building providers", zap.Error(err))
		}
		sched := scheduler.New(ctx, config.Watch, scheduler.Deps{
			Provider: chain,
			Decider:  session,
			Store:    st,
			Screen:   screen,
			Logger:   logger,
		})
		if err := sched.Register(); err != nil {
			logger.Fatal("registering the watch task", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	server := api.NewServer(config.API.Config, api.Deps{
		Decider:   session,
		Store:     st,
		Screen:    screen,
		Narrator:  newNarrator(gen, providerName, config.AI, logger),
		JWTSecret: secret,
		Logger:    logger,
	})

	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return
	}
	logger.Info("server stopped")
}
