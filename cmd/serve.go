package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/api"
	"github.com/sells-group/juror-match/internal/engine"
	"github.com/sells-group/juror-match/internal/metrics"
	"github.com/sells-group/juror-match/internal/resilience"
	"github.com/sells-group/juror-match/internal/store"
)

var (
	servePort           int
	serveReloadInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEngine(ctx, true, engine.WithMetrics(metrics.New()))
		if err != nil {
			return err
		}
		defer env.Close()

		if serveReloadInterval > 0 {
			go pollWeights(ctx, env.Engine, env.Store, serveReloadInterval)
		}

		srvAPI := api.NewServer(env.Engine, cfg.Server, api.WithStore(env.Store))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("weights_version", env.Engine.Weights().Version()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveReloadInterval, "reload-interval", 0, "poll the store for newer weight tables at this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}

// pollWeights publishes the newest stored weight table whenever its id
// changes, until ctx is done.
func pollWeights(ctx context.Context, eng *engine.Engine, st store.Store, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("weights poll")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := resilience.Do(ctx, retry, func(ctx context.Context) error {
				return reloadIfNewer(ctx, eng, st)
			})
			if err != nil {
				zap.L().Warn("weights poll failed", zap.Error(err))
			}
		}
	}
}

func reloadIfNewer(ctx context.Context, eng *engine.Engine, st store.Store) error {
	latest, err := st.LatestWeights(ctx)
	if eris.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if latest.ID() == eng.Weights().ID() {
		return nil
	}
	return eng.ReloadWeights(latest)
}
