package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	apptraffic "tunnelctl/internal/application/traffic"
	"tunnelctl/internal/infrastructure/config"
	"tunnelctl/internal/infrastructure/kv"
	"tunnelctl/internal/infrastructure/master"
	httpapi "tunnelctl/internal/interfaces/http"
	"tunnelctl/internal/shared/logger"
)

// shutdownGrace is how long the HTTP server waits for in-flight requests
// to finish before it is forced closed on shutdown.
const shutdownGrace = 10 * time.Second

func newServeCommand() *cobra.Command {
	var env string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the traffic controller's HTTP server and reaper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), env)
		},
	}

	cmd.Flags().StringVar(&env, "env", "", "environment profile (overrides http.mode when set)")
	return cmd
}

func runServe(ctx context.Context, env string) error {
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return err
	}
	log := logger.NewLogger()

	idx, err := buildIndex(cfg.Cache.URL)
	if err != nil {
		return err
	}

	masterUser := cfg.Master.Username
	tokens := master.NewKVTokenStore(idx, masterUser)
	masterClient := master.New(cfg.Master.APIBase, cfg.Master.Username, cfg.Master.Password, tokens, log.Named("master"))

	manager := apptraffic.NewManager(idx, masterClient, masterUser, cfg.Servers, log.Named("traffic"))

	cleanupInterval := time.Duration(cfg.App.CleanupInterval) * time.Second
	if cleanupInterval <= 0 {
		cleanupInterval = 60 * time.Second
	}
	reaper := apptraffic.NewReaper(manager, idx, cleanupInterval, log.Named("reaper"))

	router := httpapi.NewRouter(manager, idx, cfg.App.AuthToken, log.Named("http"))

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go reaper.Run(runCtx)

	server := &http.Server{
		Addr:    cfg.HTTP.GetAddr(),
		Handler: router.Engine(),
	}

	go func() {
		<-runCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("http server shutdown error", "error", err)
		}
	}()

	log.Infow("traffic controller listening", "addr", cfg.HTTP.GetAddr())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildIndex selects the Redis-backed Index when cacheURL is set, and the
// in-memory Index otherwise.
func buildIndex(cacheURL string) (kv.Index, error) {
	if cacheURL == "" {
		return kv.NewMemoryIndex(), nil
	}

	opts, err := redis.ParseURL(cacheURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	idx := kv.NewRedisIndex(client)
	if err := idx.Ping(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}
