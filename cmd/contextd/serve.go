package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kubilitics/kubilitics-context/internal/config"
	"github.com/kubilitics/kubilitics-context/internal/engine"
	"github.com/kubilitics/kubilitics-context/internal/logging"
	"github.com/kubilitics/kubilitics-context/internal/server"
	"github.com/kubilitics/kubilitics-context/internal/watch"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the cluster and serve context over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	mgr, cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(loggingConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closer.Close()
	defer logger.Sync()

	eng, err := engine.New(engineConfig(cfg),
		engine.WithLogger(logger.Named("engine")),
		engine.WithReconcileDelay(cfg.Engine.ReconcileDelay),
		engine.WithSummaryCacheSize(cfg.Engine.SummaryCacheSize),
	)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	cluster, err := watch.Connect(cfg.Kube.Kubeconfig, cfg.Kube.Context)
	if err != nil {
		return err
	}
	logger.Info("Connected to cluster", zap.String("context", cluster.Context))

	src, err := watch.New(cluster.Clientset, eng,
		watch.WithKinds(cfg.Kube.Kinds...),
		watch.WithNamespace(cfg.Kube.Namespace),
		watch.WithLogger(logger.Named("watch")),
	)
	if err != nil {
		return err
	}

	switchCluster := func(_ context.Context, contextName string) (string, error) {
		next, err := watch.Connect(cfg.Kube.Kubeconfig, contextName)
		if err != nil {
			return "", err
		}
		src.SwitchClient(next.Clientset, eng.OnClusterSwitch)
		return next.Context, nil
	}

	srv, err := server.New(server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, eng, server.WithLogger(logger.Named("server")), server.WithSwitchFunc(switchCluster))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return src.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		applyReloads(ctx, mgr, eng, logger)
		return nil
	})
	return g.Wait()
}

// applyReloads pushes engine settings from every valid config reload.
func applyReloads(ctx context.Context, mgr config.ConfigManager, eng *engine.Engine, logger *zap.Logger) {
	updates := mgr.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			applied := eng.UpdateConfig(enginePatch(cfg))
			logger.Info("Applied configuration reload", zap.Int("token_budget", applied.TokenBudget))
		}
	}
}
