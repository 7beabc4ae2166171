// Command edge-controller runs the per-service pod-graph manager: it
// reconciles EdgeService/TritonService custom resources, watches each
// service's labelled pods, maintains a directed neighbor graph per
// policy, and publishes endpoint annotations to the affected pods.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/gulis1/edge-inference-fabric/internal/config"
	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/controller/api"
	"github.com/gulis1/edge-inference-fabric/internal/controller/reconcile"
	"github.com/gulis1/edge-inference-fabric/internal/controller/watch"
	"github.com/gulis1/edge-inference-fabric/internal/exporter"
	"github.com/gulis1/edge-inference-fabric/internal/kube"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("edge-controller exiting", zap.Error(err))
	}
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("building logger: %v", err))
	}
	return logger
}

func run(logger *zap.Logger) error {
	configPath := os.Getenv(constants.EnvControllerConfigPath)
	if configPath == "" {
		configPath = "./edge-controller.yaml"
	}
	cfg, err := config.LoadControllerConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	clientset, err := kube.Clientset()
	if err != nil {
		return fmt.Errorf("building kube clientset: %w", err)
	}
	dynamicClient, err := kube.DynamicClient()
	if err != nil {
		return fmt.Errorf("building kube dynamic client: %w", err)
	}

	metr := metrics.NewController()
	manager := watch.New(clientset, cfg.PolicyName, cfg.GraphFilePath, logger.Named("watch"), metr)
	reconciler := reconcile.New(dynamicClient, cfg.CRResource, manager, logger.Named("reconcile"), metr)
	graphAPI := api.New(manager, logger.Named("api"))
	manager.OnGraphChanged(graphAPI.NotifyGraphChanged)
	exp := exporter.New(cfg.MetricsAddr, logger.Named("exporter"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return graphAPI.Run(gctx, cfg.GraphHTTPAddr) })
	g.Go(func() error { return exp.Run(gctx) })

	exp.SetReady()
	graphAPI.SetReady(true)
	logger.Info("edge-controller started", zap.String("policy", cfg.PolicyName), zap.String("cr_resource", cfg.CRResource))

	return g.Wait()
}
