// Command edge-proxy runs the per-pod inference routing proxy: a TCP
// listener that accepts inference requests, decides whether to serve
// them locally or forward them to a neighbor pod, and keeps its
// neighbor table current from the pod's own annotations.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/gulis1/edge-inference-fabric/internal/config"
	"github.com/gulis1/edge-inference-fabric/internal/constants"
	"github.com/gulis1/edge-inference-fabric/internal/exporter"
	"github.com/gulis1/edge-inference-fabric/internal/kube"
	"github.com/gulis1/edge-inference-fabric/internal/localexec"
	"github.com/gulis1/edge-inference-fabric/internal/metrics"
	"github.com/gulis1/edge-inference-fabric/internal/model"
	"github.com/gulis1/edge-inference-fabric/internal/proxy"
	"github.com/gulis1/edge-inference-fabric/internal/proxy/policy"
	"github.com/gulis1/edge-inference-fabric/internal/proxy/promclient"
	"github.com/gulis1/edge-inference-fabric/internal/proxy/watch"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("edge-proxy exiting", zap.Error(err))
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
	configPath := os.Getenv(constants.EnvProxyConfigPath)
	if configPath == "" {
		configPath = "./edge-proxy.yaml"
	}
	cfg, err := config.LoadProxyConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	selfUUID, err := uuid.Parse(cfg.PodUUID)
	if err != nil {
		return fmt.Errorf("parsing POD_UUID %q: %w", cfg.PodUUID, err)
	}

	localGPUs, rawHWInfo := loadLocalHWInfo(cfg.HWInfoPath, logger)

	models, err := model.LoadCatalog(cfg.ModelCatalogPath, localGPUs)
	if err != nil {
		return fmt.Errorf("loading model catalog: %w", err)
	}
	logger.Info("loaded model catalog", zap.Int("compatible_models", len(models)))

	pol, err := policy.New(cfg.PolicyName)
	if err != nil {
		return fmt.Errorf("building policy: %w", err)
	}

	clientset, err := kube.Clientset()
	if err != nil {
		return fmt.Errorf("building kube clientset: %w", err)
	}

	metr := metrics.NewProxy()
	bridge := localexec.New(cfg.LocalBackendAddr)

	mainLoop := make(chan proxy.Message, constants.ProxyMainLoopBuffer)
	annotWatcher := watch.New(clientset, cfg.PodNamespace, cfg.PodName, logger.Named("annotations"), func(raw []byte) {
		mainLoop <- proxy.EndpointsChanged{Raw: raw}
	})

	requestTimeout := time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	metricsInterval := time.Duration(cfg.MetricsIntervalS) * time.Second

	server := proxy.New(selfUUID, requestTimeout, pol, models, bridge, logger.Named("server"), metr, annotWatcher)

	exp := exporter.New(cfg.MetricsAddr, logger.Named("exporter"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if rawHWInfo != nil {
		if err := annotWatcher.AddAnnot(ctx, map[string]string{constants.AnnotHWInfo: string(rawHWInfo)}); err != nil {
			logger.Warn("publishing hw_info annotation failed", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return annotWatcher.Run(gctx) })
	g.Go(func() error { return server.Run(gctx, cfg.ListenAddr) })
	g.Go(func() error { return exp.Run(gctx) })
	g.Go(func() error { return runMainLoop(gctx, mainLoop, server, annotWatcher) })

	if cfg.PrometheusAddr != "" {
		promCli, err := promclient.New(cfg.PrometheusAddr, cfg.Queries, metricsInterval, logger.Named("promclient"), func(key, value string) {
			select {
			case mainLoop <- proxy.AnnotationUpdate{Key: key, Value: value}:
			case <-gctx.Done():
			}
		})
		if err != nil {
			return fmt.Errorf("building prometheus client: %w", err)
		}
		g.Go(func() error { return promCli.Run(gctx) })
	} else {
		logger.Warn("no prometheus address configured, metrics publishing disabled")
	}

	exp.SetReady()
	logger.Info("edge-proxy started", zap.String("self", selfUUID.String()), zap.String("policy", pol.Name()))

	return g.Wait()
}

func runMainLoop(ctx context.Context, in <-chan proxy.Message, server *proxy.Server, annotWatcher *watch.AnnotationsWatcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-in:
			switch v := msg.(type) {
			case proxy.EndpointsChanged:
				if err := server.UpdateEndpoints(ctx, v.Raw); err != nil {
					continue
				}
			case proxy.AnnotationUpdate:
				_ = annotWatcher.AddAnnot(ctx, map[string]string{v.Key: v.Value})
			}
		}
	}
}

func loadLocalHWInfo(path string, logger *zap.Logger) ([]string, json.RawMessage) {
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("no local hw_info blob found, assuming CPU-only", zap.String("path", path), zap.Error(err))
		return nil, nil
	}

	var parsed struct {
		GPUs []struct {
			Name string `json:"name"`
		} `json:"gpus"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		logger.Warn("malformed local hw_info blob, assuming CPU-only", zap.String("path", path), zap.Error(err))
		return nil, raw
	}

	names := make([]string, 0, len(parsed.GPUs))
	for _, g := range parsed.GPUs {
		names = append(names, g.Name)
	}
	return names, raw
}
