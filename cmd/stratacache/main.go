package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"stratacache/internal/cache"
	"stratacache/internal/cluster"
	"stratacache/internal/logging"
	"stratacache/internal/replication"
	"stratacache/internal/warmup"
	"stratacache/pkg/config"
)

var (
	configPath = flag.String("config", "configs/stratacache.yaml", "Path to configuration file")
	nodeID     = flag.String("node-id", "", "Unique node identifier")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Early error before logging is initialized
		fmt.Fprintf(os.Stderr, "FATAL: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *nodeID != "" {
		cfg.Node.ID = *nodeID
	}

	logger, err := logging.InitializeFromConfig(cfg.Node.ID, logging.LogConfig{
		Level:         cfg.Logging.Level,
		EnableConsole: cfg.Logging.EnableConsole,
		EnableFile:    cfg.Logging.EnableFile,
		LogFile:       cfg.Logging.LogFile,
		BufferSize:    cfg.Logging.BufferSize,
		LogDir:        cfg.Logging.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx := logging.WithCorrelationID(context.Background(), logging.NewCorrelationID())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "Cache node starting", map[string]interface{}{
		"node_id":     cfg.Node.ID,
		"config_file": *configPath,
	})

	// Topology: registry and ring exist even single-node so the stats
	// surface is uniform; gossip keeps them current when enabled.
	registry := cluster.NewRegistry()
	ring := cluster.NewRing(0)

	var gossip *cluster.Gossip
	if cfg.Cluster.Enabled {
		gossip, err = cluster.NewGossip(cluster.GossipConfig{
			NodeID:           cfg.Node.ID,
			ClusterName:      cfg.Cluster.ClusterName,
			BindAddress:      cfg.Cluster.BindAddress,
			BindPort:         cfg.Cluster.BindPort,
			AdvertiseAddress: cfg.Cluster.AdvertiseAddress,
			SeedNodes:        cfg.Cluster.Seeds,
		}, registry, ring)
		if err != nil {
			logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "Failed to configure gossip", err)
			os.Exit(1)
		}
		if err := gossip.Start(ctx); err != nil {
			logging.Fatal(ctx, logging.ComponentMain, logging.ActionStart, "Failed to start gossip", err)
			os.Exit(1)
		}
		defer gossip.Stop()
	}

	var transport replication.Transport = replication.Noop{}
	if cfg.Replication.Transport == "nats" {
		natsTransport, err := replication.NewNATSTransport(cfg.Replication.NATSURL, cfg.Replication.SubjectPrefix)
		if err != nil {
			// Replication is best effort; run single-node rather than die
			logging.Error(ctx, logging.ComponentReplication, logging.ActionStart, "NATS unavailable, running without replication", err)
		} else {
			transport = natsTransport
		}
	}

	promRegistry := prometheus.NewRegistry()
	engineOpts := []cache.Option{
		cache.WithCompressor(cache.NewCompressor(cfg.Engine.Compression)),
		cache.WithStampedeMode(cache.StampedeMode(cfg.Engine.StampedeMode)),
		cache.WithTransport(transport),
		cache.WithTopology(registry, ring),
		cache.WithMetrics(cache.NewMetrics(promRegistry)),
	}
	for _, ns := range cfg.Namespaces {
		engineOpts = append(engineOpts, cache.WithNamespace(ns.Name, ns.Policy()))
	}
	engine := cache.New(engineOpts...)
	defer engine.Close()

	scheduler := cache.NewScheduler(engine, registry, cache.DefaultSchedulerConfig())
	scheduler.Start(ctx)
	defer scheduler.Stop()

	// Monitor node lifecycle transitions
	go func() {
		for event := range registry.Subscribe() {
			logging.Info(ctx, logging.ComponentCluster, string(event.Type), "Node lifecycle event", map[string]interface{}{
				"node_id": event.Node.ID,
				"status":  string(event.Node.Status),
			})
		}
	}()

	runWarmup(ctx, cfg, engine)

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg, engine, promRegistry)
	}

	logging.Info(ctx, logging.ComponentMain, logging.ActionStart, "Cache node ready", map[string]interface{}{
		"namespaces": engine.Namespaces(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logging.Info(ctx, logging.ComponentMain, logging.ActionStop, "Shutting down", map[string]interface{}{
		"signal": sig.String(),
	})
}

// runWarmup builds the configured warmup sources and pre-populates warm
// namespaces before the node reports ready.
func runWarmup(ctx context.Context, cfg *config.Config, engine *cache.Engine) {
	loader := warmup.NewLoader(engine, cfg.Warmup.MaxConcurrent)
	for _, src := range cfg.Warmup.Sources {
		ttl := src.TTL.Std()
		switch src.Type {
		case "file":
			loader.AddSource(src.Namespace, &warmup.FileSource{Path: src.Locator, TTL: ttl})
		case "http":
			loader.AddSource(src.Namespace, &warmup.HTTPSource{URL: src.Locator, TTL: ttl})
		case "redis":
			client := redis.NewClient(&redis.Options{Addr: src.RedisAddr})
			loader.AddSource(src.Namespace, &warmup.RedisSource{Client: client, Pattern: src.Locator, TTL: ttl})
		}
	}
	if err := loader.Run(ctx); err != nil {
		logging.Warn(ctx, logging.ComponentWarmup, logging.ActionLoad, "Warmup finished with errors", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// serveMetrics exposes Prometheus metrics, a JSON stats snapshot and a
// health probe.
func serveMetrics(ctx context.Context, cfg *config.Config, engine *cache.Engine, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.AllStats())
	})

	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Nodes())
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddr, cfg.Metrics.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           logging.HTTPMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logging.Info(ctx, logging.ComponentHTTP, logging.ActionStart, "Metrics listener started", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error(ctx, logging.ComponentHTTP, logging.ActionStop, "Metrics listener failed", err)
	}
}
