package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geodatahub/geopublisher/core/infra/attempts"
	"github.com/geodatahub/geopublisher/core/infra/buildinfo"
	"github.com/geodatahub/geopublisher/core/infra/catalog"
	"github.com/geodatahub/geopublisher/core/infra/config"
	"github.com/geodatahub/geopublisher/core/infra/geoserver"
	infraMetrics "github.com/geodatahub/geopublisher/core/infra/metrics"
	"github.com/geodatahub/geopublisher/core/infra/objstore"
	"github.com/geodatahub/geopublisher/core/publisher"
)

func main() {
	buildinfo.Log("geopublisher")

	cfg := config.Load()

	policy, err := config.LoadPolicy(cfg.PolicyConfigPath)
	if err != nil {
		log.Printf("using default retry policy (could not load %s): %v", cfg.PolicyConfigPath, err)
	}

	metrics := infraMetrics.NewProm("geopublisher")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	store, err := objstore.NewMinioStore(objstore.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		Secure:    cfg.MinioSecure,
	})
	if err != nil {
		log.Fatalf("failed to connect to object storage: %v", err)
	}

	geoClient := geoserver.NewClient(cfg.GeoServerURL, cfg.GeoServerUser, cfg.GeoServerPassword)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := geoClient.Ping(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("failed to reach GeoServer at %s: %v", cfg.GeoServerURL, err)
	}
	pingCancel()

	var attemptStore attempts.Store
	if cfg.AttemptsRedisURL != "" {
		redisStore, err := attempts.NewRedisStore(cfg.AttemptsRedisURL)
		if err != nil {
			log.Fatalf("failed to connect to Redis for attempt tracking: %v", err)
		}
		defer redisStore.Close()
		attemptStore = redisStore
	} else {
		attemptStore = attempts.NewMemoryStore()
	}

	var cat publisher.Catalog
	if cfg.IdraURL != "" {
		idraClient, err := catalog.NewClient(catalog.Options{
			BaseURL:                  cfg.IdraURL,
			GeoServerPublicURL:       cfg.GeoServerPublicURL,
			MinioProxyURL:            cfg.MinioProxyURL,
			Bucket:                   cfg.MinioBucket,
			DatasetTemplatePath:      cfg.DatasetTemplatePath,
			DistributionTemplatePath: cfg.DistributionTemplatePath,
		})
		if err != nil {
			log.Fatalf("failed to initialize catalog client: %v", err)
		}
		cat = idraClient
		log.Printf("catalog registration enabled: %s", cfg.IdraURL)
	}

	parser := publisher.NewRequestParser(cfg.TargetDir)
	geoPublisher := publisher.NewGeoPublisher(geoClient, cfg.TargetDir, cfg.GeoServerDataRoot)

	orchestrator := publisher.NewOrchestrator(publisher.Options{
		Store:     store,
		Parser:    parser,
		Publisher: geoPublisher,
		Catalog:   cat,
		Attempts:  attemptStore,
		Metrics:   metrics,
		Policy:    policy,
		Interval:  time.Duration(cfg.PublishIntervalSeconds) * time.Second,
	})

	log.Printf("watching bucket %s every %ds (target dir %s)",
		cfg.MinioBucket, cfg.PublishIntervalSeconds, cfg.TargetDir)
	orchestrator.Run(ctx)
	log.Println("geopublisher stopped")
}
