// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianInsight/cmd/insight/config"
	"github.com/AleutianAI/AleutianInsight/pkg/logging"
	"github.com/AleutianAI/AleutianInsight/services/insight"
	"github.com/AleutianAI/AleutianInsight/services/insight/cache"
	"github.com/AleutianAI/AleutianInsight/services/insight/middleware"
	"github.com/AleutianAI/AleutianInsight/services/insight/store"
	"github.com/AleutianAI/AleutianInsight/services/insight/translator"
)

func init() {
	serveCmd.Flags().StringVar(&datasetsPath, "datasets", "", "dataset schema YAML served to the local user")
}

// runServeCommand starts the insight HTTP server and blocks until SIGINT
// or SIGTERM, then shuts down gracefully.
func runServeCommand(cmd *cobra.Command, args []string) {
	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "insight",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	logger.SetAsDefault()

	datasets, err := loadDatasetStore(datasetsPath, localUser)
	if err != nil {
		logger.Error("Failed to load dataset schemas", "error", err)
		os.Exit(1)
	}

	results, err := openResultCache(cfg.Cache, logger)
	if err != nil {
		logger.Error("Failed to open result cache", "error", err)
		os.Exit(1)
	}
	defer results.Close()

	svcCfg := insight.DefaultServiceConfig()
	if cfg.Execution.TimeoutSeconds > 0 {
		svcCfg.ExecuteTimeout = time.Duration(cfg.Execution.TimeoutSeconds) * time.Second
	}
	if cfg.Execution.CacheTTLSeconds > 0 {
		svcCfg.CacheTTL = time.Duration(cfg.Execution.CacheTTLSeconds) * time.Second
	}
	if cfg.Execution.HistoryCapacity > 0 {
		svcCfg.HistoryCapacity = cfg.Execution.HistoryCapacity
	}

	svc := insight.NewService(svcCfg, datasets, store.NewMemoryContextRepository(), results).
		WithLogger(logger.Slog())

	if cfg.Translator.Enabled {
		t, err := translator.NewOpenAITranslator()
		if err != nil {
			logger.Warn("Translator disabled", "error", err)
		} else {
			svc.WithTranslator(t)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(middleware.NopAuthProvider{}))
	insight.RegisterRoutes(v1, insight.NewHandlers(svc))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Insight server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// openResultCache opens the badger-backed result cache per configuration.
func openResultCache(cfg config.CacheConfig, logger *logging.Logger) (*cache.ResultCache, error) {
	if cfg.InMemory {
		return cache.Open(cache.Config{InMemory: true, Logger: logger.Slog()})
	}
	path := cfg.Path
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return cache.Open(cache.Config{
		Path:       path,
		SyncWrites: cfg.SyncWrites,
		Logger:     logger.Slog(),
	})
}
