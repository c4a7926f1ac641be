// alia-cli - Terminal client for the ALIA legal assistant.
//
// Copyright (c) 2025 ALIA Legal
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/alialegal/alia-cli/internal/api"
	"github.com/alialegal/alia-cli/internal/assistant"
	"github.com/alialegal/alia-cli/internal/cli"
	"github.com/alialegal/alia-cli/internal/config"
	"github.com/alialegal/alia-cli/internal/conversation"
	"github.com/alialegal/alia-cli/internal/history"
	"github.com/alialegal/alia-cli/internal/llm"
	"github.com/alialegal/alia-cli/internal/logging"
	"github.com/alialegal/alia-cli/internal/source"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("alia-cli %s (%s, %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "alia-cli:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.File, cfg.Log.Debug)
	defer log.Sync()
	log.Info("starting", zap.String("version", Version), zap.String("config", configPath))

	// REST backend and streaming endpoint.
	backend := api.NewClient(cfg.Backend.APIURL, log).WithToken(cfg.LLM.AccessToken)
	endpoint := llm.NewEndpoint(cfg.LLM.URL, cfg.LLM.AccessToken, generationParams(cfg))
	streamer := llm.NewClient(endpoint, log)

	// Caches over the backend.
	conversations := conversation.NewStore(backend, cfg.Backend.PageLimit, log)
	sources := source.NewResolver(backend, log)

	// Local transcript mirror.
	store, err := history.Open(cfg.Storage.HistoryPath, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := assistant.NewService(backend, streamer, conversations, sources, store, log)
	if err := svc.Restore(); err != nil {
		return err
	}

	// Generation parameters follow config file edits; everything else needs a
	// restart.
	watcher, err := config.Watch(configPath, func(next *config.Config) {
		endpoint.SetParams(generationParams(next))
	}, log)
	if err != nil {
		log.Warn("config watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	session := cli.NewSession(svc, conversations, sources, filepath.Dir(cfg.Storage.HistoryPath), log)
	return session.Run(context.Background())
}

// generationParams maps config onto the endpoint's query parameters.
func generationParams(cfg *config.Config) llm.GenerationParams {
	return llm.GenerationParams{
		Model:               cfg.LLM.Model,
		Temperature:         cfg.LLM.Temperature,
		SimilarityThreshold: cfg.LLM.SimilarityThreshold,
		TopK:                cfg.LLM.TopK,
	}
}
