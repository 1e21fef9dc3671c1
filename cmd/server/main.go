// Package main is the scholargraph server entry point: it wires the paced
// fetchers, provider adapters, aggregator, ingestion engine and citation
// engine behind the configured transports.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/scholartech/scholargraph/internal/cite"
	"github.com/scholartech/scholargraph/internal/config"
	"github.com/scholartech/scholargraph/internal/fetch"
	"github.com/scholartech/scholargraph/internal/graph"
	"github.com/scholartech/scholargraph/internal/ingest"
	"github.com/scholartech/scholargraph/internal/parser"
	"github.com/scholartech/scholargraph/internal/providers"
	"github.com/scholartech/scholargraph/internal/server"
	"github.com/scholartech/scholargraph/internal/tools"
	"github.com/scholartech/scholargraph/pkg/logging"
)

func main() {
	cfg := config.FromEnv()

	if err := logging.SetupLogger(&logging.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to configure logging")
	}

	switch cfg.Transport {
	case config.TransportLine, config.TransportHTTP, config.TransportBoth:
	default:
		log.Fatal().Str("transport", string(cfg.Transport)).Msg("Unknown transport")
	}

	// One paced client for the JSON catalogs; a separate, harder-throttled
	// one for the Scholar scraper.
	catalogClient := fetch.New(fetch.Options{
		Timeout:    cfg.RequestTimeout,
		Retries:    cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
		MinSpacing: cfg.RequestDelay,
	})
	scraperClient := fetch.New(fetch.Options{
		Timeout:    cfg.RequestTimeout,
		Retries:    cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
		MinSpacing: cfg.RequestDelay,
		Transport: fetch.ThrottledTransport{
			Limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		},
	})

	openAlex := providers.NewOpenAlex(cfg.OpenAlexBaseURL, catalogClient)
	crossref := providers.NewCrossref(cfg.CrossrefBaseURL, catalogClient)
	semanticScholar := providers.NewSemanticScholar(cfg.SemanticScholarBaseURL, cfg.SemanticScholarAPIKey, catalogClient)
	googleScholar := providers.NewGoogleScholar(cfg.ScholarBaseURL, scraperClient)

	aggregator := graph.New(
		[]providers.SearchProvider{openAlex, crossref, semanticScholar, googleScholar},
		openAlex,
		graph.Options{
			ProviderMultiplier:  cfg.GraphProviderMultiplier,
			FuzzyTitleThreshold: cfg.GraphFuzzyTitleThreshold,
			CacheTTL:            cfg.GraphCacheTTL,
			MaxCacheEntries:     cfg.GraphMaxCacheEntries,
		})

	var structured parser.Parser
	if cfg.StructuredParserURL != "" {
		structured = parser.NewStructuredParser(cfg.StructuredParserURL, cfg.RequestTimeout)
	}
	chain := parser.NewChain(structured, parser.NewSimpleParser())

	engine := ingest.NewEngine(aggregator, catalogClient, chain, ingest.Options{
		WorkerCount:     cfg.IngestWorkers,
		AllowRemotePDFs: cfg.AllowRemotePDFs,
		AllowLocalPDFs:  cfg.AllowLocalPDFs,
	})
	defer engine.Shutdown()

	dispatcher := tools.NewDispatcher(tools.Deps{
		Graph:   aggregator,
		Scholar: googleScholar,
		Ingest:  engine,
		Cite:    cite.NewEngine(aggregator),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)

	var httpServer *server.HTTPServer
	if cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportBoth {
		httpServer = server.NewHTTPServer(cfg, dispatcher, aggregator, engine)
		go func() { errCh <- httpServer.Listen() }()
	}
	if cfg.Transport == config.TransportLine || cfg.Transport == config.TransportBoth {
		line := server.NewLineServer(dispatcher, os.Stdin, os.Stdout)
		go func() { errCh <- line.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Transport terminated")
		}
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown failed")
		}
	}
	log.Info().Msg("Server stopped")
}
