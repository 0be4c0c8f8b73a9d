// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cirkelline starts the orchestration core's HTTP surface.
//
// Usage:
//
//	cirkelline serve
//	cirkelline version
//
// Every setting is read from the environment (spec.md §6); there is no
// config file flag, since RecognizedEnvKeys is the whole configuration
// surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/cirkelline/core/pkg/auth"
	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/databases"
	"github.com/cirkelline/core/pkg/embedders"
	"github.com/cirkelline/core/pkg/llms"
	"github.com/cirkelline/core/pkg/logger"
	"github.com/cirkelline/core/pkg/memory"
	"github.com/cirkelline/core/pkg/observability"
	"github.com/cirkelline/core/pkg/rag"
	"github.com/cirkelline/core/pkg/ratelimit"
	"github.com/cirkelline/core/pkg/runner"
	"github.com/cirkelline/core/pkg/server"
	"github.com/cirkelline/core/pkg/session"
	"github.com/cirkelline/core/pkg/specialist"
	"github.com/cirkelline/core/pkg/store"
	"github.com/cirkelline/core/pkg/toolbridge"
)

// Exit codes (spec.md §6): 0 clean shutdown, 1 misconfiguration, 2
// database unreachable at start-up, 3 port in use, 130 interrupt.
const (
	exitOK            = 0
	exitMisconfigured = 1
	exitDatabaseDown  = 2
	exitPortInUse     = 3
	exitInterrupted   = 130
)

// CLI is the kong root command set.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" default:"1" help:"Start the HTTP server."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := server.CoreVersion
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	fmt.Printf("cirkelline %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server. It carries no flags of its own: every
// setting lives in the environment (spec.md §6's closed RecognizedEnvKeys
// surface), so there is nothing left for a flag to override.
type ServeCmd struct{}

func (c *ServeCmd) Run(cli *CLI) error {
	code := runServe()
	os.Exit(code)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("cirkelline"),
		kong.Description("Cirkelline orchestration core"),
		kong.UsageOnError(),
	)

	lvl, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(exitMisconfigured)
	}
	logger.Init(lvl, os.Stderr, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(exitMisconfigured)
	}
}

// runServe builds every dependency and blocks serving HTTP until the
// process receives an interrupt, returning the exit code main() should
// use.
func runServe() int {
	cfg, err := config.LoadFromEnviron()
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	dbPool := config.NewDBPool()
	defer dbPool.Close()

	gateway, err := store.Open(dbPool, &cfg.Database, cfg.RequestTimeout)
	if err != nil {
		slog.Error("database unreachable at start-up", "error", err)
		return exitDatabaseDown
	}
	defer gateway.Close()
	if err := gateway.DB().Ping(); err != nil {
		slog.Error("database unreachable at start-up", "error", err)
		return exitDatabaseDown
	}

	// Metrics are always on; tracing stays off until a collector endpoint
	// is itself one of config.RecognizedEnvKeys (it isn't today, so there
	// is nothing in the environment to turn it on from).
	obsManager, err := observability.NewManager(context.Background(), &observability.Config{
		Metrics: observability.MetricsConfig{Enabled: true},
	})
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	defer obsManager.Shutdown(context.Background())

	sessions, err := session.New(gateway.DB(), gateway.Dialect())
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	memories, err := memory.NewServiceFromConfig(gateway.DB(), gateway.Dialect(), cfg, sessions, "", "")
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	documents, err := rag.NewDocumentStore(gateway.DB(), gateway.Dialect())
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	lexical, err := rag.NewLexicalIndex(gateway.DB(), gateway.Dialect())
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	embedderRegistry := embedders.NewEmbedderRegistry()
	embedder, err := embedderRegistry.CreateEmbedderFromConfig("knowledge-embedder", &cfg.EmbeddingBackend)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	defer embedder.Close()

	databaseRegistry := databases.NewDatabaseRegistry()
	vectors, err := databaseRegistry.CreateDatabaseFromConfig("knowledge-vectors", &cfg.VectorStore)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	defer vectors.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	// "knowledge_index" must match pkg/rag's own unexported collection name.
	if err := vectors.CreateCollection(startupCtx, "knowledge_index", uint64(embedder.GetDimension())); err != nil {
		cancelStartup()
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	cancelStartup()

	indexer, err := rag.NewIndexer(documents, lexical, rag.ChunkerConfig{Strategy: rag.ChunkerOverlapping}, embedder, vectors)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	searcher := rag.NewSearcher(embedder, vectors, lexical, cfg.RetrievalExpansionFactor)

	llmRegistry := llms.NewLLMRegistry()
	primary, err := llmRegistry.CreateLLMFromConfig("primary", &cfg.PrimaryModelBackend)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	defer primary.Close()

	var fallback llms.LLMProvider
	if cfg.FallbackModelBackend != nil {
		fallback, err = llmRegistry.CreateLLMFromConfig("fallback", cfg.FallbackModelBackend)
		if err != nil {
			slog.Error("misconfiguration", "error", err)
			return exitMisconfigured
		}
		defer fallback.Close()
	}

	specialists, err := buildCatalogue(primary)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	router := specialist.NewRouter(specialists, primary)

	connections, err := store.NewConnectionStore(gateway)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	bridge := toolbridge.New(connections.Lookup, cfg.RequestTimeout)

	orchestrator, err := runner.New(runner.Config{
		Sessions:    sessions,
		Memories:    memories,
		Searcher:    searcher,
		Specialists: specialists,
		Router:      router,
		Bridge:      bridge,
		Rewriter:    primary,
		RetrievalK:  cfg.RetrievalK,
	})
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	users, err := auth.NewSQLUserStore(gateway.DB(), gateway.Dialect())
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}
	resolver := auth.NewResolver(cfg.JWTSecret, users, cfg.Server.Auth.AdminCacheTTL)

	rateLimiter, err := ratelimit.NewRateLimiterFromConfig(cfg, dbPool)
	if err != nil {
		slog.Error("misconfiguration", "error", err)
		return exitMisconfigured
	}

	httpServer := server.New(server.Deps{
		Config:         &cfg.Server,
		Resolver:       resolver,
		Orchestrator:   orchestrator,
		Sessions:       sessions,
		Memories:       memories,
		Documents:      documents,
		Indexer:        indexer,
		Specialists:    specialists,
		RateLimiter:    rateLimiter,
		Observability:  obsManager,
		RequestTimeout: cfg.RequestTimeout,
	})

	listener, err := net.Listen("tcp", cfg.Server.Address())
	if err != nil {
		slog.Error("port in use", "address", cfg.Server.Address(), "error", err)
		return exitPortInUse
	}

	srv := &http.Server{Handler: httpServer}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("cirkelline listening", "address", cfg.Server.Address())
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
		return exitInterrupted
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "error", err)
			return exitMisconfigured
		}
		return exitOK
	}
}

// buildCatalogue registers the built-in specialist set (spec.md §1's
// "audio, video, image, document" workers and "web research, legal
// research" teams). No declarative specialist-manifest format exists
// anywhere in the codebase (the concern was never given an owning
// package), so the catalogue is registered directly in Go here, the way
// the teacher's own zero-config mode builds its agent set in code rather
// than from a file when none is supplied.
func buildCatalogue(model llms.LLMProvider) (*specialist.Registry, error) {
	registry := specialist.NewRegistry()

	workers := []struct {
		name, instruction string
		capabilities      []string
	}{
		{"audio", "Transcribe and answer questions about audio content.", []string{"audio"}},
		{"video", "Analyze and answer questions about video content.", []string{"video"}},
		{"image", "Describe and answer questions about images.", []string{"image"}},
		{"document", "Summarize and answer questions about uploaded documents.", []string{"document"}},
	}
	for _, w := range workers {
		if err := registry.RegisterSpecialist(specialist.NewWorker(w.name, w.instruction, w.capabilities, nil, model)); err != nil {
			return nil, err
		}
	}

	webResearch := specialist.NewRegistry()
	if err := webResearch.RegisterSpecialist(specialist.NewWorker("web-researcher", "Research the open web and summarize findings with sources.", []string{"research", "web"}, []string{"web_search"}, model)); err != nil {
		return nil, err
	}
	webTeam := specialist.NewTeam("web-research", []string{"research", "web"}, []string{"web_search"}, specialist.NewRouter(webResearch, model))

	legalResearch := specialist.NewRegistry()
	if err := legalResearch.RegisterSpecialist(specialist.NewWorker("legal-researcher", "Research legal questions and cite relevant sources.", []string{"research", "legal"}, nil, model)); err != nil {
		return nil, err
	}
	legalTeam := specialist.NewTeam("legal-research", []string{"research", "legal"}, nil, specialist.NewRouter(legalResearch, model))

	if err := registry.RegisterSpecialist(webTeam); err != nil {
		return nil, err
	}
	if err := registry.RegisterSpecialist(legalTeam); err != nil {
		return nil, err
	}

	return registry, nil
}
