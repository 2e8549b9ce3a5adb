// execflowd runs the execution-orchestration core standalone: the HTTP
// read-API, the MCP tool surface, and the background pipeline/approval
// workers, all over one PostgreSQL database.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/execflow/internal/api"
	"github.com/codeready-toolchain/execflow/internal/approval"
	"github.com/codeready-toolchain/execflow/internal/config"
	"github.com/codeready-toolchain/execflow/internal/eventbus"
	"github.com/codeready-toolchain/execflow/internal/executor"
	"github.com/codeready-toolchain/execflow/internal/executor/localcli"
	"github.com/codeready-toolchain/execflow/internal/executor/stub"
	"github.com/codeready-toolchain/execflow/internal/mcpapi"
	"github.com/codeready-toolchain/execflow/internal/pipeline"
	"github.com/codeready-toolchain/execflow/internal/queuedmsg"
	"github.com/codeready-toolchain/execflow/internal/store"
	"github.com/codeready-toolchain/execflow/internal/workspace"
)

// shutdownGrace bounds how long in-flight HTTP requests get to finish
// before the server is forced down on SIGINT/SIGTERM.
const shutdownGrace = 15 * time.Second

// approvalTimekeeperInterval is how often RunTimekeeper sweeps for
// past-deadline approvals. Independent of the pipeline's orphan-scan
// cadence since the two sweep unrelated staleness conditions.
const approvalTimekeeperInterval = 1 * time.Minute

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load database config: %v", err)
	}
	dbClient, err := store.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("Error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL and applied migrations")

	bus := eventbus.New(dbClient)
	listener := eventbus.NewListener(dbClient.DSN())
	go listener.Run(ctx)

	registry := executor.NewRegistry()
	registry.Register("stub", func() executor.Adapter { return stub.New() })
	if binary := os.Getenv("EXECFLOW_LOCAL_CLI_BINARY"); binary != "" {
		registry.Register("local-cli", func() executor.Adapter { return localcli.New(binary) })
	}

	ws := workspace.New(dbClient)
	approvals := approval.New(dbClient, bus, ws)
	queued := queuedmsg.New(bus)
	pl := pipeline.New(dbClient, bus, approvals, queued)

	pipelineCfg, err := config.LoadPipelineConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load pipeline config: %v", err)
	}
	approvalCfg, err := config.LoadApprovalConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load approval config: %v", err)
	}
	approvals.DefaultTimeout = approvalCfg.DefaultTimeout

	if n, err := pl.RecoverStartupOrphans(ctx, time.Now().Add(-pipelineCfg.OrphanThreshold)); err != nil {
		slog.Error("startup orphan recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("recovered orphaned executions at startup", "count", n)
	}
	go pl.RunOrphanScanner(ctx, pipelineCfg.OrphanScanInterval, pipelineCfg.OrphanThreshold)
	go approvals.RunTimekeeper(ctx, approvalTimekeeperInterval)

	mcpServer := mcpapi.NewServer(ws)
	go func() {
		if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			slog.Error("mcp server exited", "error", err)
		}
	}()

	httpServer := api.NewServer(dbClient, pl, approvals, queued, ws)
	serverCfg := config.LoadServerConfigFromEnv()

	go func() {
		log.Printf("HTTP server listening on %s", serverCfg.Addr)
		if err := httpServer.Start(serverCfg.Addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during HTTP shutdown: %v", err)
	}
}
