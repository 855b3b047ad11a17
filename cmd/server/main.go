/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the invoice ledger server: configuration,
  dependency injection, graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and parse command-line flags
  2. Configure logging
  3. Open the SQLite-backed hierarchical store
  4. Wire store client, services, activity log
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS (env fallback in parentheses):
  -port    HTTP server port (PORT, default 8080)
  -db      SQLite database path (DATABASE_PATH, default ledger.db)
           Use ":memory:" for an in-memory database
  -org     Organization scope for the activity log (ORG_ID, default "default")
  -node    Writer node id for generated ids (NODE_ID, default 0)
  -log     Log level (LOG_LEVEL, default info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait up to 30s for
  active requests, close the store.

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite: Store backend
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/keel/invoice-engine/api"
	"github.com/keel/invoice-engine/billing"
	"github.com/keel/invoice-engine/blob"
	"github.com/keel/invoice-engine/hstore"
	"github.com/keel/invoice-engine/logger"
	"github.com/keel/invoice-engine/store/sqlite"
)

func main() {
	// .env is optional; flags override env.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DATABASE_PATH", "ledger.db"), "SQLite database path")
	org := flag.String("org", envStr("ORG_ID", "default"), "organization scope")
	nodeID := flag.Int64("node", int64(envInt("NODE_ID", 0)), "writer node id")
	logLevel := flag.String("log", envStr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	if err := logger.Setup(logger.Config{Level: *logLevel, Format: "console", Output: "stdout"}); err != nil {
		fmt.Fprintf(os.Stderr, "logger setup failed: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("server")

	backend, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer backend.Close()

	client, err := hstore.New(backend, *nodeID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store client")
	}

	activity := billing.NewActivityLog(client, *org)
	blobs := blob.NewMemory() // swap for a real object store in production
	invoices := billing.NewInvoiceService(client, blobs, activity,
		billing.WithLogger(logger.WithComponent("invoices")))
	clients := billing.NewClientService(client, activity)
	clients.SetLogger(logger.WithComponent("clients"))

	handler := api.NewHandler(invoices, clients, activity, logger.WithComponent("api"))
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
