package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"lingo-dm/auth"
	"lingo-dm/contract"
	"lingo-dm/gateway"
	"lingo-dm/internal"
	"lingo-dm/repositories"
	"lingo-dm/runtime"
	"lingo-dm/runtime/workers"
	"lingo-dm/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so deferred cleanups always execute.
func run() error {
	// 1. Configuration & Logger
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment")
	}
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB). Profiles always live here, messages too
	// unless the dynamodb backend is selected.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Message store backend
	store, err := buildMessageStore(ctx, config, db, log)
	if err != nil {
		return err
	}

	// 5. Core wiring
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry)
	chat := services.NewChatService(log, store, router)
	directory := repositories.NewProfileRepository(db)
	tokens := auth.NewTokenManager(config.AuthTokenSecret, config.AuthTokenDuration)
	gw := gateway.NewGateway(log, tokens, directory, registry, chat, config.ConnectionBufferSize)
	history := gateway.NewHistoryHandler(log, chat)

	// 6. Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewStorageGCWorker(log, db, config.StorageGCInterval))
	go sup.Run(ctx)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, internal.MessageMapper, nil)
		log.Info("Debug inspector listening", "port", config.DebugPort)
	}

	// 7. HTTP server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:    address,
		Handler: gateway.NewHTTPRouter(gw, history, tokens),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "store", config.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

func buildMessageStore(ctx context.Context, config internal.Config, db *badger.DB, log *slog.Logger) (contract.IMessageStore, error) {
	switch config.StoreBackend {
	case "badger", "":
		return repositories.NewMessageRepository(db, log), nil
	case "dynamodb":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if config.DynamoEndpoint != "" {
				o.BaseEndpoint = &config.DynamoEndpoint
			}
		})
		repo, err := repositories.NewDynamoMessageRepository(client, config.DynamoTable)
		if err != nil {
			return nil, err
		}
		if config.DynamoAutoTable {
			if err := repo.EnsureTable(ctx); err != nil {
				return nil, fmt.Errorf("dynamodb table: %w", err)
			}
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
	}
}
