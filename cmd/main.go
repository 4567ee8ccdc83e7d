package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"support-chat/broker"
	"support-chat/domain"
	"support-chat/infrastructure/httpapi"
	"support-chat/internal"
	"support-chat/observability"
	"support-chat/runtime/workers"
	"support-chat/services"
)

// welcomeMessage seeds the conversation so a first-time visitor never
// faces an empty thread.
const welcomeMessage = "Namaste! Tap the bottom navigation to explore curated homes or ask for help any time. हामी साथमा छौं।"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before the process
// exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Broker & Supervision
	stats := observability.NewChatStats()
	store := broker.NewStore(log, stats,
		domain.NewMessage(domain.SenderSupport, welcomeMessage))

	sup := workers.NewSupervisor(log, config.RestartInterval)
	responder := workers.NewResponder(log, store, stats, config.ReplyDelay, config.BufferSize)
	sup.Add(responder)

	chatService := services.NewChatService(store, responder)
	server := httpapi.NewChatServer(log, chatService, stats, config.ConnectionBufferSize)

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 4. HTTP Server Setup
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv := &http.Server{Addr: address, Handler: server.Router()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat server", "address", address, "at", time.Now().UTC())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 5. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 6. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
