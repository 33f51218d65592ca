/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave scheduling server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and environment configuration
  2. Initialize SQLite store
  3. Create the scheduling engine and background auditor
  4. Configure HTTP router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the background auditor
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  DB_PATH=./data/leave.db ./server

  # Run with in-memory database
  DB_PATH=":memory:" ./server

SEE ALSO:
  - config/config.go: Environment knobs
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/leave-scheduler/api"
	"github.com/warp/leave-scheduler/config"
	"github.com/warp/leave-scheduler/schedule"
	"github.com/warp/leave-scheduler/store/sqlite"
)

func main() {
	// .env is optional; environment wins where both are set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Engine and background auditor
	engine := schedule.NewEngine(store, store)
	auditor := api.NewOccupancyAuditor(engine, cfg.Divisions)
	auditor.CheckInterval = cfg.AuditorInterval
	auditor.Enabled = cfg.AuditorEnabled
	auditor.Start()
	defer auditor.Stop()

	// HTTP wiring. HeaderIdentity/StaticRoles stand in until the
	// deployment's real identity provider is plugged in.
	roles := api.StaticRoles{Admins: map[schedule.MemberID]api.Roles{}}
	for _, id := range cfg.AdminMembers {
		roles.Admins[schedule.MemberID(id)] = api.Roles{IsDivisionAdmin: true}
	}
	handler := api.NewHandler(engine, store, api.HeaderIdentity{}, roles)
	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
