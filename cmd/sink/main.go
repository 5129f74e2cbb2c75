// Command sink runs the reference telemetry collector: an HTTP endpoint
// accepting driverwatch log records into a sqlite database, with a tailsql
// console and backup download on the debug surface.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrel-sense/driverwatch/internal/api"
	"github.com/kestrel-sense/driverwatch/internal/security"
	"github.com/kestrel-sense/driverwatch/internal/sinkstore"
	"github.com/kestrel-sense/driverwatch/internal/version"
)

var (
	listen = flag.String("listen", ":8090", "HTTP listen address")
	dbPath = flag.String("db", "telemetry.db", "Path to the sqlite database")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if err := security.ValidateExportPath(*dbPath); err != nil {
		log.Fatalf("Database path: %v", err)
	}

	store, err := sinkstore.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	mux := store.ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		log.Fatalf("Failed to attach admin routes: %v", err)
	}

	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("sink %s listening on %s (db %s)", version.Version, *listen, *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
