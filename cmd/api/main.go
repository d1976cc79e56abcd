package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"contractdesk/cloudsign"
	"contractdesk/db"
	"contractdesk/project"
	"contractdesk/settings"
)

func main() {
	ctx := context.Background()
	logger := log.Default()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		logger.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	settingsRepo := settings.NewRepository(pool)

	// The client boots with whatever configuration is stored; an empty one is
	// fine, operations just fail until the settings endpoint is used.
	client, err := cloudsign.NewFromSource(ctx, settingsRepo, cloudsign.WithLogger(logger))
	if err != nil {
		if !errors.Is(err, cloudsign.ErrNotConfigured) {
			logger.Fatalf("load cloudsign credentials: %v", err)
		}
		logger.Printf("cloudsign not configured yet, starting unconfigured")
		client = cloudsign.New(cloudsign.Credentials{}, cloudsign.WithLogger(logger))
	}

	flow := cloudsign.NewEmbeddedSigningFlow(client, logger)
	projectService := project.NewService(project.NewRepository(pool), flow, client, logger)

	server := &Server{
		projects: projectService,
		settings: settingsRepo,
		client:   client,
		logger:   logger,
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Printf("listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("http server: %v", err)
	}
}
