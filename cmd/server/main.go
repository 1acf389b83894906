package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptforge/backend/internal/infrastructure/config"
	"github.com/promptforge/backend/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	appsDir := flag.String("apps", "", "App manifest directory (overrides KERNEL_APPS_DIR)")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *appsDir != "" {
		cfg.Kernel.AppsDir = *appsDir
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
