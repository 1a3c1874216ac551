package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pggit/pggit"
	"github.com/pggit/pggit/core"
	"github.com/pggit/pggit/tier"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	port := flag.Int("port", 5499, "TCP port to listen on")
	dataPath := flag.String("data", "", "Commit graph database path (memory if empty)")
	hotDir := flag.String("hotDir", "", "Directory for hot payload storage (memory if empty)")
	coldLocation := flag.String("cold", "", "Cold archive location: directory, file:// or s3://bucket/prefix")
	hotWindow := flag.Duration("hotWindow", 30*24*time.Hour, "Age after which payloads become migration candidates")
	maxReads := flag.Int64("maxReads", 3, "Read count below which aged payloads migrate to cold")
	jwtSecret := flag.String("jwtSecret", "", "Shared secret for JWT authentication (disabled if empty)")
	jwtIssuer := flag.String("jwtIssuer", "", "Expected JWT issuer claim")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pgGit Server v%s\n", Version)
		return
	}

	ctx := context.Background()

	cfg := pggit.Config{
		HotDir:       *hotDir,
		ColdLocation: *coldLocation,
		Policy: tier.Policy{
			HotWindow:            *hotWindow,
			ColdAfterAccessCount: *maxReads,
		},
	}
	if *dataPath == "" {
		log.Println("Using in-memory commit graph")
		cfg.Path = ":memory:"
	} else {
		log.Printf("Using commit graph database: %s", *dataPath)
		cfg.Path = *dataPath
	}

	instance, err := pggit.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer instance.Close()

	identity := core.Identity{
		Name:  "pgGit Server",
		Email: "server@pggit.local",
	}
	if _, err := instance.Store.Init(ctx, identity); err != nil {
		log.Fatalf("Failed to initialize repository: %v", err)
	}

	var server *Server
	if *jwtSecret != "" {
		server = NewServerWithAuth(instance, &AuthConfig{
			Enabled:   true,
			JWTSecret: *jwtSecret,
			Issuer:    *jwtIssuer,
		})
	} else {
		server = NewServer(instance, identity)
	}

	addr := fmt.Sprintf(":%d", *port)
	if err := server.Start(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Print banner
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║   pgGit Server v%-21s  ║\n", Version)
	fmt.Println("║   Version Control for Structured Data ║")
	fmt.Println("╚═══════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Listening on port %d\n", *port)
	fmt.Println("Send JSON requests (one per line), 'quit' to disconnect")
	fmt.Println()

	// Periodic tier migration when a cold archive is configured
	stopTiering := make(chan struct{})
	if instance.Tiering != nil {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-stopTiering:
					return
				case <-ticker.C:
					if _, err := instance.Tiering.EvaluateAndMigrate(ctx); err != nil {
						log.Printf("Tier migration failed: %v", err)
					}
				}
			}
		}()
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	close(stopTiering)
	server.Stop()
	log.Println("Server stopped")
}
