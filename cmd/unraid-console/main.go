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

	"github.com/unraidmate/console/pkg/api"
	"github.com/unraidmate/console/pkg/auth"
	"github.com/unraidmate/console/pkg/config"
	"github.com/unraidmate/console/pkg/credentials"
	"github.com/unraidmate/console/pkg/graphql"
	"github.com/unraidmate/console/pkg/monitor"
	"github.com/unraidmate/console/pkg/servers"
	"github.com/unraidmate/console/pkg/settings"
	"github.com/unraidmate/console/pkg/store"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	configPath := flag.String("config", config.DefaultPath(), "Path to config file")
	port := flag.Int("port", 0, "Port to listen on (overrides config)")
	static := flag.String("static", "./web/dist", "Directory of the built UI")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("unraid-console version %s\n", Version)
		os.Exit(0)
	}

	if wd, err := os.Getwd(); err == nil {
		if err := config.LoadDotEnv(wd); err != nil {
			log.Printf("Warning: %v", err)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	fmt.Print(`
 _   _                  _     _
| | | |_ __  _ __ __ _(_) __| |
| | | | '_ \| '__/ _` + "`" + ` | |/ _` + "`" + ` |
| |_| | | | | | | (_| | | (_| |
 \___/|_| |_|_|  \__,_|_|\__,_|
Unraid Console
`)

	db, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	key, err := store.LoadOrCreateKey(cfg.KeyPath())
	if err != nil {
		log.Fatalf("Failed to load encryption key: %v", err)
	}
	kv, err := store.NewEncryptedStore(db, key, store.DefaultSecretKeys...)
	if err != nil {
		log.Fatalf("Failed to set up encrypted store: %v", err)
	}
	log.Printf("Data in %s (key %s)", cfg.DataDir, kv.Fingerprint())

	creds := credentials.New(kv)
	settingsManager := settings.NewSettingsManager(kv)
	if err := settingsManager.Load(context.Background()); err != nil {
		log.Printf("Warning: failed to load settings, using defaults: %v", err)
	}

	factory := graphql.NewFactory(creds, graphql.FactoryConfig{
		BuildTimeout:   cfg.BuildTimeout,
		RequestTimeout: cfg.RequestTimeout,
	})
	provider := graphql.NewProvider(factory)
	validator := auth.NewRemoteValidator(factory, cfg.ValidateTimeout)
	manager := auth.NewManager(creds, validator, provider)
	controller := servers.NewController(creds, manager)
	mon := monitor.New(provider, settingsManager)

	server, err := api.NewServer(api.Config{
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		JWTSecret:   cfg.JWTSecret,
		FrontendURL: cfg.FrontendURL,
		StaticDir:   *static,
	}, api.Deps{
		Auth:     manager,
		Servers:  controller,
		Settings: settingsManager,
		Clients:  provider,
		Monitor:  mon,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// First client from whatever session survived the last run
	startCtx, cancel := context.WithTimeout(context.Background(), cfg.BuildTimeout+time.Second)
	provider.Rebuild(startCtx)
	cancel()
	if creds.IsAuthenticated(context.Background()) {
		log.Printf("Restored session for %s", provider.Current().Endpoint())
	}
	mon.Start()

	watcher := config.NewWatcher(*configPath, func(next config.Config) {
		validator.SetTimeout(next.ValidateTimeout)
		server.SetFrontendURL(next.FrontendURL)
	})
	if err := watcher.Start(); err != nil {
		log.Printf("Warning: config hot reload disabled: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		watcher.Stop()
		mon.Stop()
		if err := server.Shutdown(); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		if err := kv.Close(); err != nil {
			log.Printf("Store close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
