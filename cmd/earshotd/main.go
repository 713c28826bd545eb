// Earshotd is the development daemon for Earshot.
//
// It loads configuration, opens the song catalog, starts the HTTP/WebSocket
// server and runs the simulated recognition pipeline behind it. Shutdown is
// handled gracefully on SIGINT or SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/large-farva/earshot/internal/app"
	"github.com/large-farva/earshot/internal/config"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "/etc/earshot/earshot.toml", "Path to config TOML")
		bind       = pflag.String("bind", "", "HTTP bind address (overrides server.bind)")
		catalog    = pflag.String("catalog", "", "Path to the sqlite song catalog (overrides catalog.path)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *catalog != "" {
		cfg.Catalog.Path = *catalog
	}

	logger := log.New(os.Stdout, "earshotd ", log.LstdFlags|log.Lmicroseconds)

	a, err := app.New(app.Options{
		Logger:     logger,
		Cfg:        cfg,
		Bind:       *bind,
		ConfigPath: *configPath,
	})
	if err != nil {
		logger.Fatalf("earshotd failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Fatalf("earshotd failed: %v", err)
	}

	// Brief pause so in-flight log writes can flush before exit.
	time.Sleep(50 * time.Millisecond)
}
