package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/blackjack/internal/ledger"
	"github.com/lox/blackjack/internal/registry"
	"github.com/lox/blackjack/internal/server"
	"golang.org/x/sync/errgroup"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"blackjackd.hcl" help:"Path to HCL configuration file"`
	Addr     string `short:"a" long:"addr" help:"Address to bind to (overrides config)"`
	Port     int    `short:"p" long:"port" help:"Port to listen on (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	Ledger   string `long:"ledger" help:"Ledger backend (overrides config)"`
	DB       string `long:"db" help:"Ledger file or database path (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("blackjackd"),
		kong.Description("Multiplayer blackjack tables for group chats."))

	cfg, err := server.LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	if CLI.Addr != "" {
		cfg.Server.Address = CLI.Addr
	}
	if CLI.Port != 0 {
		cfg.Server.Port = CLI.Port
	}
	if CLI.LogLevel != "" {
		cfg.Server.LogLevel = CLI.LogLevel
	}
	if CLI.Ledger != "" {
		cfg.Ledger.Backend = CLI.Ledger
	}
	if CLI.DB != "" {
		cfg.Ledger.Path = CLI.DB
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	level, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *server.Config, logger *log.Logger) error {
	book, err := ledger.Open(ledger.Config{
		Backend:         cfg.Ledger.Backend,
		Path:            cfg.Ledger.Path,
		StartingBalance: cfg.Ledger.StartingBalance,
	})
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := book.Close(); err != nil {
			logger.Warn("Failed to close ledger", "error", err)
		}
	}()

	clock := quartz.NewReal()
	reg := registry.New(clock, logger)
	svc := server.NewGameService(reg, book, cfg.ServiceConfig(), clock, logger)

	srv := server.NewServer(cfg.ServerAddress(), logger)
	srv.SetGameService(svc)

	logger.Info("Starting blackjackd",
		"addr", cfg.ServerAddress(),
		"ledger", cfg.Ledger.Backend,
		"maxPlayers", cfg.Table.MaxPlayers,
		"turnTimeout", cfg.Table.TurnTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(ctx) })
	g.Go(func() error { return svc.Run(ctx) })

	err = g.Wait()
	logger.Info("Shut down")
	return err
}
