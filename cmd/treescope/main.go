package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dusk-indust/treescope/internal/astcache"
	"github.com/dusk-indust/treescope/internal/config"
	"github.com/dusk-indust/treescope/internal/language"
	"github.com/dusk-indust/treescope/internal/mcptools"
	"github.com/dusk-indust/treescope/internal/project"
)

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigPath  string
	HTTPAddr    string
	ProjectPath string
	NoWatch     bool
	Version     bool
}

// version is set by the linker at build time.
var version = "dev"

// sweepInterval is how often the cache sweeper removes expired entries.
const sweepInterval = time.Minute

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("treescope", flag.ContinueOnError)
	fs.StringVar(&flags.ConfigPath, "config", "", "path to treescope.yml")
	fs.StringVar(&flags.HTTPAddr, "http", "", "serve MCP over HTTP on this address instead of stdio")
	fs.StringVar(&flags.ProjectPath, "project", "", "register this project directory at startup")
	fs.BoolVar(&flags.NoWatch, "no-watch", false, "disable filesystem watching for cache invalidation")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}

	// Stdout carries the MCP stdio transport, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	registry := language.NewRegistry()
	astService := astcache.NewService(registry, astcache.Options{
		MaxWeightBytes: int64(cfg.Cache.MaxSizeMB) * 1024 * 1024,
		TTL:            time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		DefaultDepth:   cfg.Language.DefaultMaxDepth,
		SweepInterval:  sweepInterval,
	}, logger)
	if !cfg.Cache.Enabled {
		astService.Configure(false, 0, 0)
	}

	projects := project.NewRegistry(project.Limits{
		MaxFileBytes: int64(cfg.Security.MaxFileSizeMB) * 1024 * 1024,
		ExcludedDirs: cfg.Security.ExcludedDirs,
	})

	svc := mcptools.NewTreeService(astService, projects, mcptools.Settings{
		CacheEnabled: cfg.Cache.Enabled,
		MaxSizeMB:    cfg.Cache.MaxSizeMB,
		TTLSeconds:   cfg.Cache.TTLSeconds,
	}, !flags.NoWatch, cfg.Security.ExcludedDirs, logger)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.ProjectPath != "" {
		if _, _, err := svc.RegisterProject(ctx, nil, mcptools.RegisterProjectInput{Path: flags.ProjectPath}); err != nil {
			return fmt.Errorf("register project %s: %w", flags.ProjectPath, err)
		}
	}

	server := mcptools.NewServer(svc)
	if flags.HTTPAddr != "" {
		logger.Info("serving MCP over HTTP", "addr", flags.HTTPAddr)
		return mcptools.RunHTTP(ctx, server, flags.HTTPAddr)
	}
	logger.Info("serving MCP over stdio")
	return mcptools.RunStdio(ctx, server)
}

func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
