package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/sightline/internal/config"
	"github.com/hpungsan/sightline/internal/db"
	"github.com/hpungsan/sightline/internal/fixcache"
	"github.com/hpungsan/sightline/internal/generate"
	"github.com/hpungsan/sightline/internal/mcp"
	"github.com/hpungsan/sightline/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"signals": true, "applicability": true, "member": true, "live": true,
	"score": true, "issues": true, "draft": true, "approval": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _____ _       __    __  ___
  / ___/(_)___ _/ /_  / /_/ (_)___  ___
  \__ \/ / __ '/ __ \/ __/ / / __ \/ _ \
 ___/ / / /_/ / / / / /_/ / / / / /  __/
/____/_/\__, /_/ /_/\__/_/_/_/ /_/\___/
       /____/

  Store health scoring and governed drafts

  Usage: sightline <command> [options]
         sightline --help

  MCP server mode requires piped input.`)
}

// newLogger writes structured logs to stderr; stdout carries JSON results
// and the MCP transport. SIGHTLINE_LOG_LEVEL selects debug, info, warn or error.
func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(os.Getenv("SIGHTLINE_LOG_LEVEL")))); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newGenerator picks the Anthropic generator when an API key is available and
// the offline static generator otherwise, then applies the configured limits.
func newGenerator(cfg *config.Config, logger *slog.Logger) generate.Generator {
	var base generate.Generator = generate.Static{}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		a, err := generate.NewAnthropic("", cfg.AIModel)
		if err != nil {
			logger.Warn("anthropic generator unavailable, using static", "error", err)
		} else {
			base = a
		}
	}
	return generate.WithLimits(base, generate.Options{
		Timeout:       cfg.GenerationTimeout(),
		RatePerMinute: cfg.GenerationRatePerMinute,
		MaxConcurrent: cfg.GenerationMaxConcurrent,
	})
}

// newFixCache keeps recent results in memory in front of the sqlite table.
func newFixCache(cfg *config.Config, store *db.FixCacheStore) *fixcache.Cache {
	front := fixcache.NewMemoryStore(cfg.FixCacheMaxEntries, cfg.FixCacheTTL())
	return fixcache.New(fixcache.NewTiered(front, store), fixcache.WithFlightTimeout(cfg.GenerationTimeout()))
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".sightline")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		fail("failed to load rules: %v", err)
	}

	logger := newLogger()
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", "types", unknown)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	env := &appEnv{
		deps:  ops.NewDeps(database, cfg, rules, logger),
		cache: newFixCache(cfg, db.NewFixCacheStore(database, cfg.FixCacheTTL())),
		gen:   newGenerator(cfg, logger),
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			// Command errors carry a JSON error object as their message.
			fmt.Fprintln(os.Stderr, err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'sightline --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(env.deps, env.cache, env.gen, Version); err != nil {
		database.Close()
		fail("%v", err)
	}
}
