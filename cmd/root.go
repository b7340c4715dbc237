package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lakafior/aio-abs-providers/internal/cache"
	"github.com/lakafior/aio-abs-providers/internal/config"
	"github.com/lakafior/aio-abs-providers/internal/metadata"
	"github.com/lakafior/aio-abs-providers/internal/provider"
	"github.com/lakafior/aio-abs-providers/internal/provider/googlebooks"
	"github.com/lakafior/aio-abs-providers/internal/provider/itunes"
	"github.com/lakafior/aio-abs-providers/internal/provider/openlibrary"
	"github.com/lakafior/aio-abs-providers/internal/server"
	"github.com/lakafior/aio-abs-providers/internal/tui"
)

// CLI represents the complete command structure for the application
type CLI struct {
	// Global flags
	Debug bool `help:"Enable debug logging"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file" default:"./cache.db"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)" default:"720h"`

	Serve  ServeCmd  `cmd:"" help:"Run the metadata aggregation HTTP server"`
	Search SearchCmd `cmd:"" help:"Run one aggregated search from the command line"`
	Ping   PingCmd   `cmd:"" help:"Check connectivity to the configured providers"`
	Cache  CacheCmd  `cmd:"" help:"Manage the provider response cache"`
}

// ServeCmd represents the serve command
type ServeCmd struct {
	Listen string `help:"Listen address, overrides server.listen from config"`
}

// SearchCmd represents the search command
type SearchCmd struct {
	Query       string `arg:"" help:"Title to search for" required:""`
	Author      string `short:"a" help:"Author to refine the search"`
	Language    string `short:"l" help:"Language hint for provider selection"`
	Format      string `help:"Output format: json or yaml" enum:"json,yaml" default:"json"`
	Interactive bool   `short:"i" help:"Pick one result in an interactive list"`
}

// PingCmd represents the ping command
type PingCmd struct {
	Timeout time.Duration `help:"Per-provider timeout" default:"10s"`
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Drop all cached entries for one provider"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(false)
	initConfig()

	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("aio-abs-providers"),
		kong.Description("Aggregated book and audiobook metadata search across providers."),
		kong.UsageOnError(),
	)

	if cli.Debug {
		initLogging(true)
	}
	updateGlobalConfig(&cli)

	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()

	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/aio-abs-providers")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, running with defaults")
		} else {
			slog.Error("Fatal error reading config file", "error", err)
			os.Exit(1)
		}
	}
}

func updateGlobalConfig(cli *CLI) {
	viper.Set("cache.dbfile", cli.CacheDBFile)
	viper.Set("cache.ttl", cli.CacheTTL)
}

func initLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// buildProviders constructs every known provider client from the
// settings snapshot. Disabled providers are filtered later by the
// registry table build.
var buildProviders = func(cfg config.Settings, logger *slog.Logger) []provider.Provider {
	return []provider.Provider{
		openlibrary.New(cfg.ProviderFor("openlibrary"), logger),
		googlebooks.New(cfg.ProviderFor("googlebooks"), logger),
		itunes.New(cfg.ProviderFor("itunes"), logger),
	}
}

func buildRegistry(cfg config.Settings) *provider.Registry {
	table := provider.BuildTable(cfg, buildProviders(cfg, slog.Default()))
	return provider.NewRegistry(table)
}

// Run methods for each command

func (s *ServeCmd) Run() error {
	cfg := config.Load()
	if s.Listen != "" {
		cfg.Server.Listen = s.Listen
	}

	store := config.NewStore(cfg)
	registry := buildRegistry(cfg)

	return server.New(store, registry, slog.Default()).Run()
}

func (s *SearchCmd) Run() error {
	cfg := config.Load()
	registry := buildRegistry(cfg)
	table := registry.Snapshot()

	aggregator := metadata.NewAggregator(slog.Default())
	resp, err := aggregator.Search(context.Background(), metadata.Request{
		Query:    s.Query,
		Author:   s.Author,
		Language: s.Language,
	}, table.Entries(s.Language), cfg)
	if err != nil {
		return err
	}

	if s.Interactive {
		selection, err := tui.Select(s.Query, resp.Matches)
		if err != nil {
			return err
		}
		if selection.Action != tui.ActionSelected {
			slog.Info("No result selected")
			return nil
		}
		return printResult(selection.Selection, s.Format)
	}

	return printResult(resp, s.Format)
}

func (p *PingCmd) Run() error {
	cfg := config.Load()
	table := buildRegistry(cfg).Snapshot()

	failed := 0
	for _, entry := range table.Pingers() {
		id := entry.Provider.ID()

		ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
		err := entry.Pinger.Ping(ctx)
		cancel()

		if err != nil {
			failed++
			slog.Error("Provider unreachable", "provider", id, "error", err)
			continue
		}
		slog.Info("Provider reachable", "provider", id)
	}

	if failed > 0 {
		return fmt.Errorf("%d provider(s) unreachable", failed)
	}
	return nil
}

// stdout is swapped out by tests capturing command output.
var stdout io.Writer = os.Stdout

// printResult writes v to stdout as JSON or YAML. YAML output goes
// through a JSON round trip so both formats honor the same field names.
func printResult(v any, format string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if format == "yaml" {
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("failed to convert result: %w", err)
		}
		data, err = yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprint(stdout, string(data))
		return nil
	}

	fmt.Fprintln(stdout, string(data))
	return nil
}
