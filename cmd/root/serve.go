package root

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jarz/rentagent/pkg/config"
	"github.com/jarz/rentagent/pkg/conversation"
	"github.com/jarz/rentagent/pkg/model/provider/openai"
	"github.com/jarz/rentagent/pkg/mortgage"
	"github.com/jarz/rentagent/pkg/runtime"
	"github.com/jarz/rentagent/pkg/scansan"
	"github.com/jarz/rentagent/pkg/server"
	"github.com/jarz/rentagent/pkg/toolcache"
	"github.com/jarz/rentagent/pkg/tools"
	"github.com/jarz/rentagent/pkg/tools/builtin"
	"github.com/jarz/rentagent/pkg/valuation"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Model.APIKey == "" {
		return fmt.Errorf("no model API key configured, set OPENROUTER_API_KEY")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	cache, err := toolcache.NewSQLiteStore(cfg.CacheDBPath())
	if err != nil {
		return fmt.Errorf("opening tool cache: %w", err)
	}
	defer cache.Close()

	store, err := conversation.NewSQLiteStore(cfg.ConversationDBPath())
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer store.Close()

	market := scansan.NewClient(cfg.ScanSan.APIKey,
		scansan.WithBaseURL(cfg.ScanSan.BaseURL),
		scansan.WithCache(cache, cfg.CacheTTL()))
	if cfg.ScanSan.APIKey == "" {
		slog.Warn("No ScanSan API key configured, location resolution is offline-only")
	}

	var model valuation.Adapter = valuation.NewStubAdapter()
	if cfg.ValuationURL != "" {
		model = valuation.NewHTTPAdapter(cfg.ValuationURL)
	}

	registry := tools.NewRegistry()
	toolset := builtin.NewToolset(market, model, mortgage.NewRateSource(nil))
	if err := toolset.Register(registry); err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	var providerOpts []openai.Option
	if cfg.Model.Temperature != nil {
		providerOpts = append(providerOpts, openai.WithTemperature(*cfg.Model.Temperature))
	}
	if cfg.Model.MaxTokens > 0 {
		providerOpts = append(providerOpts, openai.WithMaxTokens(cfg.Model.MaxTokens))
	}
	modelProvider := openai.NewClient(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Name, providerOpts...)

	executor := runtime.NewToolExecutor(registry, cache, cfg.CacheTTL())
	rt := runtime.New(modelProvider, executor, store, registry,
		runtime.WithMaxToolRounds(cfg.MaxToolRounds))

	srv := server.New(rt, store, market, server.WithTitler(modelProvider))

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen, err)
	}

	slog.Info("Server started", "addr", ln.Addr().String(), "model", cfg.Model.Name)
	return srv.Serve(ctx, ln)
}
