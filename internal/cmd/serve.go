package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/config"
	"github.com/foyer-io/foyer/internal/executor"
	"github.com/foyer-io/foyer/internal/hass"
	"github.com/foyer-io/foyer/internal/history"
	"github.com/foyer-io/foyer/internal/llm"
	"github.com/foyer-io/foyer/internal/orchestrator"
	"github.com/foyer-io/foyer/internal/policy"
	"github.com/foyer-io/foyer/internal/sanitize"
	"github.com/foyer-io/foyer/internal/server"
	"github.com/foyer-io/foyer/internal/trigger"
)

var serveMaintenanceCron string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Foyer server: utterance webhook, query worker, and maintenance schedule",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveMaintenanceCron, "maintenance-cron", trigger.DefaultMaintenanceCron,
		"cron expression for history rotation and audit retention")
	rootCmd.AddCommand(serveCmd)
}

// newProvider picks the chat gateway from config. Validation already
// restricted llm_provider to the supported values.
func newProvider(cfg *config.Config) llm.Provider {
	if cfg.LLMProvider == config.ProviderOpenAI {
		if cfg.OpenAIBaseURL != "" {
			return llm.NewOpenAIProviderWithBaseURL(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		}
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
	}
	return llm.NewOllamaProvider(cfg.OllamaBaseURL)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	var pol *policy.Policy
	if cfg.PolicyFile != "" {
		pol, err = policy.Load(ctx, cfg.PolicyFile)
	} else {
		pol, err = policy.Default()
	}
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	engine, err := policy.NewEngine(ctx, pol)
	if err != nil {
		return fmt.Errorf("policy engine: %w", err)
	}

	sanitizer, err := sanitize.New()
	if err != nil {
		return fmt.Errorf("sanitizer: %w", err)
	}
	validator, err := sanitize.NewValidator(sanitizer)
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}

	hist := history.NewStore(cfg.HistoryPath())
	hist.Load()

	records, err := audit.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer records.Close()

	auditLog := audit.NewLineLogger(cfg.AuditLogPath(), sanitizer)

	haClient := hass.NewClient(cfg.HABaseURL, cfg.HAToken)
	provider := newProvider(cfg)
	exec := executor.New(pol, engine, haClient)

	orch := orchestrator.New(orchestrator.Config{
		Sanitizer:       sanitizer,
		Validator:       validator,
		Policy:          pol,
		Executor:        exec,
		History:         hist,
		Provider:        provider,
		Platform:        haClient,
		AuditLog:        auditLog,
		Records:         records,
		Model:           cfg.Model,
		ContextEntities: cfg.ContextEntities,
		HistoryEntity:   cfg.HistoryEntity,
	})
	go orch.Run(ctx)

	scheduler := trigger.NewScheduler(hist, records, cfg.AuditRetentionDays)
	if err := scheduler.Register(serveMaintenanceCron); err != nil {
		return fmt.Errorf("registering maintenance schedule: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := server.NewServer(orch, records, pol)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Str("provider", provider.Name()).
		Str("model", cfg.Model).
		Str("policy_version", pol.VersionTag).
		Int("cron_entries", scheduler.Entries()).
		Msg("foyer_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
