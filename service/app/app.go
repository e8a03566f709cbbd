// Package app assembles the transfer pipeline from configuration. The HTTP
// server and the Temporal worker build the same components.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brojonat/agentpay/service/compliance"
	"github.com/brojonat/agentpay/service/config"
	"github.com/brojonat/agentpay/service/currency"
	"github.com/brojonat/agentpay/service/db"
	"github.com/brojonat/agentpay/service/directory"
	"github.com/brojonat/agentpay/service/intent"
	"github.com/brojonat/agentpay/service/ledger"
	"github.com/brojonat/agentpay/service/llm"
	"github.com/brojonat/agentpay/service/metrics"
	natspkg "github.com/brojonat/agentpay/service/nats"
	"github.com/brojonat/agentpay/service/transfer"
	"github.com/jackc/pgx/v5/pgxpool"
)

// App holds the wired pipeline.
type App struct {
	Ledger       ledger.Client
	Directory    *directory.StaticDirectory
	Parser       *intent.Parser
	Converter    *currency.Converter
	Validator    *compliance.Validator
	Orchestrator *transfer.Orchestrator
	// Publisher is nil when NATS_URL is unset.
	Publisher *natspkg.JetStreamPublisher

	closers []func()
}

// Build connects to every configured backend and wires the pipeline. The
// caller must Close the returned App.
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	l, err := a.buildLedger(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Ledger = ledger.NewInstrumented(l, m)

	dir, err := a.buildDirectory(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Directory = dir

	model, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create language model: %w", err)
	}
	if model == nil {
		logger.Warn("no language model configured, using local parsing only")
	} else {
		logger.Info("language model configured", "provider", cfg.LLMProvider)
	}

	a.Parser, err = intent.NewParser(directory.NewResolver(dir, logger), model, intent.Config{
		ScreeningThreshold: cfg.ScreeningThreshold,
		Provider:           cfg.LLMProvider,
	}, m, logger)
	if err != nil {
		return nil, err
	}

	a.Converter = currency.NewConverter([]currency.Provider{currency.NewFastRemit()}, cfg.RateCacheTTL, m, logger)

	kyc, err := buildKYC(cfg, a.Ledger, dir)
	if err != nil {
		return nil, err
	}
	logger.Info("KYC checker configured", "mode", cfg.KYCMode)

	var screener compliance.SanctionsScreener = compliance.NoSanctions{}
	if len(cfg.SanctionedAccounts) > 0 {
		screener = compliance.NewListScreener(cfg.SanctionedAccounts)
	}

	sinks := []compliance.RecordSink{compliance.NewLogSink(logger)}
	// Assigned only when connected so the orchestrator never sees a typed nil.
	var publisher transfer.Publisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			return nil, err
		}
		a.Publisher = p
		a.closers = append(a.closers, func() { p.Close() })
		sinks = append(sinks, p)
		publisher = p
	} else {
		logger.Warn("NATS not configured, transfer events will not be published")
	}

	a.Validator = compliance.NewValidator(kyc, screener, compliance.Config{
		AMLThreshold: cfg.AMLThreshold,
	}, m, logger, sinks...)

	a.Orchestrator = transfer.NewOrchestrator(a.Converter, a.Validator, a.Ledger, publisher, transfer.Config{
		SenderAccountID:     cfg.SenderAccountID,
		SenderPrivateKey:    cfg.SenderPrivateKey,
		TokenID:             cfg.TokenID,
		TokenDecimals:       cfg.TokenDecimals,
		Network:             cfg.LedgerNetwork,
		ExplorerURLTemplate: cfg.ExplorerURLTemplate,
	}, m, logger)

	ok = true
	return a, nil
}

// Close releases every backend connection opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildLedger(cfg *config.Config, logger *slog.Logger) (ledger.Client, error) {
	if cfg.SimulateTransfers {
		sim := ledger.NewSimulatedClient(cfg.TokenDecimals, logger)
		sim.Fund(cfg.SenderAccountID, cfg.TokenID, cfg.SimulatedBalance)
		logger.Warn("using simulated ledger, no real transfers will be made",
			"sender", cfg.SenderAccountID,
			"token_id", cfg.TokenID,
		)
		return sim, nil
	}

	h, err := ledger.NewHederaClient(ledger.HederaConfig{
		Network:     cfg.LedgerNetwork,
		OperatorID:  cfg.SenderAccountID,
		OperatorKey: cfg.SenderPrivateKey,
		Decimals:    cfg.TokenDecimals,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}
	a.closers = append(a.closers, func() { h.Close() })
	logger.Info("connected to hedera", "network", cfg.LedgerNetwork)
	return h, nil
}

// buildDirectory prefers the recipients file, then Postgres, then the
// built-in entries pointing at the default recipient.
func (a *App) buildDirectory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*directory.StaticDirectory, error) {
	if cfg.RecipientsFile != "" {
		dir, err := directory.LoadFile(cfg.RecipientsFile)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded recipient directory from file", "path", cfg.RecipientsFile)
		return dir, nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		store := db.NewStore(pool)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		dir, err := directory.LoadStore(ctx, store)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded recipient directory from database")
		return dir, nil
	}

	logger.Info("using built-in recipient directory", "recipient", cfg.RecipientAccountID)
	return directory.NewStaticDirectory(directory.DefaultEntries(cfg.RecipientAccountID)), nil
}

func buildKYC(cfg *config.Config, l ledger.Client, dir *directory.StaticDirectory) (compliance.KYCChecker, error) {
	switch cfg.KYCMode {
	case config.KYCModeAllow:
		return compliance.AllowAllKYC{}, nil
	case config.KYCModeToken:
		return compliance.NewTokenKYC(l, cfg.TokenID), nil
	case config.KYCModeFile:
		f, err := compliance.OpenFileKYC(cfg.KYCFile)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return compliance.NewDirectoryKYC(dir, cfg.SenderAccountID), nil
	}
}
