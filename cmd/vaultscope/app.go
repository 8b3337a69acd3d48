package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultScope/internal/chain"
	"vaultScope/internal/config"
	"vaultScope/internal/etherscan"
	"vaultScope/internal/indexer"
	"vaultScope/internal/logger"
	"vaultScope/internal/metrics"
	"vaultScope/internal/storage"
	"vaultScope/internal/storage/postgres"
	"vaultScope/internal/storage/sqlite"
	"vaultScope/internal/vault"
)

// app holds the dependencies shared by the subcommands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	flush  func()
	repo   storage.Repository
	chain  *chain.Client
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	log, flush, err := logger.New(cfg.LogLevel, cfg.SentryDSN)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log, flush: flush}

	if err := cfg.ValidateStorage(); err != nil {
		a.close()
		return nil, err
	}
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.repo = repo
	return a, nil
}

func openRepository(ctx context.Context, cfg config.Config) (storage.Repository, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store, nil
	default:
		if dir := filepath.Dir(cfg.DBDSN); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		store, err := sqlite.Open(cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store, nil
	}
}

// connectChain dials url, which must be a WebSocket or IPC endpoint for subscriptions.
func (a *app) connectChain(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("rpc url is required")
	}
	client, err := chain.NewClient(ctx, url)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = client
	return nil
}

func (a *app) newReader() (*vault.Reader, error) {
	return vault.NewReader(a.chain, vault.ReaderConfig{
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
	}, a.logger)
}

func (a *app) newFetcher() (indexer.Fetcher, error) {
	if err := a.cfg.ValidateLogSource(); err != nil {
		return nil, err
	}
	if a.cfg.LogSource == config.SourceRPC {
		return indexer.NewRPCFetcher(indexer.RPCFetcherConfig{
			BatchSize:    a.cfg.RPCBatchSize,
			MaxRetries:   a.cfg.MaxRetries,
			RetryBackoff: a.cfg.RetryBackoff,
		}, a.chain, a.logger), nil
	}
	client, err := etherscan.NewClient(etherscan.Config{
		BaseURL:      a.cfg.EtherscanURL,
		APIKey:       a.cfg.EtherscanAPIKey,
		PageSize:     a.cfg.PageSize,
		ResultWindow: a.cfg.ResultWindow,
		Timeout:      a.cfg.HTTPTimeout,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (a *app) newJournal() storage.DecodeErrorSink {
	if a.cfg.Journal == "" {
		return nil
	}
	return storage.NewJsonlJournal(a.cfg.Journal)
}

func (a *app) newReconciler() (*indexer.Reconciler, error) {
	fetcher, err := a.newFetcher()
	if err != nil {
		return nil, err
	}
	reader, err := a.newReader()
	if err != nil {
		return nil, err
	}
	decoder, err := vault.NewDecoder()
	if err != nil {
		return nil, err
	}
	return indexer.NewReconciler(
		indexer.ReconcilerConfig{PassTimeout: a.cfg.PassTimeout},
		a.repo, fetcher, reader, decoder, a.newJournal(), metrics.Init(), a.logger,
	), nil
}

func (a *app) close() {
	if a.chain != nil {
		a.chain.Close()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("close repository", zap.Error(err))
		}
	}
	if a.flush != nil {
		a.flush()
	}
}

// serveMetrics exposes /metrics until ctx is cancelled. An empty addr disables it.
func serveMetrics(ctx context.Context, addr string, log *zap.Logger) {
	if addr == "" {
		return
	}
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics server listening", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
