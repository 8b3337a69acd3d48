package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vaultScope/internal/api"
	"vaultScope/internal/indexer"
	"vaultScope/internal/metrics"
	"vaultScope/internal/model"
	"vaultScope/internal/vault"
)

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func runAddVault(cmd *cobra.Command, args []string) error {
	address := firstArg(args)
	if _, err := indexer.ParseAddress(address); err != nil {
		return report(cmd.OutOrStdout(), []model.Result{indexer.ImportFailure(err)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectChain(ctx, a.cfg.RPCURL); err != nil {
		return err
	}
	reader, err := a.newReader()
	if err != nil {
		return err
	}

	result, err := indexer.NewImporter(a.repo, reader, a.logger).AddVault(ctx, address)
	if err != nil {
		result = indexer.ImportFailure(err)
	}
	return report(cmd.OutOrStdout(), []model.Result{result})
}

func runScanVault(cmd *cobra.Command, args []string) error {
	address := firstArg(args)
	if _, err := indexer.ParseAddress(address); err != nil {
		return report(cmd.OutOrStdout(), []model.Result{indexer.ScanFailure(err)})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectChain(ctx, a.cfg.RPCURL); err != nil {
		return err
	}
	reconciler, err := a.newReconciler()
	if err != nil {
		return err
	}

	results, err := reconciler.ScanVault(ctx, address)
	if err != nil {
		results = append(results, indexer.ScanFailure(err))
	}
	return report(cmd.OutOrStdout(), results)
}

func runScanAll(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.connectChain(ctx, a.cfg.RPCURL); err != nil {
		return err
	}
	reconciler, err := a.newReconciler()
	if err != nil {
		return err
	}

	a.logger.Info("scan-all start",
		zap.String("log_source", a.cfg.LogSource),
		zap.Int("concurrency", a.cfg.Concurrency),
	)
	scans, err := reconciler.ScanAll(ctx, a.cfg.Concurrency)
	if err != nil {
		return err
	}
	return reportScans(cmd.OutOrStdout(), scans)
}

func runSyncd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.ValidateRPC(); err != nil {
		return err
	}
	if err := a.connectChain(ctx, a.cfg.SubscriptionURL()); err != nil {
		return err
	}
	reader, err := a.newReader()
	if err != nil {
		return err
	}
	decoder, err := vault.NewDecoder()
	if err != nil {
		return err
	}

	serveMetrics(ctx, a.cfg.MetricsAddr, a.logger)

	live := indexer.NewLiveSyncer(indexer.LiveConfig{
		MaxRetries:   a.cfg.MaxRetries,
		RetryBackoff: a.cfg.RetryBackoff,
	}, a.repo, reader, decoder, a.chain, metrics.Init(), a.logger)

	a.logger.Info("syncd start", zap.String("endpoint", a.cfg.SubscriptionURL()))
	if err := live.Run(ctx); err != nil {
		return fmt.Errorf("live sync: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	serveMetrics(ctx, a.cfg.MetricsAddr, a.logger)

	server := api.New(api.Config{
		Debug:  a.cfg.LogLevel == "debug",
		Listen: a.cfg.Listen,
	}, a.repo, a.logger)
	return server.Run(ctx)
}
