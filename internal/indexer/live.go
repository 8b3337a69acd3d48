package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vaultScope/internal/chain"
	"vaultScope/internal/metrics"
	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

// LiveConfig holds live driver settings.
type LiveConfig struct {
	MaxRetries       int
	RetryBackoff     time.Duration
	ResubscribeDelay time.Duration
	ResubscribeMax   time.Duration
}

// LiveSyncer keeps stored vaults in sync from push-delivered Deposit and Withdraw logs.
// It never touches the vault watermark.
type LiveSyncer struct {
	cfg      LiveConfig
	repo     storage.Repository
	reader   VaultReader
	decoder  EventDecoder
	source   Subscriber
	metrics  *metrics.Metrics
	logger   *zap.Logger
	handlers *handlers
}

func NewLiveSyncer(
	cfg LiveConfig,
	repo storage.Repository,
	reader VaultReader,
	decoder EventDecoder,
	source Subscriber,
	m *metrics.Metrics,
	logger *zap.Logger,
) *LiveSyncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = time.Second
	}
	if cfg.ResubscribeMax <= 0 {
		cfg.ResubscribeMax = time.Minute
	}
	return &LiveSyncer{
		cfg:      cfg,
		repo:     repo,
		reader:   reader,
		decoder:  decoder,
		source:   source,
		metrics:  m,
		logger:   logger,
		handlers: &handlers{repo: repo, logger: logger},
	}
}

// Run watches every stored vault until ctx is cancelled.
func (l *LiveSyncer) Run(ctx context.Context) error {
	vaults, err := l.repo.ListVaults(ctx)
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}
	if len(vaults) == 0 {
		return fmt.Errorf("no vaults to watch")
	}

	topics, err := l.topics()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, v := range vaults {
		wg.Add(1)
		go func(v model.Vault) {
			defer wg.Done()
			l.watch(ctx, v, topics)
		}(v)
	}
	l.logger.Info("live sync started", zap.Int("vaults", len(vaults)))

	wg.Wait()
	return nil
}

func (l *LiveSyncer) topics() ([]common.Hash, error) {
	deposit, ok := l.decoder.Topic(model.EventDeposit)
	if !ok {
		return nil, fmt.Errorf("deposit topic unavailable")
	}
	withdraw, ok := l.decoder.Topic(model.EventWithdraw)
	if !ok {
		return nil, fmt.Errorf("withdraw topic unavailable")
	}
	return []common.Hash{deposit, withdraw}, nil
}

// watch holds a subscription for one vault, resubscribing with backoff on failure.
func (l *LiveSyncer) watch(ctx context.Context, v model.Vault, topics []common.Hash) {
	log := l.logger.With(zap.String("vault", v.Address))
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.ResubscribeDelay
	b.MaxInterval = l.cfg.ResubscribeMax
	b.MaxElapsedTime = 0

	for {
		delivered, err := l.subscribeOnce(ctx, v, topics)
		if ctx.Err() != nil {
			return
		}
		if delivered {
			b.Reset()
		}

		delay := b.NextBackOff()
		log.Warn("subscription lost, resubscribing", zap.Error(err), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (l *LiveSyncer) subscribeOnce(ctx context.Context, v model.Vault, topics []common.Hash) (bool, error) {
	logs := make(chan types.Log, 64)
	sub, err := l.source.SubscribeLogs(ctx, []common.Address{common.HexToAddress(v.Address)}, topics, logs)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	return l.consume(ctx, sub.Err(), logs)
}

// consume applies delivered logs until the subscription fails or ctx is done.
// It reports whether at least one log was delivered.
func (l *LiveSyncer) consume(ctx context.Context, errs <-chan error, logs <-chan types.Log) (bool, error) {
	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case err, ok := <-errs:
			if !ok || err == nil {
				err = errors.New("subscription closed")
			}
			return delivered, fmt.Errorf("subscription error: %w", err)
		case raw := <-logs:
			delivered = true
			result := l.HandleLog(ctx, raw)
			fields := []zap.Field{
				zap.String("vault", raw.Address.Hex()),
				zap.Uint64("block", raw.BlockNumber),
				zap.String("tx_hash", raw.TxHash.Hex()),
			}
			if result.OK() {
				l.logger.Info(result.Message, fields...)
			} else {
				l.logger.Error(result.Message, append(fields, zap.Int("code", result.Code))...)
			}
		}
	}
}

// HandleLog applies one push-delivered log: refresh the vault's aggregates, refresh the
// owner's balances (creating the shareholder if needed), then append the ledger row.
func (l *LiveSyncer) HandleLog(ctx context.Context, raw types.Log) model.Result {
	if raw.Removed {
		return model.Success("Ignored removed log: " + raw.TxHash.Hex())
	}

	var ts uint64
	err := chain.Retry(ctx, l.cfg.MaxRetries, l.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = l.source.BlockTimestamp(ctx, raw.BlockNumber)
		return err
	})
	if err != nil {
		return model.Failure(model.CodeFetchFailed, fmt.Sprintf("block timestamp %d: %v", raw.BlockNumber, err))
	}
	record := buildLogRecord(raw, ts)

	event, err := l.decoder.Decode(record)
	if err != nil {
		result, _ := classifyDecodeFailure(record.Address, record, err)
		return result
	}
	data, ok := event.Flow()
	if !ok {
		return model.Success("Ignored event: " + event.Name)
	}
	l.metrics.LiveEvent(event.Name)

	v, err := l.repo.FindVaultByAddress(ctx, record.Address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Success("Vault " + record.Address + " is not tracked, skipping")
		}
		return model.Failure(model.CodeVaultPersistFailed, fmt.Sprintf("load vault: %v", err))
	}

	vaultAddress := common.HexToAddress(v.Address)
	aggregates, err := l.reader.ReadAggregates(ctx, vaultAddress, v.Decimals)
	if err != nil {
		return model.Failure(model.CodeVaultPersistFailed, fmt.Sprintf("refresh aggregates: %v", err))
	}
	if err := l.repo.UpsertVault(ctx, v.WithAggregates(aggregates)); err != nil {
		return model.Failure(model.CodeVaultPersistFailed, err.Error())
	}

	shares, assetBalance, err := l.reader.ReadShareholderBalances(ctx, vaultAddress, common.HexToAddress(v.Asset.Address), common.HexToAddress(data.Owner))
	if err != nil {
		return model.Failure(model.CodeLedgerPersistFailed, fmt.Sprintf("shareholder balances: %v", err))
	}
	shareholder, err := l.repo.UpsertShareholderBalances(ctx, v.ID, data.Owner, shares.String(), assetBalance.String())
	if err != nil {
		return model.Failure(model.CodeLedgerPersistFailed, err.Error())
	}

	return l.handlers.recordTransaction(ctx, v, shareholder, event, data)
}
