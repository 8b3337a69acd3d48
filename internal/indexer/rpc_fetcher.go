package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"vaultScope/internal/chain"
	"vaultScope/internal/model"
)

// RPCFetcherConfig holds eth_getLogs paging settings.
type RPCFetcherConfig struct {
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// RPCFetcher fetches logs straight from a node in fixed block ranges.
type RPCFetcher struct {
	cfg    RPCFetcherConfig
	chain  LogFilterer
	logger *zap.Logger
}

func NewRPCFetcher(cfg RPCFetcherConfig, chainClient LogFilterer, logger *zap.Logger) *RPCFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	return &RPCFetcher{cfg: cfg, chain: chainClient, logger: logger}
}

// FetchLogs returns the contract's logs from fromBlock to the current head.
func (f *RPCFetcher) FetchLogs(ctx context.Context, address string, fromBlock uint64) ([]model.LogRecord, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address: %s", address)
	}
	addresses := []common.Address{common.HexToAddress(address)}

	var to uint64
	err := chain.Retry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		to, err = f.chain.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	if fromBlock > to {
		return nil, nil
	}

	ranges, err := SplitRange(fromBlock, to, f.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var out []model.LogRecord
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logs, err := f.filterLogsWithRetry(ctx, blockRange, addresses)
		if err != nil {
			return nil, fmt.Errorf("filter logs: %w", err)
		}

		for _, log := range logs {
			if log.Removed {
				continue
			}
			id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			ts, err := f.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			out = append(out, buildLogRecord(log, ts))
		}

		f.logger.Debug("rpc range fetched",
			zap.String("address", address),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("blocks", blockRange.Len()),
			zap.Int("logs", len(logs)),
		)
	}
	return out, nil
}

func (f *RPCFetcher) filterLogsWithRetry(ctx context.Context, blockRange BlockRange, addresses []common.Address) ([]types.Log, error) {
	var logs []types.Log
	err := chain.Retry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = f.chain.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, nil)
		if err != nil {
			f.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
		}
		return err
	})
	return logs, err
}

func (f *RPCFetcher) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := chain.Retry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = f.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			f.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}
