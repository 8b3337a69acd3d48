package indexer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"vaultScope/internal/model"
)

// Fetcher returns every log of a contract from fromBlock (inclusive) to the chain head,
// ordered by (block, log index).
type Fetcher interface {
	FetchLogs(ctx context.Context, address string, fromBlock uint64) ([]model.LogRecord, error)
}

// VaultReader reads contract state through view functions.
type VaultReader interface {
	Head(ctx context.Context) (uint64, error)
	ReadVault(ctx context.Context, address common.Address) (model.Vault, error)
	ReadAggregates(ctx context.Context, address common.Address, decimals uint8) (model.VaultAggregates, error)
	ReadShareholderBalances(ctx context.Context, vaultAddress, assetAddress, holder common.Address) (*big.Int, *big.Int, error)
}

// EventDecoder classifies raw logs against the vault interface.
type EventDecoder interface {
	Decode(log model.LogRecord) (model.VaultEvent, error)
	Topic(name string) (common.Hash, bool)
}

// Subscriber opens push subscriptions for contract logs.
type Subscriber interface {
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// LogFilterer is the chain access used by the RPC log fetcher.
type LogFilterer interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}
