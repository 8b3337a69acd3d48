package indexer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFilterer struct {
	head     uint64
	logs     []types.Log
	failures int
	calls    [][2]uint64
}

func (f *fakeFilterer) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeFilterer) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.calls = append(f.calls, [2]uint64{fromBlock, toBlock})
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("503 service unavailable")
	}
	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= fromBlock && l.BlockNumber <= toBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeFilterer) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 1700000000 + number, nil
}

func TestRPCFetcherPagesRanges(t *testing.T) {
	b := newLogBuilder(t)
	dup := toTypesLog(t, b.deposit(alice, 150, 0, 1, 1))
	removed := toTypesLog(t, b.deposit(alice, 160, 1, 1, 1))
	removed.Removed = true
	chain := &fakeFilterer{head: 250, failures: 1, logs: []types.Log{
		toTypesLog(t, b.whitelist(alice, 100, 0)),
		dup,
		dup,
		removed,
		toTypesLog(t, b.deposit(alice, 240, 0, 1, 1)),
	}}
	fetcher := NewRPCFetcher(RPCFetcherConfig{BatchSize: 100, MaxRetries: 2, RetryBackoff: time.Millisecond}, chain, nil)

	logs, err := fetcher.FetchLogs(context.Background(), testVault.Hex(), 100)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, uint64(100), logs[0].BlockNumber)
	assert.Equal(t, uint64(1700000150), logs[1].Timestamp)
	assert.Equal(t, uint64(240), logs[2].BlockNumber)
	assert.Equal(t, [][2]uint64{{100, 199}, {100, 199}, {200, 250}}, chain.calls)
}

func TestRPCFetcherFromBeyondHead(t *testing.T) {
	fetcher := NewRPCFetcher(RPCFetcherConfig{}, &fakeFilterer{head: 10}, nil)
	logs, err := fetcher.FetchLogs(context.Background(), testVault.Hex(), 11)
	require.NoError(t, err)
	assert.Empty(t, logs)

	_, err = fetcher.FetchLogs(context.Background(), "0x12", 0)
	require.Error(t, err)
}
