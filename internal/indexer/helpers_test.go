package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"

	"vaultScope/internal/model"
	"vaultScope/internal/storage/sqlite"
	"vaultScope/internal/vault"
)

var (
	testVault  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testAsset  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob        = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testSender = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func newRepo(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "vaults.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedVault(t *testing.T, repo *sqlite.Store, lastUpdateBlock uint64) model.Vault {
	t.Helper()
	v, err := repo.CreateVault(context.Background(), model.Vault{
		Address:               testVault.Hex(),
		Name:                  "Flakes USDC",
		Symbol:                "fUSDC",
		Decimals:              6,
		TotalSupply:           "0",
		AssetsUnderManagement: "0",
		AssetsInUse:           "0",
		SharePrice:            "1000000",
		Manager:               testSender.Hex(),
		LastUpdateBlock:       lastUpdateBlock,
		Asset:                 model.Asset{Address: testAsset.Hex(), Name: "USD Coin", Symbol: "USDC", Decimals: 6},
	})
	require.NoError(t, err)
	return v
}

func newDecoder(t *testing.T) *vault.Decoder {
	t.Helper()
	decoder, err := vault.NewDecoder()
	require.NoError(t, err)
	return decoder
}

type fakeFetcher struct {
	mu    sync.Mutex
	logs  []model.LogRecord
	err   error
	froms []uint64
	// delay simulates a slow upstream that ignores cancellation.
	delay time.Duration
}

func (f *fakeFetcher) FetchLogs(ctx context.Context, address string, fromBlock uint64) ([]model.LogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.froms = append(f.froms, fromBlock)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.LogRecord, len(f.logs))
	copy(out, f.logs)
	return out, nil
}

type fakeReader struct {
	mu         sync.Mutex
	head       uint64
	aggregates model.VaultAggregates
	aggErr     error
	vault      model.Vault
	shares     map[common.Address]*big.Int
	aggCalls   int
}

func newFakeReader(head uint64) *fakeReader {
	return &fakeReader{
		head: head,
		aggregates: model.VaultAggregates{
			TotalSupply:           "5000000",
			AssetsUnderManagement: "5500000",
			AssetsInUse:           "1000000",
			SharePrice:            "1100000",
		},
		shares: make(map[common.Address]*big.Int),
	}
}

func (f *fakeReader) Head(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeReader) ReadVault(ctx context.Context, address common.Address) (model.Vault, error) {
	if f.vault.Address == "" {
		return model.Vault{}, errors.New("execution reverted")
	}
	return f.vault, nil
}

func (f *fakeReader) ReadAggregates(ctx context.Context, address common.Address, decimals uint8) (model.VaultAggregates, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aggCalls++
	if f.aggErr != nil {
		return model.VaultAggregates{}, f.aggErr
	}
	return f.aggregates, nil
}

func (f *fakeReader) ReadShareholderBalances(ctx context.Context, vaultAddress, assetAddress, holder common.Address) (*big.Int, *big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shares, ok := f.shares[holder]
	if !ok {
		shares = big.NewInt(0)
	}
	return shares, big.NewInt(12345), nil
}

type memoryJournal struct {
	records []model.DecodeError
}

func (j *memoryJournal) PutDecodeErrors(errs []model.DecodeError) error {
	j.records = append(j.records, errs...)
	return nil
}

// logBuilder encodes vault logs the way a node would deliver them.
type logBuilder struct {
	t      *testing.T
	parsed abi.ABI
}

func newLogBuilder(t *testing.T) logBuilder {
	t.Helper()
	parsed, err := vault.VaultABI()
	require.NoError(t, err)
	return logBuilder{t: t, parsed: parsed}
}

func (e logBuilder) topics(name string) common.Hash {
	return e.parsed.Events[name].ID
}

func (e logBuilder) pack(name string, args ...interface{}) []byte {
	data, err := e.parsed.Events[name].Inputs.NonIndexed().Pack(args...)
	require.NoError(e.t, err)
	return data
}

func (e logBuilder) whitelist(holder common.Address, block, logIndex uint64) model.LogRecord {
	return logRecord(e.topics(model.EventWhitelistShareholder), nil, block, logIndex, addressTopic(holder))
}

func (e logBuilder) revoke(holder common.Address, block, logIndex uint64) model.LogRecord {
	return logRecord(e.topics(model.EventRevokeShareholder), nil, block, logIndex, addressTopic(holder))
}

func (e logBuilder) deposit(owner common.Address, block, logIndex uint64, assets, shares int64) model.LogRecord {
	data := e.pack(model.EventDeposit, big.NewInt(assets), big.NewInt(shares))
	return logRecord(e.topics(model.EventDeposit), data, block, logIndex, addressTopic(testSender), addressTopic(owner))
}

func (e logBuilder) withdraw(owner common.Address, block, logIndex uint64, assets, shares int64) model.LogRecord {
	data := e.pack(model.EventWithdraw, big.NewInt(assets), big.NewInt(shares))
	return logRecord(e.topics(model.EventWithdraw), data, block, logIndex, addressTopic(testSender), addressTopic(owner), addressTopic(owner))
}

func (e logBuilder) gains(block, logIndex uint64) model.LogRecord {
	return logRecord(e.topics(model.EventGains), e.pack(model.EventGains, big.NewInt(1)), block, logIndex)
}

func unknownLog(block, logIndex uint64) model.LogRecord {
	return logRecord(common.HexToHash("0xdeadbeef"), nil, block, logIndex)
}

func logRecord(topic0 common.Hash, data []byte, block, logIndex uint64, indexed ...common.Hash) model.LogRecord {
	topics := []string{topic0.Hex()}
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		Address:     testVault.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + logIndex)).Hex(),
		TxIndex:     1,
		LogIndex:    logIndex,
		Timestamp:   1700000000 + block,
	}
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func codes(results []model.Result) []int {
	out := make([]int, 0, len(results))
	for _, r := range results {
		out = append(out, r.Code)
	}
	return out
}
