package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	mu       sync.Mutex
	head     uint64
	results  map[string]func(args []interface{}) ([]interface{}, error)
	bytes32  map[string]bool
	failures int
	calls    map[string]int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		head:    500,
		results: make(map[string]func(args []interface{}) ([]interface{}, error)),
		bytes32: make(map[string]bool),
		calls:   make(map[string]int),
	}
}

func (f *fakeCaller) on(to common.Address, method string, fn func(args []interface{}) ([]interface{}, error)) {
	f.results[to.Hex()+"."+method] = fn
}

func (f *fakeCaller) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("temporary rpc failure")
	}

	vaultABI, _ := VaultABI()
	method, err := vaultABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	key := msg.To.Hex() + "." + method.Name
	f.calls[key]++
	fn, ok := f.results[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s", key)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := fn(args)
	if err != nil {
		return nil, err
	}
	if f.bytes32[key] {
		bytes32ABI, _ := erc20ABIBytes32Instance()
		return bytes32ABI.Methods[method.Name].Outputs.Pack(out...)
	}
	return method.Outputs.Pack(out...)
}

func constant(values ...interface{}) func([]interface{}) ([]interface{}, error) {
	return func([]interface{}) ([]interface{}, error) { return values, nil }
}

func bytes32(s string) [32]byte {
	var out [32]byte
	copy(out[:], s)
	return out
}

var (
	readerVault  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	readerAsset  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	readerHolder = common.HexToAddress("0x3333333333333333333333333333333333333333")
	readerMgr    = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func stubVault(f *fakeCaller) {
	big1e18, _ := new(big.Int).SetString("1000000000000000000", 10)
	f.on(readerVault, "name", constant("Flakes USDC"))
	f.on(readerVault, "symbol", constant("fUSDC"))
	f.on(readerVault, "decimals", constant(uint8(18)))
	f.on(readerVault, "manager", constant(readerMgr))
	f.on(readerVault, "asset", constant(readerAsset))
	f.on(readerVault, "totalAssets", constant(new(big.Int).Mul(big1e18, big.NewInt(1000))))
	f.on(readerVault, "assetsInUse", constant(big.NewInt(250)))
	f.on(readerVault, "totalSupply", constant(new(big.Int).Mul(big1e18, big.NewInt(900))))
	f.on(readerVault, "convertToAssets", func(args []interface{}) ([]interface{}, error) {
		shares := args[0].(*big.Int)
		return []interface{}{new(big.Int).Div(new(big.Int).Mul(shares, big.NewInt(11)), big.NewInt(10))}, nil
	})
	f.on(readerVault, "balanceOf", constant(big.NewInt(77)))
	f.on(readerAsset, "decimals", constant(uint8(6)))
	f.on(readerAsset, "symbol", constant("USDC"))
	f.on(readerAsset, "name", constant("USD Coin"))
	f.on(readerAsset, "balanceOf", constant(big.NewInt(5000)))
}

func TestReaderReadVault(t *testing.T) {
	caller := newFakeCaller()
	stubVault(caller)

	reader, err := NewReader(caller, ReaderConfig{RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	v, err := reader.ReadVault(context.Background(), readerVault)
	require.NoError(t, err)

	assert.Equal(t, readerVault.Hex(), v.Address)
	assert.Equal(t, "Flakes USDC", v.Name)
	assert.Equal(t, "fUSDC", v.Symbol)
	assert.Equal(t, uint8(18), v.Decimals)
	assert.Equal(t, readerMgr.Hex(), v.Manager)
	assert.Equal(t, uint64(500), v.LastUpdateBlock)
	assert.Equal(t, "1000000000000000000000", v.AssetsUnderManagement)
	assert.Equal(t, "900000000000000000000", v.TotalSupply)
	assert.Equal(t, "250", v.AssetsInUse)
	assert.Equal(t, "1100000000000000000", v.SharePrice)
	assert.Equal(t, readerAsset.Hex(), v.Asset.Address)
	assert.Equal(t, "USDC", v.Asset.Symbol)
	assert.Equal(t, "USD Coin", v.Asset.Name)
	assert.Equal(t, uint8(6), v.Asset.Decimals)
}

func TestReaderAssetCacheAndBytes32Fallback(t *testing.T) {
	caller := newFakeCaller()
	stubVault(caller)
	caller.on(readerAsset, "symbol", constant(bytes32("MKR")))
	caller.on(readerAsset, "name", constant(bytes32("Maker")))
	caller.bytes32[readerAsset.Hex()+".symbol"] = true
	caller.bytes32[readerAsset.Hex()+".name"] = true

	reader, err := NewReader(caller, ReaderConfig{RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	asset, err := reader.ReadAsset(context.Background(), readerAsset)
	require.NoError(t, err)
	assert.Equal(t, "MKR", asset.Symbol)
	assert.Equal(t, "Maker", asset.Name)

	_, err = reader.ReadAsset(context.Background(), readerAsset)
	require.NoError(t, err)
	assert.Equal(t, 1, caller.calls[readerAsset.Hex()+".decimals"])
}

func TestReaderRetriesCalls(t *testing.T) {
	caller := newFakeCaller()
	stubVault(caller)
	caller.failures = 2

	reader, err := NewReader(caller, ReaderConfig{MaxRetries: 3, RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	agg, err := reader.ReadAggregates(context.Background(), readerVault, 18)
	require.NoError(t, err)
	assert.Equal(t, "250", agg.AssetsInUse)
}

func TestReaderShareholderBalances(t *testing.T) {
	caller := newFakeCaller()
	stubVault(caller)

	reader, err := NewReader(caller, ReaderConfig{RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	shares, assets, err := reader.ReadShareholderBalances(context.Background(), readerVault, readerAsset, readerHolder)
	require.NoError(t, err)
	assert.Equal(t, "77", shares.String())
	assert.Equal(t, "5000", assets.String())
}

func TestReaderSurfacesRevert(t *testing.T) {
	caller := newFakeCaller()

	reader, err := NewReader(caller, ReaderConfig{RetryBackoff: time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = reader.ReadAggregates(context.Background(), readerVault, 18)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "totalAssets")
}


func TestReaderDoesNotRetryRevert(t *testing.T) {
	caller := newFakeCaller()

	reader, err := NewReader(caller, ReaderConfig{MaxRetries: 3, RetryBackoff: time.Hour}, nil)
	require.NoError(t, err)

	_, err = reader.ReadAggregates(context.Background(), readerVault, 18)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Equal(t, 1, caller.calls[readerVault.Hex()+".totalAssets"])
}
