package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultScope/internal/chain"
	"vaultScope/internal/model"
)

// Caller is the subset of the chain client used for view calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// ReaderConfig tunes view call retries.
type ReaderConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// AssetCache caches asset token metadata by address.
type AssetCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.Asset
}

func NewAssetCache() *AssetCache {
	return &AssetCache{data: make(map[common.Address]model.Asset)}
}

func (c *AssetCache) Get(address common.Address) (model.Asset, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *AssetCache) Set(address common.Address, meta model.Asset) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Reader reads vault and asset state through contract view functions.
type Reader struct {
	caller Caller
	cfg    ReaderConfig
	logger *zap.Logger
	assets *AssetCache

	vaultABI   abi.ABI
	erc20ABI   abi.ABI
	bytes32ABI abi.ABI
}

func NewReader(caller Caller, cfg ReaderConfig, logger *zap.Logger) (*Reader, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	vaultABI, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}
	erc20ABI, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	return &Reader{
		caller:     caller,
		cfg:        cfg,
		logger:     logger,
		assets:     NewAssetCache(),
		vaultABI:   vaultABI,
		erc20ABI:   erc20ABI,
		bytes32ABI: bytes32ABI,
	}, nil
}

// ReadVault loads the full current state of a vault and its asset.
// LastUpdateBlock is set to the chain head observed before the reads.
func (r *Reader) ReadVault(ctx context.Context, address common.Address) (model.Vault, error) {
	head, err := r.Head(ctx)
	if err != nil {
		return model.Vault{}, err
	}

	name, err := r.readString(ctx, address, "name")
	if err != nil {
		return model.Vault{}, err
	}
	symbol, err := r.readString(ctx, address, "symbol")
	if err != nil {
		return model.Vault{}, err
	}
	values, err := r.call(ctx, address, r.vaultABI, "decimals")
	if err != nil {
		return model.Vault{}, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return model.Vault{}, fmt.Errorf("decimals: %w", err)
	}

	values, err = r.call(ctx, address, r.vaultABI, "manager")
	if err != nil {
		return model.Vault{}, err
	}
	manager, err := asAddress(values[0])
	if err != nil {
		return model.Vault{}, fmt.Errorf("manager: %w", err)
	}

	values, err = r.call(ctx, address, r.vaultABI, "asset")
	if err != nil {
		return model.Vault{}, err
	}
	assetAddress, err := asAddress(values[0])
	if err != nil {
		return model.Vault{}, fmt.Errorf("asset: %w", err)
	}
	asset, err := r.ReadAsset(ctx, assetAddress)
	if err != nil {
		return model.Vault{}, err
	}

	aggregates, err := r.ReadAggregates(ctx, address, decimals)
	if err != nil {
		return model.Vault{}, err
	}

	v := model.Vault{
		Address:         address.Hex(),
		Name:            name,
		Symbol:          symbol,
		Decimals:        decimals,
		Manager:         manager.Hex(),
		LastUpdateBlock: head,
		Asset:           asset,
	}
	return v.WithAggregates(aggregates), nil
}

// ReadAggregates reads the vault's current totals and share price.
func (r *Reader) ReadAggregates(ctx context.Context, address common.Address, decimals uint8) (model.VaultAggregates, error) {
	totalAssets, err := r.readUint(ctx, address, r.vaultABI, "totalAssets")
	if err != nil {
		return model.VaultAggregates{}, err
	}
	assetsInUse, err := r.readUint(ctx, address, r.vaultABI, "assetsInUse")
	if err != nil {
		return model.VaultAggregates{}, err
	}
	totalSupply, err := r.readUint(ctx, address, r.vaultABI, "totalSupply")
	if err != nil {
		return model.VaultAggregates{}, err
	}
	sharePrice, err := r.readUint(ctx, address, r.vaultABI, "convertToAssets", OneShare(decimals))
	if err != nil {
		return model.VaultAggregates{}, err
	}

	return model.VaultAggregates{
		TotalSupply:           totalSupply.String(),
		AssetsUnderManagement: totalAssets.String(),
		AssetsInUse:           assetsInUse.String(),
		SharePrice:            sharePrice.String(),
	}, nil
}

// ReadAsset loads token metadata, serving repeated lookups from the cache.
func (r *Reader) ReadAsset(ctx context.Context, token common.Address) (model.Asset, error) {
	if asset, ok := r.assets.Get(token); ok {
		return asset, nil
	}

	asset := model.Asset{Address: token.Hex()}
	values, err := r.call(ctx, token, r.erc20ABI, "decimals")
	if err != nil {
		return asset, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return asset, fmt.Errorf("asset decimals: %w", err)
	}
	asset.Decimals = decimals

	if symbol, err := r.readString(ctx, token, "symbol"); err == nil {
		asset.Symbol = symbol
	} else {
		r.logger.Debug("asset symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	if name, err := r.readString(ctx, token, "name"); err == nil {
		asset.Name = name
	} else {
		r.logger.Debug("asset name call failed", zap.String("token", token.Hex()), zap.Error(err))
	}

	r.assets.Set(token, asset)
	return asset, nil
}

// ReadShareholderBalances returns the holder's vault share balance and asset token balance.
func (r *Reader) ReadShareholderBalances(ctx context.Context, vaultAddress, assetAddress, holder common.Address) (*big.Int, *big.Int, error) {
	shares, err := r.readUint(ctx, vaultAddress, r.vaultABI, "balanceOf", holder)
	if err != nil {
		return nil, nil, fmt.Errorf("share balance: %w", err)
	}
	assetBalance, err := r.readUint(ctx, assetAddress, r.erc20ABI, "balanceOf", holder)
	if err != nil {
		return nil, nil, fmt.Errorf("asset balance: %w", err)
	}
	return shares, assetBalance, nil
}

// Head returns the latest block number.
func (r *Reader) Head(ctx context.Context) (uint64, error) {
	var head uint64
	err := chain.Retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = r.caller.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}
	return head, nil
}

func (r *Reader) readUint(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.call(ctx, to, parsed, method, args...)
	if err != nil {
		return nil, err
	}
	out, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// readString reads a string getter, falling back to bytes32 for legacy tokens.
func (r *Reader) readString(ctx context.Context, to common.Address, method string) (string, error) {
	values, err := r.call(ctx, to, r.erc20ABI, method)
	if err == nil {
		if s, ok := values[0].(string); ok {
			return s, nil
		}
	}
	values, fallbackErr := r.call(ctx, to, r.bytes32ABI, method)
	if fallbackErr != nil {
		if err != nil {
			return "", err
		}
		return "", fallbackErr
	}
	s, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("%s: unexpected type %T", method, values[0])
	}
	return s, nil
}

func (r *Reader) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}

	var resp []byte
	err = chain.Retry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		resp, err = r.caller.CallContract(ctx, msg, nil)
		if chain.IsReverted(err) {
			return backoff.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return values, nil
}
