package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"vaultScope/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a create violates a uniqueness constraint.
	ErrAlreadyExists = errors.New("already exists")
)

// Repository persists the vault projection.
// Addresses are compared case-insensitively; rows store the checksummed form.
type Repository interface {
	// CreateVault inserts a vault and its asset atomically.
	CreateVault(ctx context.Context, vault model.Vault) (model.Vault, error)
	FindVaultByAddress(ctx context.Context, address string) (model.Vault, error)
	ListVaults(ctx context.Context) ([]model.Vault, error)
	// UpsertVault writes the vault row keyed by address. The stored
	// LastUpdateBlock never decreases.
	UpsertVault(ctx context.Context, vault model.Vault) error

	FindShareholder(ctx context.Context, vaultID int64, address string) (model.Shareholder, error)
	ListShareholders(ctx context.Context, vaultID int64) ([]model.Shareholder, error)
	// UpsertShareholderStatus creates the shareholder or sets its allow-list flag.
	UpsertShareholderStatus(ctx context.Context, vaultID int64, address string, isRemoved bool) (model.Shareholder, error)
	// UpsertShareholderBalances creates the shareholder or refreshes its balances,
	// leaving the allow-list flag untouched.
	UpsertShareholderBalances(ctx context.Context, vaultID int64, address, shares, assetBalance string) (model.Shareholder, error)

	// TryInsertShareholderTransaction appends a ledger row. It reports false
	// without error when (shareholder, tx hash, log index) already exists.
	TryInsertShareholderTransaction(ctx context.Context, tx model.ShareholderTransaction) (bool, error)
	ListShareholderTransactions(ctx context.Context, shareholderID int64) ([]model.ShareholderTransaction, error)

	Ping(ctx context.Context) error
	Close() error
}

// NormalizeAddress returns the checksummed form of a hex address.
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).Hex()
}
