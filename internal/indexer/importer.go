package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

// Importer performs the first-time import of a vault.
type Importer struct {
	repo   storage.Repository
	reader VaultReader
	logger *zap.Logger
}

func NewImporter(repo storage.Repository, reader VaultReader, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{repo: repo, reader: reader, logger: logger}
}

// AddVault reads the vault's current contract state and persists it with its asset.
// The initial watermark is the chain head observed during the read.
func (i *Importer) AddVault(ctx context.Context, address string) (model.Result, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return model.Result{}, err
	}

	existing, err := i.repo.FindVaultByAddress(ctx, addr.Hex())
	switch {
	case err == nil:
		return model.Result{}, fmt.Errorf("vault %s already present: %w", existing.Name, storage.ErrAlreadyExists)
	case !errors.Is(err, storage.ErrNotFound):
		return model.Result{}, fmt.Errorf("load vault: %w", err)
	}

	v, err := i.reader.ReadVault(ctx, addr)
	if err != nil {
		return model.Result{}, fmt.Errorf("read vault %s: %w", addr.Hex(), err)
	}

	created, err := i.repo.CreateVault(ctx, v)
	if err != nil {
		return model.Result{}, err
	}

	i.logger.Info("vault imported",
		zap.String("vault", created.Address),
		zap.String("name", created.Name),
		zap.String("asset", created.Asset.Address),
		zap.Uint64("last_update_block", created.LastUpdateBlock),
	)
	return model.Success("Vault " + created.Name + " has been added."), nil
}
