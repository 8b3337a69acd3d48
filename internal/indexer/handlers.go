package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

// handlers apply decoded vault events to the repository. They are shared by the
// reconciler and the live driver and never abort the caller: every outcome is a Result.
type handlers struct {
	repo   storage.Repository
	logger *zap.Logger
}

func (h *handlers) apply(ctx context.Context, vault model.Vault, event model.VaultEvent) model.Result {
	if event.Ignored {
		return model.Success("Ignored event: " + event.Name)
	}

	switch event.Name {
	case model.EventWhitelistShareholder, model.EventRevokeShareholder:
		data, ok := event.AllowList()
		if !ok {
			return model.Failure(model.CodeDecodeError, "missing payload for "+event.Name)
		}
		return h.setAllowListed(ctx, vault, event.Name, data.Shareholder)
	case model.EventDeposit, model.EventWithdraw:
		data, ok := event.Flow()
		if !ok {
			return model.Failure(model.CodeDecodeError, "missing payload for "+event.Name)
		}
		shareholder, err := h.repo.FindShareholder(ctx, vault.ID, data.Owner)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				code := model.CodeDepositShareholderMissing
				if event.Name == model.EventWithdraw {
					code = model.CodeWithdrawShareholderMissing
				}
				return model.Failure(code, fmt.Sprintf("Shareholder %s not found in vault %s", data.Owner, vault.Address))
			}
			return model.Failure(model.CodeLedgerPersistFailed, err.Error())
		}
		return h.recordTransaction(ctx, vault, shareholder, event, data)
	default:
		return model.Success("Ignored event: " + event.Name)
	}
}

func (h *handlers) setAllowListed(ctx context.Context, vault model.Vault, name, address string) model.Result {
	isRemoved := name == model.EventRevokeShareholder
	if _, err := h.repo.UpsertShareholderStatus(ctx, vault.ID, address, isRemoved); err != nil {
		return model.Failure(model.CodeLedgerPersistFailed, err.Error())
	}
	return model.Success(fmt.Sprintf("%s event handled for vault %s, shareholder %s", name, vault.Address, address))
}

// recordTransaction appends the ledger row. An existing (shareholder, tx hash, log index)
// is reported as success.
func (h *handlers) recordTransaction(ctx context.Context, vault model.Vault, shareholder model.Shareholder, event model.VaultEvent, data model.FlowEventData) model.Result {
	kind := model.TxKindDeposit
	if event.Name == model.EventWithdraw {
		kind = model.TxKindWithdraw
	}

	inserted, err := h.repo.TryInsertShareholderTransaction(ctx, model.ShareholderTransaction{
		ShareholderID: shareholder.ID,
		VaultID:       vault.ID,
		TxHash:        event.Log.TxHash,
		LogIndex:      event.Log.LogIndex,
		TxIndex:       event.Log.TxIndex,
		Kind:          kind,
		Assets:        data.Assets.String(),
		Shares:        data.Shares.String(),
		Timestamp:     time.Unix(int64(event.Log.Timestamp), 0).UTC(),
	})
	if err != nil {
		h.logger.Error("ledger insert failed",
			zap.String("vault", vault.Address),
			zap.String("tx_hash", event.Log.TxHash),
			zap.Uint64("log_index", event.Log.LogIndex),
			zap.Error(err),
		)
		return model.Failure(model.CodeLedgerPersistFailed, err.Error())
	}
	if !inserted {
		return model.Success(fmt.Sprintf("Skipping duplicate %s event: %s", event.Name, event.Log.TxHash))
	}
	return model.Success(fmt.Sprintf("%s event handled for vault %s, shareholder %s, txHash %s",
		event.Name, vault.Address, data.Owner, event.Log.TxHash))
}
