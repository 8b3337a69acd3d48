package indexer

import (
	"context"
	"fmt"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"vaultScope/internal/model"
)

// VaultScan is the outcome of one pass started by ScanAll.
type VaultScan struct {
	Vault   string
	Name    string
	Results []model.Result
	Err     error
}

// ScanAll runs one pass per stored vault on a bounded worker pool.
// Results keep the repository's vault order.
func (r *Reconciler) ScanAll(ctx context.Context, concurrency int) ([]VaultScan, error) {
	vaults, err := r.repo.ListVaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	pool := pond.NewResultPool[VaultScan](concurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	tasks := make([]pond.Result[VaultScan], 0, len(vaults))
	for _, v := range vaults {
		v := v
		tasks = append(tasks, pool.Submit(func() VaultScan {
			results, err := r.ScanVault(ctx, v.Address)
			return VaultScan{Vault: v.Address, Name: v.Name, Results: results, Err: err}
		}))
	}

	out := make([]VaultScan, 0, len(tasks))
	for i, task := range tasks {
		scan, err := task.Wait()
		if err != nil {
			scan = VaultScan{Vault: vaults[i].Address, Name: vaults[i].Name, Err: err}
		}
		out = append(out, scan)
	}

	r.logger.Info("scan-all complete", zap.Int("vaults", len(out)), zap.Int("concurrency", concurrency))
	return out, nil
}
