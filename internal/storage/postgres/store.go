package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

const uniqueViolation = "23505"

// Store provides Postgres persistence for the vault projection.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateVault inserts the vault and its asset in one transaction.
func (s *Store) CreateVault(ctx context.Context, vault model.Vault) (model.Vault, error) {
	vault.Address = storage.NormalizeAddress(vault.Address)
	vault.Asset.Address = storage.NormalizeAddress(vault.Asset.Address)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Vault{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO vaults (
			address, name, symbol, decimals, total_supply, assets_under_management,
			assets_in_use, share_price, manager, last_update_block, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, now(), now())
		ON CONFLICT (address) DO NOTHING
		RETURNING id
	`,
		vault.Address,
		vault.Name,
		vault.Symbol,
		int16(vault.Decimals),
		numeric(vault.TotalSupply),
		numeric(vault.AssetsUnderManagement),
		numeric(vault.AssetsInUse),
		numeric(vault.SharePrice),
		vault.Manager,
		int64(vault.LastUpdateBlock),
	)
	if err := row.Scan(&vault.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vault{}, fmt.Errorf("vault %s: %w", vault.Address, storage.ErrAlreadyExists)
		}
		return model.Vault{}, fmt.Errorf("insert vault: %w", err)
	}

	vault.Asset.VaultID = vault.ID
	row = tx.QueryRow(ctx, `
		INSERT INTO assets (vault_id, address, name, symbol, decimals, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id
	`, vault.ID, vault.Asset.Address, vault.Asset.Name, vault.Asset.Symbol, int16(vault.Asset.Decimals))
	if err := row.Scan(&vault.Asset.ID); err != nil {
		return model.Vault{}, fmt.Errorf("insert asset: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Vault{}, err
	}
	return vault, nil
}

const vaultColumns = `
	v.id, v.address, v.name, v.symbol, v.decimals, v.total_supply::text, v.assets_under_management::text,
	v.assets_in_use::text, v.share_price::text, v.manager, v.last_update_block,
	a.id, a.vault_id, a.address, a.name, a.symbol, a.decimals`

func scanVault(row pgx.Row) (model.Vault, error) {
	var (
		v             model.Vault
		decimals      int16
		assetDecimals int16
		block         int64
	)
	err := row.Scan(
		&v.ID, &v.Address, &v.Name, &v.Symbol, &decimals, &v.TotalSupply, &v.AssetsUnderManagement,
		&v.AssetsInUse, &v.SharePrice, &v.Manager, &block,
		&v.Asset.ID, &v.Asset.VaultID, &v.Asset.Address, &v.Asset.Name, &v.Asset.Symbol, &assetDecimals,
	)
	if err != nil {
		return model.Vault{}, err
	}
	v.Decimals = uint8(decimals)
	v.Asset.Decimals = uint8(assetDecimals)
	v.LastUpdateBlock = uint64(block)
	return v, nil
}

func (s *Store) FindVaultByAddress(ctx context.Context, address string) (model.Vault, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vaultColumns+`
		FROM vaults v JOIN assets a ON a.vault_id = v.id
		WHERE v.address = $1
	`, storage.NormalizeAddress(address))
	v, err := scanVault(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Vault{}, storage.ErrNotFound
		}
		return model.Vault{}, fmt.Errorf("find vault: %w", err)
	}
	return v, nil
}

func (s *Store) ListVaults(ctx context.Context) ([]model.Vault, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vaultColumns+`
		FROM vaults v JOIN assets a ON a.vault_id = v.id
		ORDER BY v.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	defer rows.Close()

	var out []model.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vault: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertVault writes the vault row. last_update_block only moves forward.
func (s *Store) UpsertVault(ctx context.Context, vault model.Vault) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO vaults (
			address, name, symbol, decimals, total_supply, assets_under_management,
			assets_in_use, share_price, manager, last_update_block, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, now(), now())
		ON CONFLICT (address)
		DO UPDATE SET
			total_supply = EXCLUDED.total_supply,
			assets_under_management = EXCLUDED.assets_under_management,
			assets_in_use = EXCLUDED.assets_in_use,
			share_price = EXCLUDED.share_price,
			manager = EXCLUDED.manager,
			last_update_block = GREATEST(vaults.last_update_block, EXCLUDED.last_update_block),
			updated_at = now()
	`,
		storage.NormalizeAddress(vault.Address),
		vault.Name,
		vault.Symbol,
		int16(vault.Decimals),
		numeric(vault.TotalSupply),
		numeric(vault.AssetsUnderManagement),
		numeric(vault.AssetsInUse),
		numeric(vault.SharePrice),
		vault.Manager,
		int64(vault.LastUpdateBlock),
	)
	if err != nil {
		return fmt.Errorf("upsert vault: %w", err)
	}
	return nil
}

const shareholderColumns = `id, vault_id, address, shares::text, asset_balance::text, is_removed`

func scanShareholder(row pgx.Row) (model.Shareholder, error) {
	var sh model.Shareholder
	err := row.Scan(&sh.ID, &sh.VaultID, &sh.Address, &sh.Shares, &sh.AssetBalance, &sh.IsRemoved)
	return sh, err
}

func (s *Store) FindShareholder(ctx context.Context, vaultID int64, address string) (model.Shareholder, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+shareholderColumns+`
		FROM shareholders WHERE vault_id = $1 AND address = $2
	`, vaultID, storage.NormalizeAddress(address))
	sh, err := scanShareholder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Shareholder{}, storage.ErrNotFound
		}
		return model.Shareholder{}, fmt.Errorf("find shareholder: %w", err)
	}
	return sh, nil
}

func (s *Store) ListShareholders(ctx context.Context, vaultID int64) ([]model.Shareholder, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+shareholderColumns+`
		FROM shareholders WHERE vault_id = $1 ORDER BY id
	`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("list shareholders: %w", err)
	}
	defer rows.Close()

	var out []model.Shareholder
	for rows.Next() {
		sh, err := scanShareholder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shareholder: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *Store) UpsertShareholderStatus(ctx context.Context, vaultID int64, address string, isRemoved bool) (model.Shareholder, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO shareholders (vault_id, address, shares, asset_balance, is_removed, created_at, updated_at)
		VALUES ($1, $2, 0, 0, $3, now(), now())
		ON CONFLICT (vault_id, address)
		DO UPDATE SET is_removed = EXCLUDED.is_removed, updated_at = now()
		RETURNING `+shareholderColumns,
		vaultID, storage.NormalizeAddress(address), isRemoved,
	)
	sh, err := scanShareholder(row)
	if err != nil {
		return model.Shareholder{}, fmt.Errorf("upsert shareholder status: %w", err)
	}
	return sh, nil
}

func (s *Store) UpsertShareholderBalances(ctx context.Context, vaultID int64, address, shares, assetBalance string) (model.Shareholder, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO shareholders (vault_id, address, shares, asset_balance, is_removed, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, false, now(), now())
		ON CONFLICT (vault_id, address)
		DO UPDATE SET
			shares = EXCLUDED.shares,
			asset_balance = EXCLUDED.asset_balance,
			updated_at = now()
		RETURNING `+shareholderColumns,
		vaultID, storage.NormalizeAddress(address), numeric(shares), numeric(assetBalance),
	)
	sh, err := scanShareholder(row)
	if err != nil {
		return model.Shareholder{}, fmt.Errorf("upsert shareholder balances: %w", err)
	}
	return sh, nil
}

func (s *Store) TryInsertShareholderTransaction(ctx context.Context, tx model.ShareholderTransaction) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO shareholder_transactions (
			shareholder_id, vault_id, tx_hash, log_index, tx_index, kind, assets, shares, occurred_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9, now())
		ON CONFLICT (shareholder_id, tx_hash, log_index) DO NOTHING
	`,
		tx.ShareholderID,
		tx.VaultID,
		strings.ToLower(tx.TxHash),
		int64(tx.LogIndex),
		int64(tx.TxIndex),
		string(tx.Kind),
		numeric(tx.Assets),
		numeric(tx.Shares),
		tx.Timestamp.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("insert shareholder transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListShareholderTransactions(ctx context.Context, shareholderID int64) ([]model.ShareholderTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, shareholder_id, vault_id, tx_hash, log_index, tx_index, kind, assets::text, shares::text, occurred_at
		FROM shareholder_transactions
		WHERE shareholder_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, shareholderID)
	if err != nil {
		return nil, fmt.Errorf("list shareholder transactions: %w", err)
	}
	defer rows.Close()

	var out []model.ShareholderTransaction
	for rows.Next() {
		var (
			tx       model.ShareholderTransaction
			logIndex int64
			txIndex  int64
			kind     string
			ts       time.Time
		)
		if err := rows.Scan(&tx.ID, &tx.ShareholderID, &tx.VaultID, &tx.TxHash, &logIndex, &txIndex, &kind, &tx.Assets, &tx.Shares, &ts); err != nil {
			return nil, fmt.Errorf("scan shareholder transaction: %w", err)
		}
		tx.LogIndex = uint64(logIndex)
		tx.TxIndex = uint64(txIndex)
		tx.Kind = model.TxKind(kind)
		tx.Timestamp = ts.UTC()
		out = append(out, tx)
	}
	return out, rows.Err()
}

func numeric(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
