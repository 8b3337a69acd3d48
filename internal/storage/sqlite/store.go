package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vaultScope/internal/model"
	"vaultScope/internal/storage"
)

// Store wraps SQLite-backed persistence for the vault projection.
type Store struct {
	db *sql.DB
}

var _ storage.Repository = (*Store)(nil)

// Open initializes a SQLite database and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection; one connection also serializes writers.
	db.SetMaxOpenConns(1)
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS vaults (
  id                      INTEGER PRIMARY KEY AUTOINCREMENT,
  address                 TEXT NOT NULL UNIQUE,
  name                    TEXT NOT NULL,
  symbol                  TEXT NOT NULL,
  decimals                INTEGER NOT NULL,
  total_supply            TEXT NOT NULL DEFAULT '0',
  assets_under_management TEXT NOT NULL DEFAULT '0',
  assets_in_use           TEXT NOT NULL DEFAULT '0',
  share_price             TEXT NOT NULL DEFAULT '0',
  manager                 TEXT NOT NULL DEFAULT '',
  last_update_block       INTEGER NOT NULL DEFAULT 0,
  updated_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS assets (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  vault_id  INTEGER NOT NULL UNIQUE REFERENCES vaults(id),
  address   TEXT NOT NULL,
  name      TEXT NOT NULL,
  symbol    TEXT NOT NULL,
  decimals  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shareholders (
  id             INTEGER PRIMARY KEY AUTOINCREMENT,
  vault_id       INTEGER NOT NULL REFERENCES vaults(id),
  address        TEXT NOT NULL,
  shares         TEXT NOT NULL DEFAULT '0',
  asset_balance  TEXT NOT NULL DEFAULT '0',
  is_removed     INTEGER NOT NULL DEFAULT 0,
  updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(vault_id, address)
);

CREATE TABLE IF NOT EXISTS shareholder_transactions (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  shareholder_id  INTEGER NOT NULL REFERENCES shareholders(id),
  vault_id        INTEGER NOT NULL REFERENCES vaults(id),
  tx_hash         TEXT NOT NULL,
  log_index       INTEGER NOT NULL,
  tx_index        INTEGER NOT NULL,
  kind            TEXT NOT NULL,
  assets          TEXT NOT NULL,
  shares          TEXT NOT NULL,
  occurred_at     INTEGER NOT NULL,
  UNIQUE(shareholder_id, tx_hash, log_index)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateVault inserts the vault and its asset in one transaction.
func (s *Store) CreateVault(ctx context.Context, vault model.Vault) (model.Vault, error) {
	vault.Address = storage.NormalizeAddress(vault.Address)
	vault.Asset.Address = storage.NormalizeAddress(vault.Asset.Address)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Vault{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
INSERT INTO vaults (
  address, name, symbol, decimals, total_supply, assets_under_management,
  assets_in_use, share_price, manager, last_update_block
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO NOTHING;
`,
		vault.Address, vault.Name, vault.Symbol, vault.Decimals,
		numeric(vault.TotalSupply), numeric(vault.AssetsUnderManagement),
		numeric(vault.AssetsInUse), numeric(vault.SharePrice),
		vault.Manager, int64(vault.LastUpdateBlock),
	)
	if err != nil {
		return model.Vault{}, fmt.Errorf("insert vault: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Vault{}, fmt.Errorf("vault %s: %w", vault.Address, storage.ErrAlreadyExists)
	}
	if vault.ID, err = res.LastInsertId(); err != nil {
		return model.Vault{}, fmt.Errorf("vault id: %w", err)
	}

	vault.Asset.VaultID = vault.ID
	res, err = tx.ExecContext(ctx, `
INSERT INTO assets (vault_id, address, name, symbol, decimals) VALUES (?, ?, ?, ?, ?);
`, vault.ID, vault.Asset.Address, vault.Asset.Name, vault.Asset.Symbol, vault.Asset.Decimals)
	if err != nil {
		return model.Vault{}, fmt.Errorf("insert asset: %w", err)
	}
	if vault.Asset.ID, err = res.LastInsertId(); err != nil {
		return model.Vault{}, fmt.Errorf("asset id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Vault{}, fmt.Errorf("commit: %w", err)
	}
	return vault, nil
}

const vaultSelect = `
SELECT v.id, v.address, v.name, v.symbol, v.decimals, v.total_supply, v.assets_under_management,
       v.assets_in_use, v.share_price, v.manager, v.last_update_block,
       a.id, a.vault_id, a.address, a.name, a.symbol, a.decimals
FROM vaults v JOIN assets a ON a.vault_id = v.id`

type scanner interface {
	Scan(dest ...any) error
}

func scanVault(row scanner) (model.Vault, error) {
	var (
		v     model.Vault
		block int64
	)
	err := row.Scan(
		&v.ID, &v.Address, &v.Name, &v.Symbol, &v.Decimals, &v.TotalSupply, &v.AssetsUnderManagement,
		&v.AssetsInUse, &v.SharePrice, &v.Manager, &block,
		&v.Asset.ID, &v.Asset.VaultID, &v.Asset.Address, &v.Asset.Name, &v.Asset.Symbol, &v.Asset.Decimals,
	)
	v.LastUpdateBlock = uint64(block)
	return v, err
}

func (s *Store) FindVaultByAddress(ctx context.Context, address string) (model.Vault, error) {
	row := s.db.QueryRowContext(ctx, vaultSelect+` WHERE v.address = ?;`, storage.NormalizeAddress(address))
	v, err := scanVault(row)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, sql.ErrNoRows):
		return model.Vault{}, storage.ErrNotFound
	default:
		return model.Vault{}, fmt.Errorf("find vault: %w", err)
	}
}

func (s *Store) ListVaults(ctx context.Context) ([]model.Vault, error) {
	rows, err := s.db.QueryContext(ctx, vaultSelect+` ORDER BY v.id;`)
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO vaults (
  address, name, symbol, decimals, total_supply, assets_under_management,
  assets_in_use, share_price, manager, last_update_block
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
  total_supply=excluded.total_supply,
  assets_under_management=excluded.assets_under_management,
  assets_in_use=excluded.assets_in_use,
  share_price=excluded.share_price,
  manager=excluded.manager,
  last_update_block=MAX(vaults.last_update_block, excluded.last_update_block),
  updated_at=CURRENT_TIMESTAMP;
`,
		storage.NormalizeAddress(vault.Address), vault.Name, vault.Symbol, vault.Decimals,
		numeric(vault.TotalSupply), numeric(vault.AssetsUnderManagement),
		numeric(vault.AssetsInUse), numeric(vault.SharePrice),
		vault.Manager, int64(vault.LastUpdateBlock),
	)
	if err != nil {
		return fmt.Errorf("upsert vault: %w", err)
	}
	return nil
}

const shareholderSelect = `SELECT id, vault_id, address, shares, asset_balance, is_removed FROM shareholders`

func scanShareholder(row scanner) (model.Shareholder, error) {
	var sh model.Shareholder
	err := row.Scan(&sh.ID, &sh.VaultID, &sh.Address, &sh.Shares, &sh.AssetBalance, &sh.IsRemoved)
	return sh, err
}

func (s *Store) FindShareholder(ctx context.Context, vaultID int64, address string) (model.Shareholder, error) {
	row := s.db.QueryRowContext(ctx, shareholderSelect+` WHERE vault_id = ? AND address = ?;`,
		vaultID, storage.NormalizeAddress(address))
	sh, err := scanShareholder(row)
	switch {
	case err == nil:
		return sh, nil
	case errors.Is(err, sql.ErrNoRows):
		return model.Shareholder{}, storage.ErrNotFound
	default:
		return model.Shareholder{}, fmt.Errorf("find shareholder: %w", err)
	}
}

func (s *Store) ListShareholders(ctx context.Context, vaultID int64) ([]model.Shareholder, error) {
	rows, err := s.db.QueryContext(ctx, shareholderSelect+` WHERE vault_id = ? ORDER BY id;`, vaultID)
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
	address = storage.NormalizeAddress(address)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO shareholders (vault_id, address, is_removed) VALUES (?, ?, ?)
ON CONFLICT(vault_id, address) DO UPDATE SET
  is_removed=excluded.is_removed,
  updated_at=CURRENT_TIMESTAMP;
`, vaultID, address, isRemoved)
	if err != nil {
		return model.Shareholder{}, fmt.Errorf("upsert shareholder status: %w", err)
	}
	return s.FindShareholder(ctx, vaultID, address)
}

func (s *Store) UpsertShareholderBalances(ctx context.Context, vaultID int64, address, shares, assetBalance string) (model.Shareholder, error) {
	address = storage.NormalizeAddress(address)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO shareholders (vault_id, address, shares, asset_balance) VALUES (?, ?, ?, ?)
ON CONFLICT(vault_id, address) DO UPDATE SET
  shares=excluded.shares,
  asset_balance=excluded.asset_balance,
  updated_at=CURRENT_TIMESTAMP;
`, vaultID, address, numeric(shares), numeric(assetBalance))
	if err != nil {
		return model.Shareholder{}, fmt.Errorf("upsert shareholder balances: %w", err)
	}
	return s.FindShareholder(ctx, vaultID, address)
}

func (s *Store) TryInsertShareholderTransaction(ctx context.Context, tx model.ShareholderTransaction) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO shareholder_transactions (
  shareholder_id, vault_id, tx_hash, log_index, tx_index, kind, assets, shares, occurred_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(shareholder_id, tx_hash, log_index) DO NOTHING;
`,
		tx.ShareholderID, tx.VaultID, strings.ToLower(tx.TxHash), int64(tx.LogIndex), int64(tx.TxIndex),
		string(tx.Kind), numeric(tx.Assets), numeric(tx.Shares), tx.Timestamp.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert shareholder transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListShareholderTransactions(ctx context.Context, shareholderID int64) ([]model.ShareholderTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, shareholder_id, vault_id, tx_hash, log_index, tx_index, kind, assets, shares, occurred_at
FROM shareholder_transactions
WHERE shareholder_id = ?
ORDER BY occurred_at ASC, id ASC;
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
			ts       int64
		)
		if err := rows.Scan(&tx.ID, &tx.ShareholderID, &tx.VaultID, &tx.TxHash, &logIndex, &txIndex, &kind, &tx.Assets, &tx.Shares, &ts); err != nil {
			return nil, fmt.Errorf("scan shareholder transaction: %w", err)
		}
		tx.LogIndex = uint64(logIndex)
		tx.TxIndex = uint64(txIndex)
		tx.Kind = model.TxKind(kind)
		tx.Timestamp = time.Unix(ts, 0).UTC()
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
