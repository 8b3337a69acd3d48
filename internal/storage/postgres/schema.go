package postgres

const schema = `
CREATE TABLE IF NOT EXISTS vaults (
	id BIGSERIAL PRIMARY KEY,
	address TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	decimals SMALLINT NOT NULL,
	total_supply NUMERIC(78, 0) NOT NULL DEFAULT 0,
	assets_under_management NUMERIC(78, 0) NOT NULL DEFAULT 0,
	assets_in_use NUMERIC(78, 0) NOT NULL DEFAULT 0,
	share_price NUMERIC(78, 0) NOT NULL DEFAULT 0,
	manager TEXT NOT NULL DEFAULT '',
	last_update_block BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS assets (
	id BIGSERIAL PRIMARY KEY,
	vault_id BIGINT NOT NULL UNIQUE REFERENCES vaults(id),
	address TEXT NOT NULL,
	name TEXT NOT NULL,
	symbol TEXT NOT NULL,
	decimals SMALLINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS shareholders (
	id BIGSERIAL PRIMARY KEY,
	vault_id BIGINT NOT NULL REFERENCES vaults(id),
	address TEXT NOT NULL,
	shares NUMERIC(78, 0) NOT NULL DEFAULT 0,
	asset_balance NUMERIC(78, 0) NOT NULL DEFAULT 0,
	is_removed BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (vault_id, address)
);

CREATE TABLE IF NOT EXISTS shareholder_transactions (
	id BIGSERIAL PRIMARY KEY,
	shareholder_id BIGINT NOT NULL REFERENCES shareholders(id),
	vault_id BIGINT NOT NULL REFERENCES vaults(id),
	tx_hash TEXT NOT NULL,
	log_index BIGINT NOT NULL,
	tx_index BIGINT NOT NULL,
	kind TEXT NOT NULL,
	assets NUMERIC(78, 0) NOT NULL,
	shares NUMERIC(78, 0) NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (shareholder_id, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS shareholder_transactions_vault_idx ON shareholder_transactions (vault_id);
`
