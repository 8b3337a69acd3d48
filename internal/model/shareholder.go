package model

import "time"

// Shareholder is an address holding (or allowed to hold) shares of a vault.
type Shareholder struct {
	ID           int64
	VaultID      int64
	Address      string
	Shares       string
	AssetBalance string
	IsRemoved    bool
}

// TxKind is the direction of a shareholder transaction.
type TxKind string

const (
	TxKindDeposit  TxKind = "Deposit"
	TxKindWithdraw TxKind = "Withdraw"
)

// ShareholderTransaction is one ledger row. (ShareholderID, TxHash, LogIndex) is unique.
type ShareholderTransaction struct {
	ID            int64
	ShareholderID int64
	VaultID       int64
	TxHash        string
	LogIndex      uint64
	TxIndex       uint64
	Kind          TxKind
	Assets        string
	Shares        string
	Timestamp     time.Time
}
