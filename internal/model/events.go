package model

import "math/big"

// Vault event names.
const (
	EventDeposit              = "Deposit"
	EventWithdraw             = "Withdraw"
	EventWhitelistShareholder = "WhitelistShareholder"
	EventRevokeShareholder    = "RevokeShareholder"
	EventTransfer             = "Transfer"
	EventApproval             = "Approval"
	EventChangeManager        = "ChangeManager"
	EventUseAssets            = "UseAssets"
	EventReturnAssets         = "ReturnAssets"
	EventGains                = "Gains"
	EventLoss                 = "Loss"
	EventFees                 = "Fees"
)

// FlowEventData is the decoded payload of Deposit and Withdraw.
// Receiver is empty for Deposit.
type FlowEventData struct {
	Sender   string
	Receiver string
	Owner    string
	Assets   *big.Int
	Shares   *big.Int
}

// AllowListEventData is the decoded payload of WhitelistShareholder and RevokeShareholder.
type AllowListEventData struct {
	Shareholder string
}
