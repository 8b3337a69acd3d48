package api

import (
	"strings"

	"vaultScope/internal/model"
)

type assetResponse struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

type vaultResponse struct {
	Address               string                `json:"address"`
	Name                  string                `json:"name"`
	Symbol                string                `json:"symbol"`
	Decimals              uint8                 `json:"decimals"`
	TotalSupply           string                `json:"total_supply"`
	AssetsUnderManagement string                `json:"assets_under_management"`
	AssetsInUse           string                `json:"assets_in_use"`
	SharePrice            string                `json:"share_price"`
	Manager               string                `json:"manager"`
	LastUpdateBlock       uint64                `json:"last_update_block"`
	Asset                 assetResponse         `json:"asset"`
	Shareholders          []shareholderResponse `json:"shareholders,omitempty"`
}

type shareholderResponse struct {
	Address      string `json:"address"`
	Shares       string `json:"shares"`
	AssetBalance string `json:"asset_balance"`
	IsRemoved    bool   `json:"is_removed"`
}

type transactionResponse struct {
	TxHash    string `json:"tx_hash"`
	LogIndex  uint64 `json:"log_index"`
	TxIndex   uint64 `json:"tx_index"`
	Kind      string `json:"kind"`
	Assets    string `json:"assets"`
	Shares    string `json:"shares"`
	Timestamp int64  `json:"timestamp"`
}

func mapVault(v model.Vault) vaultResponse {
	return vaultResponse{
		Address:               v.Address,
		Name:                  v.Name,
		Symbol:                v.Symbol,
		Decimals:              v.Decimals,
		TotalSupply:           v.TotalSupply,
		AssetsUnderManagement: v.AssetsUnderManagement,
		AssetsInUse:           v.AssetsInUse,
		SharePrice:            v.SharePrice,
		Manager:               v.Manager,
		LastUpdateBlock:       v.LastUpdateBlock,
		Asset: assetResponse{
			Address:  v.Asset.Address,
			Name:     v.Asset.Name,
			Symbol:   v.Asset.Symbol,
			Decimals: v.Asset.Decimals,
		},
	}
}

func mapShareholder(sh model.Shareholder) shareholderResponse {
	return shareholderResponse{
		Address:      sh.Address,
		Shares:       sh.Shares,
		AssetBalance: sh.AssetBalance,
		IsRemoved:    sh.IsRemoved,
	}
}

func mapTransaction(tx model.ShareholderTransaction) transactionResponse {
	return transactionResponse{
		TxHash:    tx.TxHash,
		LogIndex:  tx.LogIndex,
		TxIndex:   tx.TxIndex,
		Kind:      strings.ToUpper(string(tx.Kind)),
		Assets:    tx.Assets,
		Shares:    tx.Shares,
		Timestamp: tx.Timestamp.Unix(),
	}
}
