package model

// Vault is the persisted projection of a vault contract.
// Numeric on-chain values are kept as base-10 strings.
type Vault struct {
	ID                    int64
	Address               string
	Name                  string
	Symbol                string
	Decimals              uint8
	TotalSupply           string
	AssetsUnderManagement string
	AssetsInUse           string
	SharePrice            string
	Manager               string
	LastUpdateBlock       uint64
	Asset                 Asset
}

// Asset is the vault's underlying ERC-20 token.
type Asset struct {
	ID       int64
	VaultID  int64
	Address  string
	Name     string
	Symbol   string
	Decimals uint8
}

// VaultAggregates are the vault fields refreshed from the contract's view functions.
type VaultAggregates struct {
	TotalSupply           string
	AssetsUnderManagement string
	AssetsInUse           string
	SharePrice            string
}

// WithAggregates returns a copy of v carrying the refreshed aggregate fields.
func (v Vault) WithAggregates(a VaultAggregates) Vault {
	v.TotalSupply = a.TotalSupply
	v.AssetsUnderManagement = a.AssetsUnderManagement
	v.AssetsInUse = a.AssetsInUse
	v.SharePrice = a.SharePrice
	return v
}
