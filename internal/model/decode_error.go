package model

// DecodeError records a log that could not be applied because it failed to decode.
type DecodeError struct {
	Vault       string `json:"vault"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Kind        string `json:"kind"`
	Error       string `json:"error"`
	RecordedAt  string `json:"recorded_at"`
}
