package model

// VaultEvent is a log matched against the vault interface.
type VaultEvent struct {
	Name    string
	Ignored bool
	// Decoded is FlowEventData, AllowListEventData, or nil for ignored events.
	Decoded interface{}
	Log     LogRecord
}

// Flow returns the Deposit/Withdraw payload.
func (e VaultEvent) Flow() (FlowEventData, bool) {
	data, ok := e.Decoded.(FlowEventData)
	return data, ok
}

// AllowList returns the WhitelistShareholder/RevokeShareholder payload.
func (e VaultEvent) AllowList() (AllowListEventData, bool) {
	data, ok := e.Decoded.(AllowListEventData)
	return data, ok
}
