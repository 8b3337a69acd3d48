package vault

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"vaultScope/internal/model"
)

var handledEvents = map[string]bool{
	model.EventDeposit:              true,
	model.EventWithdraw:             true,
	model.EventWhitelistShareholder: true,
	model.EventRevokeShareholder:    true,
}

// Decoder matches raw logs against the vault interface.
type Decoder struct {
	vaultABI    abi.ABI
	topicToName map[string]string
}

// NewDecoder builds a vault log decoder.
func NewDecoder() (*Decoder, error) {
	parsed, err := VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}

	topicToName := make(map[string]string, len(parsed.Events))
	for name, event := range parsed.Events {
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &Decoder{
		vaultABI:    parsed,
		topicToName: topicToName,
	}, nil
}

// Topic returns the signature hash of a vault event.
func (d *Decoder) Topic(name string) (common.Hash, bool) {
	event, ok := d.vaultABI.Events[name]
	if !ok {
		return common.Hash{}, false
	}
	return event.ID, true
}

// Decode converts a LogRecord into a VaultEvent.
// It returns *UnknownTopicError for unmatched signatures and *DecodeError for malformed logs.
func (d *Decoder) Decode(log model.LogRecord) (event model.VaultEvent, err error) {
	if len(log.Topics) == 0 {
		return model.VaultEvent{}, &DecodeError{Err: fmt.Errorf("missing topics")}
	}
	topic0 := log.Topics[0]
	name, ok := d.topicToName[strings.ToLower(topic0)]
	if !ok {
		if _, err := parseTopicHashes(log.Topics[:1]); err != nil {
			return model.VaultEvent{}, &DecodeError{Err: err}
		}
		return model.VaultEvent{}, &UnknownTopicError{Topic0: topic0}
	}

	defer func() {
		if r := recover(); r != nil {
			event = model.VaultEvent{}
			err = &DecodeError{Event: name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	event = model.VaultEvent{Name: name, Log: log}
	if !handledEvents[name] {
		event.Ignored = true
		return event, nil
	}

	switch name {
	case model.EventDeposit, model.EventWithdraw:
		decoded, err := d.decodeFlow(name, log)
		if err != nil {
			return model.VaultEvent{}, &DecodeError{Event: name, Err: err}
		}
		event.Decoded = decoded
	case model.EventWhitelistShareholder, model.EventRevokeShareholder:
		decoded, err := d.decodeAllowList(name, log)
		if err != nil {
			return model.VaultEvent{}, &DecodeError{Event: name, Err: err}
		}
		event.Decoded = decoded
	}
	return event, nil
}

func (d *Decoder) decodeFlow(name string, log model.LogRecord) (model.FlowEventData, error) {
	event := d.vaultABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.FlowEventData{}, err
	}

	var indexed struct {
		Sender   common.Address
		Receiver common.Address
		Owner    common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.FlowEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.FlowEventData{}, err
	}
	if len(values) != 2 {
		return model.FlowEventData{}, fmt.Errorf("unexpected %s values: %d", name, len(values))
	}

	assets, err := asBigInt(values[0])
	if err != nil {
		return model.FlowEventData{}, fmt.Errorf("assets: %w", err)
	}
	shares, err := asBigInt(values[1])
	if err != nil {
		return model.FlowEventData{}, fmt.Errorf("shares: %w", err)
	}

	data := model.FlowEventData{
		Sender: indexed.Sender.Hex(),
		Owner:  indexed.Owner.Hex(),
		Assets: assets,
		Shares: shares,
	}
	if name == model.EventWithdraw {
		data.Receiver = indexed.Receiver.Hex()
	}
	return data, nil
}

func (d *Decoder) decodeAllowList(name string, log model.LogRecord) (model.AllowListEventData, error) {
	event := d.vaultABI.Events[name]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.AllowListEventData{}, err
	}

	var indexed struct {
		NewShareholder common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.AllowListEventData{}, fmt.Errorf("parse topics: %w", err)
	}

	return model.AllowListEventData{Shareholder: indexed.NewShareholder.Hex()}, nil
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return parseTopicHashes(topics[1:])
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic %q: %w", topic, err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	if dataHex == "" {
		dataHex = "0x"
	}
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}
