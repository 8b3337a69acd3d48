package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress validates a hex address. No I/O happens before validation succeeds.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return common.Address{}, ErrAddressRequired
	}
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, input)
	}
	return common.HexToAddress(input), nil
}
