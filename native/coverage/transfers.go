package coverage

import (
	"fmt"

	"github.com/holiman/uint256"
)

// TransferKind distinguishes native bank sends from token contract calls.
type TransferKind uint8

const (
	TransferNative TransferKind = iota + 1
	TransferToken
)

func (k TransferKind) String() string {
	switch k {
	case TransferNative:
		return "native"
	case TransferToken:
		return "token"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Transfer is an instruction for the external transfer mechanism. The engine
// never moves funds itself.
type Transfer struct {
	Kind      TransferKind
	Recipient string
	// Denom is set for native transfers.
	Denom string
	// Contract is set for token transfers.
	Contract string
	Amount   *uint256.Int
}

func (t Transfer) String() string {
	if t.Kind == TransferToken {
		return fmt.Sprintf("token %s %s -> %s", t.Contract, t.Amount.Dec(), t.Recipient)
	}
	return fmt.Sprintf("native %s%s -> %s", t.Amount.Dec(), t.Denom, t.Recipient)
}

// sendAll builds the instructions that move the whole balance to recipient:
// one native send when the native amount is non-zero, then one transfer per
// token contract in ascending contract order.
func sendAll(recipient, denom string, balance *Balance) []Transfer {
	out := make([]Transfer, 0, 1+len(balance.TokenContracts()))
	if native := balance.NativeAmount(); !native.IsZero() {
		out = append(out, Transfer{
			Kind:      TransferNative,
			Recipient: recipient,
			Denom:     denom,
			Amount:    native,
		})
	}
	for _, contract := range balance.TokenContracts() {
		out = append(out, Transfer{
			Kind:      TransferToken,
			Recipient: recipient,
			Contract:  contract,
			Amount:    balance.TokenAmount(contract),
		})
	}
	return out
}
