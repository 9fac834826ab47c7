package coverage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"
)

// Balance is a multi-asset amount: a single native figure plus token
// contract balances keyed by contract address. Zero token entries are never
// stored, so an empty balance has a zero native amount and no tokens.
type Balance struct {
	Native *uint256.Int
	Tokens map[string]*uint256.Int
}

// NewBalance returns an empty balance.
func NewBalance() *Balance {
	return &Balance{Native: new(uint256.Int), Tokens: make(map[string]*uint256.Int)}
}

// NewNativeBalance wraps a native amount attached to a request.
func NewNativeBalance(amount *uint256.Int) *Balance {
	b := NewBalance()
	if amount != nil {
		b.Native.Set(amount)
	}
	return b
}

// NewTokenBalance wraps a single token contribution received from contract.
func NewTokenBalance(contract string, amount *uint256.Int) *Balance {
	b := NewBalance()
	contract = strings.TrimSpace(contract)
	if contract != "" && amount != nil && !amount.IsZero() {
		b.Tokens[contract] = new(uint256.Int).Set(amount)
	}
	return b
}

// IsEmpty reports whether the balance carries no value at all.
func (b *Balance) IsEmpty() bool {
	if b == nil {
		return true
	}
	if b.Native != nil && !b.Native.IsZero() {
		return false
	}
	for _, amt := range b.Tokens {
		if amt != nil && !amt.IsZero() {
			return false
		}
	}
	return true
}

// NativeAmount returns a copy of the native amount, never nil.
func (b *Balance) NativeAmount() *uint256.Int {
	if b == nil || b.Native == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(b.Native)
}

// TokenAmount returns a copy of the balance held for contract.
func (b *Balance) TokenAmount(contract string) *uint256.Int {
	if b == nil {
		return new(uint256.Int)
	}
	amt, ok := b.Tokens[contract]
	if !ok || amt == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(amt)
}

// TokenContracts lists the token contracts with a non-zero balance in
// ascending order.
func (b *Balance) TokenContracts() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Tokens))
	for contract, amt := range b.Tokens {
		if amt == nil || amt.IsZero() {
			continue
		}
		out = append(out, contract)
	}
	sort.Strings(out)
	return out
}

// Add merges other into b in place.
func (b *Balance) Add(other *Balance) error {
	if other == nil {
		return nil
	}
	if b.Native == nil {
		b.Native = new(uint256.Int)
	}
	if b.Tokens == nil {
		b.Tokens = make(map[string]*uint256.Int)
	}
	native, overflow := new(uint256.Int).AddOverflow(b.Native, other.NativeAmount())
	if overflow {
		return ErrOverflow
	}
	sums := make(map[string]*uint256.Int, len(other.Tokens))
	for _, contract := range other.TokenContracts() {
		sum, overflow := new(uint256.Int).AddOverflow(b.TokenAmount(contract), other.Tokens[contract])
		if overflow {
			return fmt.Errorf("%w: token %s", ErrOverflow, contract)
		}
		sums[contract] = sum
	}
	b.Native = native
	for contract, sum := range sums {
		b.Tokens[contract] = sum
	}
	return nil
}

// Sub decreases the native amount. Token balances are never subtracted.
func (b *Balance) Sub(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	current := b.NativeAmount()
	if current.Lt(amount) {
		return fmt.Errorf("%w: %s exceeds %s", ErrUnderflow, amount.Dec(), current.Dec())
	}
	b.Native = current.Sub(current, amount)
	return nil
}

// Clone returns a deep copy.
func (b *Balance) Clone() *Balance {
	clone := NewBalance()
	if b == nil {
		return clone
	}
	clone.Native.Set(b.NativeAmount())
	for _, contract := range b.TokenContracts() {
		clone.Tokens[contract] = new(uint256.Int).Set(b.Tokens[contract])
	}
	return clone
}

// String renders the balance for logs, e.g. "100uatom,5@contract".
func (b *Balance) String() string {
	if b.IsEmpty() {
		return "0"
	}
	parts := make([]string, 0, 1+len(b.Tokens))
	if native := b.NativeAmount(); !native.IsZero() {
		parts = append(parts, native.Dec())
	}
	for _, contract := range b.TokenContracts() {
		parts = append(parts, b.Tokens[contract].Dec()+"@"+contract)
	}
	return strings.Join(parts, ",")
}
