package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// Accepted payload lengths: 20 byte account addresses and 32 byte contract
// addresses.
const (
	AccountAddressLength  = 20
	ContractAddressLength = 32
)

// Address is a bech32 encoded account or contract address.
type Address struct {
	prefix string
	bytes  []byte
}

// NewAddress builds an address from a human readable prefix and raw payload.
func NewAddress(prefix string, b []byte) (Address, error) {
	if prefix == "" {
		return Address{}, fmt.Errorf("address prefix required")
	}
	if len(b) != AccountAddressLength && len(b) != ContractAddressLength {
		return Address{}, fmt.Errorf("address must be %d or %d bytes long, got %d", AccountAddressLength, ContractAddressLength, len(b))
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}, nil
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(a.prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() string {
	return a.prefix
}

// DecodeAddress parses a bech32 string of any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return NewAddress(prefix, conv)
}

// Bech32Validator accepts addresses carrying a single configured prefix and
// returns them in canonical lower-case form.
type Bech32Validator struct {
	Prefix string
}

// NewBech32Validator returns a validator for prefix.
func NewBech32Validator(prefix string) *Bech32Validator {
	return &Bech32Validator{Prefix: strings.ToLower(strings.TrimSpace(prefix))}
}

// ValidateAddress implements the address validation hook of the coverage
// engine.
func (v *Bech32Validator) ValidateAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", fmt.Errorf("empty address")
	}
	if trimmed != strings.ToLower(trimmed) && trimmed != strings.ToUpper(trimmed) {
		return "", fmt.Errorf("mixed case address %q", trimmed)
	}
	decoded, err := DecodeAddress(strings.ToLower(trimmed))
	if err != nil {
		return "", err
	}
	if decoded.Prefix() != v.Prefix {
		return "", fmt.Errorf("address prefix %q does not match %q", decoded.Prefix(), v.Prefix)
	}
	return decoded.String(), nil
}
