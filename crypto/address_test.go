package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustAddress(t *testing.T, prefix string, fill byte, size int) string {
	t.Helper()
	addr, err := NewAddress(prefix, bytes.Repeat([]byte{fill}, size))
	require.NoError(t, err)
	return addr.String()
}

func TestAddressRoundTrip(t *testing.T) {
	for _, size := range []int{AccountAddressLength, ContractAddressLength} {
		encoded := mustAddress(t, "osmo", 0x11, size)
		require.True(t, strings.HasPrefix(encoded, "osmo1"))
		decoded, err := DecodeAddress(encoded)
		require.NoError(t, err)
		require.Equal(t, "osmo", decoded.Prefix())
		require.Equal(t, bytes.Repeat([]byte{0x11}, size), decoded.Bytes())
	}
}

func TestNewAddressRejectsBadInput(t *testing.T) {
	_, err := NewAddress("osmo", []byte{1, 2, 3})
	require.Error(t, err)
	_, err = NewAddress("", bytes.Repeat([]byte{1}, AccountAddressLength))
	require.Error(t, err)
}

func TestBech32Validator(t *testing.T) {
	v := NewBech32Validator(" OSMO ")
	good := mustAddress(t, "osmo", 0x42, AccountAddressLength)

	canonical, err := v.ValidateAddress("  " + good + " ")
	require.NoError(t, err)
	require.Equal(t, good, canonical)

	canonical, err = v.ValidateAddress(strings.ToUpper(good))
	require.NoError(t, err)
	require.Equal(t, good, canonical)

	contract := mustAddress(t, "osmo", 0x07, ContractAddressLength)
	_, err = v.ValidateAddress(contract)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"wrong prefix": mustAddress(t, "cosmos", 0x42, AccountAddressLength),
		"bad checksum": good[:len(good)-1] + "q",
		"mixed case":   "Osmo" + good[4:],
		"not bech32":   "arbiter",
	}
	if strings.HasSuffix(good, "q") {
		cases["bad checksum"] = good[:len(good)-1] + "p"
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateAddress(input)
			require.Error(t, err)
		})
	}
}

func TestRequestHashIsDeterministic(t *testing.T) {
	a := RequestHash(1, "coverage_create", []byte(`{"id":"A"}`))
	b := RequestHash(1, "coverage_create", []byte(`{"id":"A"}`))
	require.Equal(t, a, b)
	require.NotEqual(t, a, RequestHash(2, "coverage_create", []byte(`{"id":"A"}`)))
	require.NotEqual(t, a, RequestHash(1, "coverage_refund", []byte(`{"id":"A"}`)))
}
