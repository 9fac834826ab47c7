package crypto

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RequestHash derives the correlation id shared by the events and outbox
// entries produced by one applied request.
func RequestHash(height uint64, method string, payload []byte) [32]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	return [32]byte(ethcrypto.Keccak256Hash(buf[:], []byte(method), payload))
}
