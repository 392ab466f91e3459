package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInvalidPrivateKey is returned when key material does not parse as a
// secp256k1 private key.
var ErrInvalidPrivateKey = errors.New("private key is not valid")

// Keypair holds a freshly generated secp256k1 keypair along with its EVM
// address. The private key is hex encoded without 0x prefix, the way
// go-ethereum serializes it.
type Keypair struct {
	PrivateKey string
	Address    string
}

// NewKeypair generates a random secp256k1 keypair and derives its
// EIP-55 checksummed address.
func NewKeypair() (*Keypair, error) {
	prvkey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Keypair{
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(prvkey)),
		Address:    crypto.PubkeyToAddress(prvkey.PublicKey).Hex(),
	}, nil
}

// ParsePrivateKey decodes a hex encoded private key, tolerating an optional
// 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	prvkey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, ErrInvalidPrivateKey
	}
	return prvkey, nil
}

// AddressFromPrivateKey derives the EIP-55 checksummed address controlled by
// the given key.
func AddressFromPrivateKey(prvkey *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(prvkey.PublicKey).Hex()
}
