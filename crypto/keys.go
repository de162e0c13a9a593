package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PrivateKey wraps a secp256k1 key used to authorize off-chain messages
// (swap requests). The ledger itself never stores private keys; this package
// exists for tooling and tests.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey wraps the corresponding verification key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes rehydrates a key from its raw scalar bytes.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw scalar bytes of the key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

// PubKey returns the public half.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the 20-byte account address for the key.
func (p *PublicKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(*p.PublicKey)
}

// personalDigest applies the Ethereum signed-message prefix so signatures
// produced by standard wallets recover correctly.
func personalDigest(digest [32]byte) []byte {
	prefixed := append([]byte("\x19Ethereum Signed Message:\n32"), digest[:]...)
	return ethcrypto.Keccak256(prefixed)
}

// SignDigest signs a 32-byte message digest under the personal-message
// prefix, returning a 65-byte [R || S || V] signature.
func (k *PrivateKey) SignDigest(digest [32]byte) ([]byte, error) {
	return ethcrypto.Sign(personalDigest(digest), k.PrivateKey)
}

// RecoverSigner returns the address that produced the signature over the
// prefixed digest. It is a pure computation with no state side effects.
func RecoverSigner(digest [32]byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature must be 65 bytes (got %d)", len(signature))
	}
	sig := append([]byte(nil), signature...)
	// Accept both the raw 0/1 recovery id and the legacy 27/28 encoding.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(personalDigest(digest), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover signer: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}
