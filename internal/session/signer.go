package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer produces the proof-of-possession signature over a challenge
// message. Implementations may be local keys, hardware wallets or remote
// signing agents.
type Signer interface {
	Address() common.Address
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// LocalSigner signs with an in-memory secp256k1 key using EIP-191 personal
// message framing.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// LocalSignerFromHex parses a hex-encoded private key, with or without the
// 0x prefix.
func LocalSignerFromHex(keyHex string) (*LocalSigner, error) {
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse signer private key")
	}
	return &LocalSigner{key: key}, nil
}

func (s *LocalSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *LocalSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(personalHash(message), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign challenge")
	}
	// Shift the recovery id into the transaction-style v value expected by
	// wallet tooling.
	sig[64] += 27
	return sig, nil
}

// personalHash applies the EIP-191 personal message prefix before hashing.
func personalHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverAddress returns the address that signed the message. Accepts both
// v in {0,1} and v in {27,28}.
func RecoverAddress(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("invalid signature length %d", len(sig))
	}
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(personalHash(message), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
