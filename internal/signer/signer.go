// Package signer signs a 32-byte digest with secp256k1, returning an
// EIP-2-normalized {r, s, v}. Key handling uses the same
// crypto.HexToECDSA/crypto.GenerateKey/crypto.PubkeyToAddress calls an
// Ethereum transaction signer would, applied here to receipt digests
// instead of transactions.
package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMalleableSignature is returned if a produced signature's s value is not
// in the curve's lower half - it must never be handed to a caller.
var ErrMalleableSignature = errors.New("signer: produced signature is malleable")

// secp256k1HalfOrder is half of the secp256k1 curve order N, per EIP-2: a
// valid, non-malleable s is required to satisfy s <= N/2.
var secp256k1HalfOrder = new(big.Int).Rsh(crypto.S256().Params().N, 1)

// Signature is a signer's output: r and s are hex-lowercase 32-byte values,
// v is 27 or 28 (Ethereum's recovery-id convention, not the raw 0/1).
type Signature struct {
	R string
	S string
	V byte
}

// Port is the interface every signer backend implements, in-process or KMS.
type Port interface {
	Sign(digest [32]byte) (Signature, error)
	PublicKey() []byte // uncompressed, per crypto.FromECDSAPub
	Address() [20]byte
}

// InProcess signs with a private key held in memory - the default for
// local runs and the deterministic-from-seed path the test fixtures use.
// A KMS/HSM-backed Port is an opaque alternative implementing the same
// interface; this service never depends on which one is wired in.
type InProcess struct {
	key *ecdsa.PrivateKey
}

// NewInProcess wraps an already-generated key.
func NewInProcess(key *ecdsa.PrivateKey) *InProcess {
	return &InProcess{key: key}
}

// GenerateInProcess creates a new random key.
func GenerateInProcess() (*InProcess, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return &InProcess{key: key}, nil
}

var _ Port = (*InProcess)(nil)

// Sign produces an EIP-2-normalized, RFC-6979-nonced signature over digest.
// go-ethereum's crypto.Sign already uses deterministic (RFC 6979) nonces and
// already normalizes s to the curve's lower half; this wraps its 65-byte
// [R || S || recoveryID] output into the port's {r, s, v} shape and asserts
// the non-malleability invariant explicitly rather than trusting it
// silently.
func (s *InProcess) Sign(digest [32]byte) (Signature, error) {
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: sign: %w", err)
	}

	r := new(big.Int).SetBytes(sig[0:32])
	sVal := new(big.Int).SetBytes(sig[32:64])
	if sVal.Cmp(secp256k1HalfOrder) > 0 {
		return Signature{}, ErrMalleableSignature
	}
	v := sig[64] + 27

	return Signature{
		R: fmt.Sprintf("%064x", r),
		S: fmt.Sprintf("%064x", sVal),
		V: v,
	}, nil
}

// PublicKey returns the uncompressed public key bytes.
func (s *InProcess) PublicKey() []byte {
	return crypto.FromECDSAPub(&s.key.PublicKey)
}

// Address returns the low 20 bytes of keccak256(uncompressed public key),
// Ethereum's standard address derivation.
func (s *InProcess) Address() [20]byte {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// FromSeed derives a deterministic key from a fixed 32-byte seed. It exists
// only for reproducible local/test runs; production deployments must use a
// randomly generated or KMS-backed key.
func FromSeed(seed [32]byte) (*InProcess, error) {
	key, err := crypto.ToECDSA(seed[:])
	if err != nil {
		return nil, fmt.Errorf("signer: derive from seed: %w", err)
	}
	return &InProcess{key: key}, nil
}
