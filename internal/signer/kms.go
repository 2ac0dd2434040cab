package signer

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRecoveryFailed is returned when neither recovery candidate's derived
// public key matches the signer's known public key.
var ErrRecoveryFailed = errors.New("signer: could not recover v against known public key")

// AsymmetricSigner is the subset of a KMS/HSM client this adapter needs: an
// opaque asymmetric-sign operation over a SHA-256 digest, returning a
// DER-encoded ECDSA signature. The concrete client (cloud KMS, HSM PKCS#11
// wrapper, etc.) is never named here - the signing backend is opaque to
// the rest of this service.
type AsymmetricSigner interface {
	SignDigestDER(digest [32]byte) ([]byte, error)
	PublicKey() *ecdsa.PublicKey
}

// KMS adapts an AsymmetricSigner to Port: it DER-decodes the raw signature,
// normalizes s to the curve's lower half (EIP-2), and computes v by trying
// both recovery candidates against the backend's known public key, since a
// KMS signature carries no recovery id of its own.
type KMS struct {
	backend AsymmetricSigner
}

// NewKMS wraps backend.
func NewKMS(backend AsymmetricSigner) *KMS {
	return &KMS{backend: backend}
}

var _ Port = (*KMS)(nil)

type derSignature struct {
	R, S *big.Int
}

// Sign implements Port.
func (k *KMS) Sign(digest [32]byte) (Signature, error) {
	der, err := k.backend.SignDigestDER(digest)
	if err != nil {
		return Signature{}, fmt.Errorf("signer: kms sign: %w", err)
	}

	var parsed derSignature
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return Signature{}, fmt.Errorf("signer: decode DER signature: %w", err)
	}

	s := parsed.S
	if s.Cmp(secp256k1HalfOrder) > 0 {
		s = new(big.Int).Sub(crypto.S256().Params().N, s)
	}

	v, err := recoverV(digest, parsed.R, s, k.backend.PublicKey())
	if err != nil {
		return Signature{}, err
	}

	return Signature{
		R: fmt.Sprintf("%064x", parsed.R),
		S: fmt.Sprintf("%064x", s),
		V: v,
	}, nil
}

// PublicKey returns the uncompressed public key bytes.
func (k *KMS) PublicKey() []byte {
	return crypto.FromECDSAPub(k.backend.PublicKey())
}

// Address returns the low 20 bytes of keccak256(uncompressed public key).
func (k *KMS) Address() [20]byte {
	return crypto.PubkeyToAddress(*k.backend.PublicKey())
}

// recoverV tries recovery ids 0 and 1, returning 27 or 28 for whichever one
// recovers a public key matching want.
func recoverV(digest [32]byte, r, s *big.Int, want *ecdsa.PublicKey) (byte, error) {
	sig := make([]byte, 65)
	r.FillBytes(sig[0:32])
	s.FillBytes(sig[32:64])

	wantBytes := crypto.FromECDSAPub(want)
	for recID := byte(0); recID < 2; recID++ {
		sig[64] = recID
		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		if string(crypto.FromECDSAPub(pub)) == string(wantBytes) {
			return recID + 27, nil
		}
	}
	return 0, ErrRecoveryFailed
}
