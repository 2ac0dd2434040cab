package ids

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeccakReceiptID is the on-chain alignment hook: for protocols anchoring
// via a Solidity verifier, receiptId is instead
// keccak256(abi.encode(intentHash, solverId, createdAt)) rather than the
// SHA-256 formula IntentID/RunID/ReceiptID use for off-chain artifacts. Both
// derivations coexist; this one is never used to name files on disk.
//
// intentHash is the 32-byte digest the on-chain verifier expects (typically
// the same bytes as IntentID, decoded from hex); solverId identifies this
// service instance on-chain; createdAt is the on-chain block timestamp, not
// the intent's own createdAt field.
func KeccakReceiptID(intentHash [32]byte, solverID string, createdAt int64) ([32]byte, error) {
	bytes32Ty, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		return [32]byte{}, err
	}
	stringTy, err := abi.NewType("string", "", nil)
	if err != nil {
		return [32]byte{}, err
	}
	uint256Ty, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return [32]byte{}, err
	}

	args := abi.Arguments{
		{Type: bytes32Ty},
		{Type: stringTy},
		{Type: uint256Ty},
	}
	encoded, err := args.Pack(intentHash, solverID, big.NewInt(createdAt))
	if err != nil {
		return [32]byte{}, fmt.Errorf("abi.encode(intentHash, solverId, createdAt): %w", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// IntentHashFromHex parses the hex-lowercase SHA-256 IntentID into the
// 32-byte form the keccak alignment hook expects.
func IntentHashFromHex(intentID string) ([32]byte, error) {
	b, err := hex.DecodeString(intentID)
	if err != nil {
		return [32]byte{}, fmt.Errorf("decode intentId hex: %w", err)
	}
	if len(b) != 32 {
		return [32]byte{}, fmt.Errorf("intentId must decode to 32 bytes, got %d", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}
