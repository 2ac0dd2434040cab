package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeccakReceiptID_DeterministicForSameInputs(t *testing.T) {
	var hash [32]byte
	copy(hash[:], strings.Repeat("a", 32))

	first, err := KeccakReceiptID(hash, "solver-1", 1700000000)
	require.NoError(t, err)
	second, err := KeccakReceiptID(hash, "solver-1", 1700000000)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestKeccakReceiptID_DiffersWhenAnyFieldChanges(t *testing.T) {
	var hashA, hashB [32]byte
	copy(hashA[:], strings.Repeat("a", 32))
	copy(hashB[:], strings.Repeat("b", 32))

	base, err := KeccakReceiptID(hashA, "solver-1", 1700000000)
	require.NoError(t, err)

	diffHash, err := KeccakReceiptID(hashB, "solver-1", 1700000000)
	require.NoError(t, err)
	require.NotEqual(t, base, diffHash)

	diffSolver, err := KeccakReceiptID(hashA, "solver-2", 1700000000)
	require.NoError(t, err)
	require.NotEqual(t, base, diffSolver)

	diffTime, err := KeccakReceiptID(hashA, "solver-1", 1700000001)
	require.NoError(t, err)
	require.NotEqual(t, base, diffTime)
}

func TestIntentHashFromHex_RoundTripsSha256Length(t *testing.T) {
	hexID := strings.Repeat("0f", 32)
	out, err := IntentHashFromHex(hexID)
	require.NoError(t, err)
	require.Equal(t, byte(0x0f), out[0])
}

func TestIntentHashFromHex_RejectsWrongLength(t *testing.T) {
	_, err := IntentHashFromHex("ab")
	require.Error(t, err)
}

func TestIntentHashFromHex_RejectsInvalidHex(t *testing.T) {
	_, err := IntentHashFromHex(strings.Repeat("zz", 32))
	require.Error(t, err)
}
