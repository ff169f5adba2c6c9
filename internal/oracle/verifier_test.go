package oracle_test

import (
	"encoding/hex"
	"testing"

	"FlowLedger/internal/oracle"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) (*oracle.Signer, *oracle.ECDSAVerifier) {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	signer := oracle.NewSigner(priv)
	return signer, oracle.NewECDSAVerifier(signer.PublicKey())
}

func TestVerify_RoundTrip(t *testing.T) {
	signer, verifier := newKeyPair(t)

	data := []byte(`{"recipients":["a","b"],"proportions":[7000,3000]}`)
	sig, err := signer.Sign(data)
	require.NoError(t, err)

	identity, err := verifier.Verify(data, sig)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), identity)
	assert.Equal(t, verifier.Address(), identity)
}

func TestVerify_WrongSigner(t *testing.T) {
	_, verifier := newKeyPair(t)
	impostor, _ := newKeyPair(t)

	data := []byte("plan")
	sig, err := impostor.Sign(data)
	require.NoError(t, err)

	_, err = verifier.Verify(data, sig)
	assert.ErrorIs(t, err, oracle.ErrInvalidSignature)
}

func TestVerify_TamperedData(t *testing.T) {
	signer, verifier := newKeyPair(t)

	sig, err := signer.Sign([]byte("plan-v1"))
	require.NoError(t, err)

	_, err = verifier.Verify([]byte("plan-v2"), sig)
	assert.ErrorIs(t, err, oracle.ErrInvalidSignature)
}

func TestVerify_GarbageSignature(t *testing.T) {
	_, verifier := newKeyPair(t)

	_, err := verifier.Verify([]byte("plan"), []byte{0x01, 0x02, 0x03})
	assert.ErrorIs(t, err, oracle.ErrInvalidSignature)
}

func TestVerifierFromHex(t *testing.T) {
	signer, _ := newKeyPair(t)

	verifier, err := oracle.NewECDSAVerifierFromHex(
		hex.EncodeToString(signer.PublicKey().Compressed()))
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), verifier.Address())
}

func TestMessageDigest_LengthBound(t *testing.T) {
	// "ab" + "c" must not collide with "a" + "bc".
	d1 := oracle.MessageDigest([]byte("ab"))
	d2 := oracle.MessageDigest([]byte("a"))
	assert.NotEqual(t, d1, d2)
	assert.Len(t, d1, 32)
}
