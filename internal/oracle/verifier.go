// Package oracle verifies signed distribution plans. The attestation
// is an ECDSA signature over the sha256d digest of the plan bytes
// under a signed-message prefix; the signer's HASH160 address must
// equal the configured oracle address exactly.
package oracle

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	bsvhash "github.com/bsv-blockchain/go-sdk/primitives/hash"
)

// ErrInvalidSignature indicates a signature that does not verify
// under the configured oracle key.
var ErrInvalidSignature = errors.New("oracle: invalid signature")

// messagePrefix separates plan signatures from any other use of the
// oracle key.
const messagePrefix = "FlowLedger Signed Plan:\n"

// Verifier authenticates plan bytes and returns the signer identity.
type Verifier interface {
	// Verify checks sig over data and returns the verified signer's
	// address, or ErrInvalidSignature.
	Verify(data, sig []byte) (string, error)

	// Address returns the configured oracle address Verify recovers to.
	Address() string

	// PublicKeyHex returns the compressed oracle key in hex, the form
	// accepted back by NewECDSAVerifierFromHex.
	PublicKeyHex() string
}

// MessageDigest returns sha256d(prefix || len(data) || data), the
// bytes actually signed.
func MessageDigest(data []byte) []byte {
	buf := make([]byte, 0, len(messagePrefix)+8+len(data))
	buf = append(buf, messagePrefix...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(data)))
	buf = append(buf, data...)
	return bsvhash.Sha256d(buf)
}

// AddressOf derives the hex HASH160 address of a public key.
func AddressOf(pub *ec.PublicKey) string {
	return hex.EncodeToString(bsvhash.Hash160(pub.Compressed()))
}

// ECDSAVerifier verifies DER signatures against one oracle key.
type ECDSAVerifier struct {
	pub     *ec.PublicKey
	address string
}

// NewECDSAVerifier builds a verifier pinned to the given oracle key.
func NewECDSAVerifier(pub *ec.PublicKey) *ECDSAVerifier {
	return &ECDSAVerifier{pub: pub, address: AddressOf(pub)}
}

// NewECDSAVerifierFromHex parses a compressed public key in hex.
func NewECDSAVerifierFromHex(pubHex string) (*ECDSAVerifier, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("oracle: parse public key hex: %w", err)
	}
	pub, err := ec.PublicKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("oracle: parse public key: %w", err)
	}
	return NewECDSAVerifier(pub), nil
}

// Address returns the oracle address this verifier recovers to.
func (v *ECDSAVerifier) Address() string {
	return v.address
}

// PublicKeyHex returns the pinned key as compressed hex.
func (v *ECDSAVerifier) PublicKeyHex() string {
	return hex.EncodeToString(v.pub.Compressed())
}

// Verify checks a DER signature over the plan digest.
func (v *ECDSAVerifier) Verify(data, sig []byte) (string, error) {
	parsed, err := ec.ParseDERSignature(sig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !parsed.Verify(MessageDigest(data), v.pub) {
		return "", fmt.Errorf("%w: signer is not the configured oracle", ErrInvalidSignature)
	}
	return v.address, nil
}

// Signer is the counterpart used by tests and plan tooling.
type Signer struct {
	priv *ec.PrivateKey
}

// NewSigner wraps an oracle private key.
func NewSigner(priv *ec.PrivateKey) *Signer {
	return &Signer{priv: priv}
}

// Sign produces a DER signature over the plan digest.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	sig, err := s.priv.Sign(MessageDigest(data))
	if err != nil {
		return nil, fmt.Errorf("oracle: sign plan: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() *ec.PublicKey {
	return s.priv.PubKey()
}

// Address returns the signer's HASH160 address.
func (s *Signer) Address() string {
	return AddressOf(s.priv.PubKey())
}
