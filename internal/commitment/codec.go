package commitment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// A Commitment is a fixed-width digest standing in for a foreign-chain
// identifier that does not fit an EVM address field. It occupies the same
// 20-byte slot the escrow contracts use for addresses.
type Commitment = common.Address

// Codec maps arbitrary-length identifiers into commitments and checks
// claimed originals against them.
//
// The digest is deliberately pluggable: the current scheme is keccak-256
// truncated to 20 bytes, which leaves an 80-bit birthday bound. The relayer
// that supplies original addresses is trusted out-of-band, so the check
// defends against corruption and misconfiguration rather than a resourceful
// attacker; a wider digest can be substituted without touching the
// coordinator.
type Codec interface {
	Commit(original []byte) Commitment
	Verify(original []byte, claimed Commitment) error
}

// MismatchError reports a commitment that does not match its claimed
// original. It is always fatal to the operation that produced it.
type MismatchError struct {
	Field    string
	Expected Commitment
	Observed Commitment
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("commitment mismatch for %s: expected %s, observed %s",
		e.Field, e.Expected.Hex(), e.Observed.Hex())
}

// Keccak160 is the production codec: keccak-256 over the normalized
// identifier, truncated to the low 20 bytes (the EVM address convention).
type Keccak160 struct{}

func NewKeccak160() Keccak160 { return Keccak160{} }

func (Keccak160) Commit(original []byte) Commitment {
	digest := crypto.Keccak256(Normalize(original))
	return common.BytesToAddress(digest[12:])
}

func (k Keccak160) Verify(original []byte, claimed Commitment) error {
	got := k.Commit(original)
	if got != claimed {
		return &MismatchError{Field: "address", Expected: got, Observed: claimed}
	}
	return nil
}

// VerifyField is Verify with a caller-supplied field name so mismatch
// reports distinguish the recipient commitment from the asset commitment.
func VerifyField(c Codec, field string, original []byte, claimed Commitment) error {
	err := c.Verify(original, claimed)
	if err == nil {
		return nil
	}
	if m, ok := err.(*MismatchError); ok {
		m.Field = field
	}
	return err
}

// Normalize strips redundant scheme-prefix markers from a textual
// identifier before hashing. Relayed addresses occasionally arrive with a
// doubled "0x" from naive concatenation; both spellings must commit to the
// same digest. Binary identifiers pass through untouched.
func Normalize(original []byte) []byte {
	if !isPrintable(original) {
		return original
	}
	s := string(original)
	for strings.HasPrefix(s, "0x0x") || strings.HasPrefix(s, "0X0x") {
		s = s[2:]
	}
	if strings.HasPrefix(s, "0X") {
		s = "0x" + s[2:]
	}
	return []byte(s)
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// ParseCommitment decodes a hex commitment, tolerating the doubled-prefix
// marker the same way Normalize does.
func ParseCommitment(s string) (Commitment, error) {
	norm := string(Normalize([]byte(s)))
	if !common.IsHexAddress(norm) {
		return Commitment{}, fmt.Errorf("invalid commitment %q", s)
	}
	return common.HexToAddress(norm), nil
}

// Equal compares two raw identifiers after normalization.
func Equal(a, b []byte) bool {
	return bytes.Equal(Normalize(a), Normalize(b))
}
