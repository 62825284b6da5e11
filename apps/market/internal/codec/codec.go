package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// WordLength is the width of every canonical integer and padded address
const WordLength = 32

var (
	errNegative = errors.New("value is negative")
	errOverflow = errors.New("value does not fit in 256 bits")
)

// Word is a 32-byte big-endian value. Token ids, prices and salts are stored
// and compared in this form, never as decimal strings.
type Word [WordLength]byte

// WordFromBig canonicalizes n into a Word
func WordFromBig(n *big.Int) (Word, error) {
	var w Word
	if n == nil {
		return w, errors.New("value is nil")
	}
	if n.Sign() < 0 {
		return w, errNegative
	}
	if n.BitLen() > WordLength*8 {
		return w, errOverflow
	}
	copy(w[:], math.PaddedBigBytes(n, WordLength))
	return w, nil
}

// ParseAmount parses a non-negative integer written either in decimal or as
// 0x-prefixed hex.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty amount")
	}

	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, errNegative
	}
	if n.BitLen() > WordLength*8 {
		return nil, errOverflow
	}

	return n, nil
}

// ParseWord is ParseAmount followed by WordFromBig
func ParseWord(s string) (Word, error) {
	n, err := ParseAmount(s)
	if err != nil {
		return Word{}, err
	}
	return WordFromBig(n)
}

// AddressWord left-pads an address to a full word, the layout used by ABI
// encoded address arguments.
func AddressWord(a common.Address) Word {
	var w Word
	copy(w[WordLength-common.AddressLength:], a[:])
	return w
}

func (w Word) Big() *big.Int {
	return new(big.Int).SetBytes(w[:])
}

// Address returns the low 20 bytes of the word
func (w Word) Address() common.Address {
	return common.BytesToAddress(w[WordLength-common.AddressLength:])
}

func (w Word) IsZero() bool {
	return w == Word{}
}

// Hex returns the 0x-prefixed, lowercase, 64 digit representation
func (w Word) Hex() string {
	return "0x" + hex.EncodeToString(w[:])
}

func (w Word) String() string {
	return w.Hex()
}

func (w Word) MarshalText() ([]byte, error) {
	return []byte(w.Hex()), nil
}

// UnmarshalText only accepts the exact form produced by MarshalText so that a
// stored payload always decodes to the bytes it was encoded from.
func (w *Word) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid word %q: %w", text, err)
	}
	if len(b) != WordLength {
		return fmt.Errorf("invalid word %q: expected %d bytes, got %d", text, WordLength, len(b))
	}
	copy(w[:], b)
	return nil
}

// ParseAddress validates and parses a hex address
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// AddressKey is the lowercase hex form used for stored address columns
func AddressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}
