package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Signature holds the three ECDSA components the exchange contract expects
type Signature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// ParseSignature parses hex r and s (32 bytes each) and v given as decimal or hex.
// A bare v such as "1b" is read as hex, matching what wallets emit.
func ParseSignature(r, s, v string) (Signature, error) {
	var sig Signature

	rb, err := decodeComponent("r", r)
	if err != nil {
		return sig, err
	}
	sb, err := decodeComponent("s", s)
	if err != nil {
		return sig, err
	}
	copy(sig.R[:], rb)
	copy(sig.S[:], sb)

	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") && strings.ContainsAny(v, "abcdefABCDEF") {
		v = "0x" + v
	}
	n, err := ParseAmount(v)
	if err != nil {
		return sig, fmt.Errorf("invalid signature v: %w", err)
	}
	if !n.IsUint64() || n.Uint64() > 0xff {
		return sig, fmt.Errorf("invalid signature v: %s out of range", n)
	}
	sig.V = uint8(n.Uint64())

	return sig, nil
}

func decodeComponent(name, value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		value = "0x" + value
	}
	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("invalid signature %s: %w", name, err)
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid signature %s: expected 32 bytes, got %d", name, len(b))
	}
	return b, nil
}

// Concat returns r || s || v as unprefixed hex, the stored signature form
func (s Signature) Concat() string {
	buf := make([]byte, 0, 65)
	buf = append(buf, s.R[:]...)
	buf = append(buf, s.S[:]...)
	buf = append(buf, s.V)
	return hex.EncodeToString(buf)
}
