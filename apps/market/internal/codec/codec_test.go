package codec

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestWordFromBig(t *testing.T) {
	t.Parallel()

	w, err := WordFromBig(big.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("0", 62)+"64", w.Hex())
	require.Equal(t, int64(100), w.Big().Int64())

	_, err = WordFromBig(big.NewInt(-1))
	require.Error(t, err)

	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	_, err = WordFromBig(tooBig)
	require.Error(t, err)

	max := new(big.Int).Sub(tooBig, big.NewInt(1))
	w, err = WordFromBig(max)
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("f", 64), w.Hex())
}

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100", want: 100},
		{in: "0x64", want: 100},
		{in: " 7 ", want: 7},
		{in: "0", want: 0},
		{in: "", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, test := range tests {
		test := test
		t.Run(test.in, func(t *testing.T) {
			t.Parallel()

			n, err := ParseAmount(test.in)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.want, n.Int64())
		})
	}
}

func TestWordTextRoundTrip(t *testing.T) {
	t.Parallel()

	w, err := ParseWord("123456789")
	require.NoError(t, err)

	text, err := w.MarshalText()
	require.NoError(t, err)

	var decoded Word
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, w, decoded)

	require.Error(t, decoded.UnmarshalText([]byte("0x64")))
	require.Error(t, decoded.UnmarshalText([]byte("not hex")))
}

func TestAddressWord(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	w := AddressWord(addr)
	require.Equal(t, byte(0xaa), w[31])
	require.True(t, w[:12][0] == 0 && w[11] == 0)
	require.Equal(t, addr, w.Address())
	require.True(t, Word{}.IsZero())
	require.False(t, w.IsZero())
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	addr, err := ParseAddress("0xAbCdEf0000000000000000000000000000000001")
	require.NoError(t, err)
	require.Equal(t, "0xabcdef0000000000000000000000000000000001", AddressKey(addr))

	_, err = ParseAddress("0x1234")
	require.Error(t, err)
}

func TestParseSignature(t *testing.T) {
	t.Parallel()

	r := "0x" + strings.Repeat("11", 32)
	s := strings.Repeat("22", 32)

	for _, v := range []string{"27", "0x1b", "1b"} {
		sig, err := ParseSignature(r, s, v)
		require.NoError(t, err, v)
		require.Equal(t, uint8(27), sig.V)
		require.Equal(t, strings.Repeat("11", 32)+strings.Repeat("22", 32)+"1b", sig.Concat())
	}

	_, err := ParseSignature("0x11", s, "27")
	require.Error(t, err)
	_, err = ParseSignature(r, s, "256")
	require.Error(t, err)
	_, err = ParseSignature(r, "zz", "27")
	require.Error(t, err)
}
