package frame

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

const (
	epcA = "E2801191A5030060ACB87676"
	epcB = "E28068940000501EC0B1F2A9"
)

func chafonFrame(t *testing.T, epc string) []byte {
	return mustHex(t, "1100EE00"+epc+"5A5A")
}

func cf661Frame(t *testing.T, epc string) []byte {
	n := len(epc) / 2
	return mustHex(t, "CF0000011200010201 00"+hex.EncodeToString([]byte{byte(n)})+epc+"ABCD")
}

func innodFrame(t *testing.T, epc string) []byte {
	return mustHex(t, "4354001C 014501C38325 08013E2A010F0101"+epc+"823A")
}

type vector struct {
	name  string
	dec   Decoder
	frame func(*testing.T, string) []byte
}

func vectors() []vector {
	return []vector{
		{"chafon", Chafon{}, chafonFrame},
		{"cf661", CF661{}, cf661Frame},
		{"innod", Innod{}, innodFrame},
	}
}

func TestInnod_KnownSniffedFrame(t *testing.T) {
	buf := mustHex(t, "43 54 00 1C 01 45 01 C3 83 25 08 01 3E 2A 01 0F 01 01 E2 80 11 91 A5 03 00 60 AC B8 76 76 82 3A")
	require.Len(t, buf, 32)

	tags := Innod{}.Decode(&buf)
	assert.Equal(t, []string{epcA}, tags)
	assert.Empty(t, buf)
}

func TestDecode_WholeStream(t *testing.T) {
	for _, v := range vectors() {
		t.Run(v.name, func(t *testing.T) {
			var buf []byte
			buf = append(buf, v.frame(t, epcA)...)
			buf = append(buf, v.frame(t, epcB)...)

			tags := v.dec.Decode(&buf)
			assert.Equal(t, []string{epcA, epcB}, tags)
			assert.Empty(t, buf)
		})
	}
}

func TestDecode_ByteByByteMatchesBatch(t *testing.T) {
	for _, v := range vectors() {
		t.Run(v.name, func(t *testing.T) {
			var stream []byte
			stream = append(stream, 0x00, 0x7F, 0x13)
			stream = append(stream, v.frame(t, epcA)...)
			stream = append(stream, 0x99)
			stream = append(stream, v.frame(t, epcB)...)
			stream = append(stream, v.frame(t, epcA)...)

			batchBuf := append([]byte(nil), stream...)
			batch := v.dec.Decode(&batchBuf)

			var incBuf []byte
			var inc []string
			for _, b := range stream {
				incBuf = append(incBuf, b)
				inc = append(inc, v.dec.Decode(&incBuf)...)
			}

			assert.Equal(t, []string{epcA, epcB, epcA}, batch)
			assert.Equal(t, batch, inc)
		})
	}
}

func TestDecode_DiscardsLeadingNoise(t *testing.T) {
	for _, v := range vectors() {
		t.Run(v.name, func(t *testing.T) {
			buf := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03}
			buf = append(buf, v.frame(t, epcB)...)

			assert.Equal(t, []string{epcB}, v.dec.Decode(&buf))
			assert.Empty(t, buf)
		})
	}
}

func TestDecode_HoldsIncompleteFrame(t *testing.T) {
	for _, v := range vectors() {
		t.Run(v.name, func(t *testing.T) {
			full := v.frame(t, epcA)
			split := len(full) - 3

			buf := append([]byte{0x55, 0x66}, full[:split]...)
			assert.Empty(t, v.dec.Decode(&buf))
			assert.Equal(t, full[:split], buf, "noise dropped, partial frame retained from prefix")

			buf = append(buf, full[split:]...)
			assert.Equal(t, []string{epcA}, v.dec.Decode(&buf))
			assert.Empty(t, buf)
		})
	}
}

func TestDecode_HoldsIncompleteHeader(t *testing.T) {
	buf := mustHex(t, "CF00000112000102")
	assert.Empty(t, CF661{}.Decode(&buf))
	assert.Len(t, buf, 8)

	buf = mustHex(t, "435400")
	assert.Empty(t, Innod{}.Decode(&buf))
	assert.Len(t, buf, 3)
}

func TestDecode_EmptyInputIsNoop(t *testing.T) {
	for _, v := range vectors() {
		var buf []byte
		assert.Empty(t, v.dec.Decode(&buf))
		assert.Empty(t, buf)

		buf = []byte{0x11}
		assert.Empty(t, v.dec.Decode(&buf))
		assert.Equal(t, []byte{0x11}, buf)
	}
}

func TestDecode_NoPrefixKeepsOnlyPartialPrefix(t *testing.T) {
	noise := make([]byte, 1024)
	for i := range noise {
		noise[i] = 0x20
	}
	for _, v := range vectors() {
		t.Run(v.name, func(t *testing.T) {
			buf := append([]byte(nil), noise...)
			v.dec.Decode(&buf)
			assert.LessOrEqual(t, len(buf), 4)
		})
	}

	// a partial prefix at the tail survives and completes later
	buf := append(append([]byte(nil), noise...), 0x11, 0x00, 0xEE)
	assert.Empty(t, Chafon{}.Decode(&buf))
	assert.Equal(t, []byte{0x11, 0x00, 0xEE}, buf)

	rest := chafonFrame(t, epcB)[3:]
	buf = append(buf, rest...)
	assert.Equal(t, []string{epcB}, Chafon{}.Decode(&buf))
}

func TestInnod_ShortFrameDroppedWithoutLosingNext(t *testing.T) {
	// declared length 4 -> 8-byte frame, far below the EPC offset
	buf := mustHex(t, "43540004 01020304")
	buf = append(buf, innodFrame(t, epcB)...)

	assert.Equal(t, []string{epcB}, Innod{}.Decode(&buf))
	assert.Empty(t, buf)
}

func TestCF661_VariableLengthEPC(t *testing.T) {
	short := "300833B2DDD9"
	buf := cf661Frame(t, short)
	assert.Equal(t, []string{short}, CF661{}.Decode(&buf))

	// zero-length EPC is consumed but yields nothing
	buf = mustHex(t, "CF00000112000102010000ABCD")
	assert.Empty(t, CF661{}.Decode(&buf))
	assert.Empty(t, buf)
}

func TestNew(t *testing.T) {
	for _, p := range Protocols() {
		d, err := New(strings.ToUpper(p))
		require.NoError(t, err)
		assert.Equal(t, p, d.Protocol())
	}

	_, err := New("zebra")
	require.ErrorIs(t, err, ErrUnknownProtocol)
	assert.Equal(t, []string{"cf661", "chafon", "innod"}, Protocols())
}
