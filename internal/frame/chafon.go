package frame

// ProtocolChafon is the raw inventory stream of Chafon CF-RU5112 readers.
const ProtocolChafon = "chafon"

// Chafon frames have no length field:
//
//	11 00 EE 00 | 12-byte EPC | 2-byte trailer
type Chafon struct{}

const (
	chafonHeaderLen  = 4
	chafonEPCLen     = 12
	chafonTrailerLen = 2
	chafonFrameLen   = chafonHeaderLen + chafonEPCLen + chafonTrailerLen
)

var chafonPrefix = []byte{0x11, 0x00, 0xEE, 0x00}

// Protocol implements Decoder.
func (Chafon) Protocol() string { return ProtocolChafon }

// Decode implements Decoder.
func (Chafon) Decode(buf *[]byte) []string {
	var tags []string
	for {
		idx := findPrefix(buf, chafonPrefix)
		if idx < 0 {
			return tags
		}
		consume(buf, idx)

		b := *buf
		if len(b) < chafonFrameLen {
			return tags
		}
		tags = append(tags, epcHex(b[chafonHeaderLen:chafonHeaderLen+chafonEPCLen]))
		consume(buf, chafonFrameLen)
	}
}
