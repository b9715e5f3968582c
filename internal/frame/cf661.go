package frame

// ProtocolCF661 is the Chafon CF661 command/response framing.
const ProtocolCF661 = "cf661"

// CF661 frames carry the EPC length in the last header byte:
//
//	CF 00 00 01 12 00 XX YY 01 00 LL | LL-byte EPC | CRC_H CRC_L
type CF661 struct{}

const (
	cf661HeaderLen  = 11
	cf661LenOffset  = 10
	cf661TrailerLen = 2
)

var cf661Prefix = []byte{0xCF, 0x00, 0x00, 0x01, 0x12}

// Protocol implements Decoder.
func (CF661) Protocol() string { return ProtocolCF661 }

// Decode implements Decoder.
func (CF661) Decode(buf *[]byte) []string {
	var tags []string
	for {
		idx := findPrefix(buf, cf661Prefix)
		if idx < 0 {
			return tags
		}
		consume(buf, idx)

		b := *buf
		if len(b) < cf661HeaderLen {
			return tags
		}
		length := int(b[cf661LenOffset])
		frameLen := cf661HeaderLen + length + cf661TrailerLen
		if len(b) < frameLen {
			return tags
		}
		if length > 0 {
			tags = append(tags, epcHex(b[cf661HeaderLen:cf661HeaderLen+length]))
		}
		consume(buf, frameLen)
	}
}
