package frame

// ProtocolInnod is the INNOD RU5109 notification framing.
const ProtocolInnod = "innod"

// Innod frames declare their payload length in header byte 3 and carry a
// fixed 12-byte EPC at frame offset 18, independent of that length:
//
//	43 54 00 LL | LL bytes (… EPC at frame[18:30] …, CRC last 2)
//
// Frames too short to hold the EPC and trailer are dropped as malformed.
type Innod struct{}

const (
	innodHeaderLen  = 4
	innodLenOffset  = 3
	innodEPCOffset  = 18
	innodEPCLen     = 12
	innodTrailerLen = 2
	innodMinFrame   = innodEPCOffset + innodEPCLen + innodTrailerLen
)

var innodPrefix = []byte{0x43, 0x54}

// Protocol implements Decoder.
func (Innod) Protocol() string { return ProtocolInnod }

// Decode implements Decoder.
func (Innod) Decode(buf *[]byte) []string {
	var tags []string
	for {
		idx := findPrefix(buf, innodPrefix)
		if idx < 0 {
			return tags
		}
		consume(buf, idx)

		b := *buf
		if len(b) < innodHeaderLen {
			return tags
		}
		frameLen := innodHeaderLen + int(b[innodLenOffset])
		if len(b) < frameLen {
			return tags
		}
		if frameLen >= innodMinFrame {
			tags = append(tags, epcHex(b[innodEPCOffset:innodEPCOffset+innodEPCLen]))
		}
		consume(buf, frameLen)
	}
}
