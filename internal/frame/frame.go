// Package frame turns the raw byte stream of a UHF RFID reader into tag
// identifiers. Each supported reader model has its own wire format; all of
// them share the Decoder contract:
//
//   - Decode consumes complete frames from the front of buf and returns the
//     EPCs they carry, rendered as uppercase hex.
//   - An incomplete trailing frame stays in buf (from its prefix onward) for
//     the next call.
//   - Noise before a prefix is dropped. When no prefix is present at all only
//     the last len(prefix)-1 bytes are kept, so the buffer cannot grow without
//     bound on a noisy line.
//   - Decode never blocks and never fails: malformed frames are skipped.
//
// The package does no logging and holds no state besides what the caller
// passes in, so decoders are safe to share.
package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Decoder extracts tag identifiers from an append-only byte buffer.
type Decoder interface {
	// Decode consumes whole frames from *buf and returns their EPCs in order.
	Decode(buf *[]byte) []string
	// Protocol returns the configuration name of the wire format.
	Protocol() string
}

// ErrUnknownProtocol is returned by New for an unsupported protocol name.
var ErrUnknownProtocol = errors.New("unknown reader protocol")

var registry = map[string]func() Decoder{
	ProtocolChafon: func() Decoder { return Chafon{} },
	ProtocolCF661:  func() Decoder { return CF661{} },
	ProtocolInnod:  func() Decoder { return Innod{} },
}

// New returns the decoder registered under protocol (case-insensitive).
func New(protocol string) (Decoder, error) {
	mk, ok := registry[strings.ToLower(strings.TrimSpace(protocol))]
	if !ok {
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownProtocol, protocol, strings.Join(Protocols(), ", "))
	}
	return mk(), nil
}

// Protocols lists the supported protocol names in sorted order.
func Protocols() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ----------------------------------------------------------------------------
// shared buffer helpers

// consume drops the first n bytes of *buf, reusing its backing array.
func consume(buf *[]byte, n int) {
	if n <= 0 {
		return
	}
	b := *buf
	if n >= len(b) {
		*buf = b[:0]
		return
	}
	*buf = b[:copy(b, b[n:])]
}

// keepTail retains only the last n bytes of *buf.
func keepTail(buf *[]byte, n int) {
	if extra := len(*buf) - n; extra > 0 {
		consume(buf, extra)
	}
}

// findPrefix returns the index of prefix in *buf. When it is absent the
// buffer is cut down to a possible partial prefix and -1 is returned.
func findPrefix(buf *[]byte, prefix []byte) int {
	idx := bytes.Index(*buf, prefix)
	if idx < 0 {
		keepTail(buf, len(prefix)-1)
	}
	return idx
}

func epcHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
