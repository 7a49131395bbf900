// Package inspect decodes the passive traffic stream the bus inspector
// emits once started. Frames are separated by three 0x7E bytes; each frame
// carries a timestamp, the routing header of the observed message and up to
// MaxMessage bytes of its payload.
//
// Frame layout (after hex decoding when the stream is hex text):
//
//	[TIMESTAMP u64 LE][P|Tlo][Thi][M|Slo][Shi][CMD][SIZE u16 LE][MSG...]
package inspect

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/protocol/frame"
)

const (
	// MaxMessage caps the payload bytes kept per message.
	MaxMessage = 128

	timestampLen = 8
	fixedLen     = timestampLen + frame.HeaderLen
)

// HexBytes renders as a hex string in JSON and YAML.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

func (b HexBytes) String() string {
	return hex.EncodeToString(b)
}

// Message is one observed bus message.
type Message struct {
	Timestamp  uint64   `json:"timestamp" yaml:"timestamp"`
	Protocol   uint8    `json:"protocol" yaml:"protocol"`
	Target     uint16   `json:"target" yaml:"target"`
	TargetMode uint8    `json:"target_mode" yaml:"target_mode"`
	Source     uint16   `json:"source" yaml:"source"`
	Command    uint8    `json:"command" yaml:"command"`
	Size       uint16   `json:"size" yaml:"size"`
	Payload    HexBytes `json:"payload" yaml:"payload"`
}

// Truncated reports whether the declared size exceeds what was kept.
func (m Message) Truncated() bool {
	return int(m.Size) > len(m.Payload)
}

// DecodeFrame parses one binary frame with the delimiter already removed.
// Payload holds nothing when Size is zero, Size bytes up to MaxMessage, and
// never more than the frame actually carries.
func DecodeFrame(b []byte) (Message, error) {
	if len(b) < fixedLen {
		return Message{}, fmt.Errorf("%w: frame is %d bytes, need %d", core.ErrMalformedHeader, len(b), fixedLen)
	}
	h, err := frame.ParseHeader(b[timestampLen:fixedLen])
	if err != nil {
		return Message{}, err
	}

	n := int(h.Size)
	if n > MaxMessage {
		n = MaxMessage
	}
	if avail := len(b) - fixedLen; n > avail {
		n = avail
	}
	payload := make(HexBytes, n)
	copy(payload, b[fixedLen:fixedLen+n])

	return Message{
		Timestamp:  binary.LittleEndian.Uint64(b[:timestampLen]),
		Protocol:   h.Protocol,
		Target:     h.Target,
		TargetMode: h.Mode,
		Source:     h.Source,
		Command:    h.Command,
		Size:       h.Size,
		Payload:    payload,
	}, nil
}

// DecodeHexFrame hex-decodes text and parses the result with DecodeFrame.
func DecodeHexFrame(text []byte) (Message, error) {
	b := make([]byte, hex.DecodedLen(len(text)))
	n, err := hex.Decode(b, text)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", core.ErrUnparsableText, err)
	}
	return DecodeFrame(b[:n])
}

// EncodeFrame is the inverse of DecodeFrame for a message whose Payload is
// already capped. It is used to replay captured traffic.
func EncodeFrame(m Message) []byte {
	h := frame.Header{
		Protocol: m.Protocol,
		Target:   m.Target,
		Mode:     m.TargetMode,
		Source:   m.Source,
		Command:  m.Command,
		Size:     m.Size,
	}
	out := make([]byte, timestampLen, fixedLen+len(m.Payload))
	binary.LittleEndian.PutUint64(out, m.Timestamp)
	out = append(out, h.Encode()...)
	return append(out, m.Payload...)
}
