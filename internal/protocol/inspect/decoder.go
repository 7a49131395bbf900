package inspect

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"firestige.xyz/busctl/internal/core"
)

// DelimiterByte is repeated DelimiterLen times between frames.
const (
	DelimiterByte = 0x7E
	DelimiterLen  = 3
)

var delimiter = bytes.Repeat([]byte{DelimiterByte}, DelimiterLen)

// Encoding selects how the bytes between two delimiters are read.
type Encoding int

const (
	// EncodingHex treats each delimited chunk as hex text.
	EncodingHex Encoding = iota
	// EncodingBinary treats each delimited chunk as raw frame bytes.
	EncodingBinary
)

func (e Encoding) String() string {
	switch e {
	case EncodingHex:
		return "hex"
	case EncodingBinary:
		return "binary"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps a configuration string to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "hex", "":
		return EncodingHex, nil
	case "binary", "raw":
		return EncodingBinary, nil
	default:
		return 0, fmt.Errorf("unknown inspect encoding %q (must be hex or binary)", s)
	}
}

// Decoder splits the stream on the delimiter and decodes each frame. It
// keeps an incomplete trailing frame until the next delimiter arrives and
// has no end condition of its own.
type Decoder struct {
	enc    Encoding
	buf    []byte
	frames int
}

// NewDecoder creates a decoder for the given encoding.
func NewDecoder(enc Encoding) *Decoder {
	return &Decoder{enc: enc}
}

// Pending returns the number of buffered bytes not yet delimited.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Push feeds one chunk and returns every frame it completed. Frames that
// fail to decode are skipped; their errors are joined into the returned
// error, each wrapped in a core.DecodeError whose offset is the frame
// index within the session.
func (d *Decoder) Push(chunk []byte) ([]Message, error) {
	d.buf = append(d.buf, chunk...)

	var (
		msgs []Message
		errs []error
	)
	for {
		idx := bytes.Index(d.buf, delimiter)
		if idx < 0 {
			break
		}
		raw := d.buf[:idx]
		d.buf = d.buf[idx+DelimiterLen:]
		if len(raw) == 0 {
			continue
		}

		msg, err := d.decode(raw)
		d.frames++
		if err != nil {
			errs = append(errs, core.NewDecodeError(core.StageInspect, d.frames-1, err))
			continue
		}
		msgs = append(msgs, msg)
	}

	// drop the consumed prefix so the backing array does not grow forever
	if len(d.buf) == 0 {
		d.buf = nil
	} else if cap(d.buf) > 2*len(d.buf)+4096 {
		d.buf = append([]byte(nil), d.buf...)
	}

	return msgs, errors.Join(errs...)
}

func (d *Decoder) decode(raw []byte) (Message, error) {
	if d.enc == EncodingBinary {
		return DecodeFrame(raw)
	}
	return DecodeHexFrame(bytes.TrimSpace(raw))
}

// EncodeStream renders messages as the inspector would emit them: each
// frame followed by the delimiter, hex encoded unless enc is binary.
func EncodeStream(enc Encoding, msgs ...Message) []byte {
	var out []byte
	for _, m := range msgs {
		b := EncodeFrame(m)
		if enc == EncodingHex {
			b = []byte(hex.EncodeToString(b))
		}
		out = append(out, b...)
		out = append(out, delimiter...)
	}
	return out
}
