// Package frame implements synchronization and reassembly of routing-table
// response frames read from the bus gateway.
//
// Frame layout on the wire:
//
//	[7E 7E 7E 7E][P|Tlo][Thi][M|Slo][Shi][CMD][SIZE_L][SIZE_H][PAYLOAD...]
//
// P is the 4-bit protocol, T the 12-bit target, M the 4-bit target mode,
// S the 12-bit source. SIZE is the little-endian payload length.
package frame

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"firestige.xyz/busctl/internal/core"
)

const (
	// MarkerByte is repeated MarkerLen times ahead of every header.
	MarkerByte = 0x7E
	MarkerLen  = 4

	// HeaderLen is the number of header bytes following the marker.
	HeaderLen = 7

	// CommandRoutingTable is the command carried by the table request.
	CommandRoutingTable = 0x3D
)

var marker = bytes.Repeat([]byte{MarkerByte}, MarkerLen)

// TableRequest returns the fixed 8-byte command asking the gateway for its
// routing table. A new slice is returned on every call.
func TableRequest() []byte {
	return []byte{0xF0, 0xFF, 0x03, 0x00, CommandRoutingTable, 0x00, 0x00, 0x7E}
}

// Header holds the addressing fields that precede a payload.
type Header struct {
	Protocol uint8  `json:"protocol" yaml:"protocol"`
	Target   uint16 `json:"target" yaml:"target"`
	Mode     uint8  `json:"mode" yaml:"mode"`
	Source   uint16 `json:"source" yaml:"source"`
	Command  uint8  `json:"command" yaml:"command"`
	Size     uint16 `json:"size" yaml:"size"`
}

// ParseHeader decodes the HeaderLen bytes that follow the marker.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: got %d header bytes, need %d", core.ErrMalformedHeader, len(b), HeaderLen)
	}
	return Header{
		Protocol: b[0] & 0x0F,
		Target:   uint16(b[0]>>4) | uint16(b[1])<<4,
		Mode:     b[2] & 0x0F,
		Source:   uint16(b[2]>>4) | uint16(b[3])<<4,
		Command:  b[4],
		Size:     binary.LittleEndian.Uint16(b[5:7]),
	}, nil
}

// Encode is the inverse of ParseHeader. Fields wider than their wire width
// are masked.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderLen)
	b[0] = h.Protocol&0x0F | byte(h.Target&0x0F)<<4
	b[1] = byte(h.Target >> 4)
	b[2] = h.Mode&0x0F | byte(h.Source&0x0F)<<4
	b[3] = byte(h.Source >> 4)
	b[4] = h.Command
	binary.LittleEndian.PutUint16(b[5:7], h.Size)
	return b
}

// Encode builds a complete frame: marker, header and payload. The header's
// Size field is written as given, so callers can build inconsistent frames
// on purpose.
func Encode(h Header, payload []byte) []byte {
	out := make([]byte, 0, MarkerLen+HeaderLen+len(payload))
	out = append(out, marker...)
	out = append(out, h.Encode()...)
	return append(out, payload...)
}
