package rtb

import (
	"encoding/binary"
	"fmt"
	"strings"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/protocol/frame"
)

// Decode walks the payload in RecordSize steps until it reads the clear tag.
// Unknown tags are stepped over. Running out of bytes before the clear tag
// yields ErrTruncatedTable; a service ahead of any node yields
// ErrStructural. Both are wrapped in a core.DecodeError carrying the offset
// of the offending record.
func Decode(h frame.Header, payload []byte) (*Table, error) {
	table := &Table{Header: h, Nodes: make([]Node, 0)}

	for cursor := 0; ; cursor += RecordSize {
		if cursor >= len(payload) {
			return nil, core.NewDecodeError(core.StageTable, cursor,
				fmt.Errorf("%w: payload is %d bytes", core.ErrTruncatedTable, len(payload)))
		}

		mode := Mode(payload[cursor])
		if mode == ModeClear {
			return table, nil
		}
		if cursor+RecordSize > len(payload) {
			return nil, core.NewDecodeError(core.StageTable, cursor,
				fmt.Errorf("%w: %s record needs %d bytes, %d left",
					core.ErrTruncatedTable, mode, RecordSize, len(payload)-cursor))
		}
		body := payload[cursor+1 : cursor+RecordSize]

		switch mode {
		case ModeNode:
			table.Nodes = append(table.Nodes, parseNode(body))
		case ModeService:
			if len(table.Nodes) == 0 {
				return nil, core.NewDecodeError(core.StageTable, cursor, core.ErrStructural)
			}
			last := &table.Nodes[len(table.Nodes)-1]
			last.Services = append(last.Services, parseService(body))
		}
	}
}

func parseNode(body []byte) Node {
	raw := binary.LittleEndian.Uint16(body[0:2])
	return Node{
		ID:          raw & 0x0FFF,
		Certificate: (raw>>12)&0x1 == 1,
		PortTable:   parsePortTable(body[2:bodySize]),
		Services:    make([]Service, 0),
	}
}

// parsePortTable rebuilds port ids from interleaved low/high bytes. Zero
// bytes are skipped; an even offset starts a new entry with its low byte and
// an odd offset ORs its high byte into the latest entry.
func parsePortTable(b []byte) []uint16 {
	ports := make([]uint16, 0, len(b)/2)
	for i, v := range b {
		if v == 0 {
			continue
		}
		switch {
		case i%2 == 0:
			ports = append(ports, uint16(v))
		case len(ports) == 0:
			// high byte with no entry started yet
			ports = append(ports, uint16(v)<<8)
		default:
			ports[len(ports)-1] |= uint16(v) << 8
		}
	}
	return ports
}

func parseService(body []byte) Service {
	return Service{
		ID:     binary.LittleEndian.Uint16(body[0:2]),
		Type:   binary.LittleEndian.Uint16(body[2:4]),
		Access: Access(body[4]),
		Alias:  parseAlias(body[5:]),
	}
}

// parseAlias drops 0x00 and 0xFF filler wherever it appears and reads the
// rest as UTF-8, replacing invalid sequences.
func parseAlias(b []byte) string {
	kept := make([]byte, 0, len(b))
	for _, v := range b {
		if v != 0x00 && v != 0xFF {
			kept = append(kept, v)
		}
	}
	return strings.ToValidUTF8(string(kept), "\uFFFD")
}
