package rtb

import (
	"encoding/binary"
	"fmt"
)

// MaxPorts and MaxAliasLen bound what fits in one record body.
const (
	MaxPorts    = (bodySize - 2) / 2
	MaxAliasLen = bodySize - 5
)

// NodeRecord encodes a node entry as the gateway sends it.
func NodeRecord(n Node) ([]byte, error) {
	if n.ID > 0x0FFF {
		return nil, fmt.Errorf("node id %d exceeds 12 bits", n.ID)
	}
	if len(n.PortTable) > MaxPorts {
		return nil, fmt.Errorf("node %d: %d ports, at most %d fit", n.ID, len(n.PortTable), MaxPorts)
	}
	rec := make([]byte, RecordSize)
	rec[0] = byte(ModeNode)
	raw := n.ID
	if n.Certificate {
		raw |= 1 << 12
	}
	binary.LittleEndian.PutUint16(rec[1:3], raw)
	for i, p := range n.PortTable {
		binary.LittleEndian.PutUint16(rec[3+2*i:5+2*i], p)
	}
	return rec, nil
}

// ServiceRecord encodes a service entry; unused alias bytes are zero filled.
func ServiceRecord(s Service) ([]byte, error) {
	if len(s.Alias) > MaxAliasLen {
		return nil, fmt.Errorf("service %d: alias %q longer than %d bytes", s.ID, s.Alias, MaxAliasLen)
	}
	rec := make([]byte, RecordSize)
	rec[0] = byte(ModeService)
	binary.LittleEndian.PutUint16(rec[1:3], s.ID)
	binary.LittleEndian.PutUint16(rec[3:5], s.Type)
	rec[5] = byte(s.Access)
	copy(rec[6:], s.Alias)
	return rec, nil
}

// EncodePayload lays out nodes and their services followed by the clear
// tag, the inverse of Decode.
func EncodePayload(nodes []Node) ([]byte, error) {
	var out []byte
	for _, n := range nodes {
		rec, err := NodeRecord(n)
		if err != nil {
			return nil, err
		}
		out = append(out, rec...)
		for _, s := range n.Services {
			rec, err := ServiceRecord(s)
			if err != nil {
				return nil, err
			}
			out = append(out, rec...)
		}
	}
	return append(out, byte(ModeClear)), nil
}
