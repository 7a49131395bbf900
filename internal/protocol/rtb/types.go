// Package rtb decodes the bus routing table: the nodes present on the bus,
// their port tables and the services each node exposes.
package rtb

import (
	"fmt"

	"firestige.xyz/busctl/internal/protocol/frame"
)

// RecordSize is the fixed width of every entry: one mode tag byte followed
// by a 21-byte body.
const (
	RecordSize = 22
	bodySize   = RecordSize - 1
)

// Mode is the tag byte opening each routing table entry.
type Mode uint8

const (
	// ModeClear terminates the entry list.
	ModeClear Mode = iota
	ModeNode
	ModeService
)

func (m Mode) String() string {
	switch m {
	case ModeClear:
		return "clear"
	case ModeNode:
		return "node"
	case ModeService:
		return "service"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Access is the access level a service grants to other services.
type Access uint8

const (
	AccessReadWrite Access = iota
	AccessReadOnly
	AccessWriteOnly
	AccessNone
)

func (a Access) String() string {
	switch a {
	case AccessReadWrite:
		return "read-write"
	case AccessReadOnly:
		return "read-only"
	case AccessWriteOnly:
		return "write-only"
	case AccessNone:
		return "none"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// MarshalText renders the access level by name in JSON and YAML output.
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Service is a logical capability exposed by a node.
type Service struct {
	ID     uint16 `json:"id" yaml:"id"`
	Type   uint16 `json:"type" yaml:"type"`
	Access Access `json:"access" yaml:"access"`
	Alias  string `json:"alias" yaml:"alias"`
}

// Node is a physical bus participant.
type Node struct {
	ID          uint16    `json:"id" yaml:"id"`
	Certificate bool      `json:"certificate" yaml:"certificate"`
	PortTable   []uint16  `json:"port_table" yaml:"port_table"`
	Services    []Service `json:"services" yaml:"services"`
}

// Table is one decoded routing table response.
type Table struct {
	frame.Header `yaml:",inline"`
	Nodes        []Node `json:"nodes" yaml:"nodes"`
}

// ServiceCount returns the number of services across all nodes.
func (t *Table) ServiceCount() int {
	n := 0
	for _, node := range t.Nodes {
		n += len(node.Services)
	}
	return n
}

// FindService returns the first service with the given alias.
func (t *Table) FindService(alias string) (Service, Node, bool) {
	for _, node := range t.Nodes {
		for _, s := range node.Services {
			if s.Alias == alias {
				return s, node, true
			}
		}
	}
	return Service{}, Node{}, false
}
