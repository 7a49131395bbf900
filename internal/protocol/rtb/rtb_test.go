package rtb

import (
	"errors"
	"reflect"
	"testing"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/protocol/frame"
)

func mustNode(t *testing.T, n Node) []byte {
	t.Helper()
	rec, err := NodeRecord(n)
	if err != nil {
		t.Fatalf("NodeRecord: %v", err)
	}
	return rec
}

func mustService(t *testing.T, s Service) []byte {
	t.Helper()
	rec, err := ServiceRecord(s)
	if err != nil {
		t.Fatalf("ServiceRecord: %v", err)
	}
	return rec
}

func TestDecodeEmptyTable(t *testing.T) {
	table, err := Decode(frame.Header{}, []byte{byte(ModeClear)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Nodes == nil || len(table.Nodes) != 0 {
		t.Fatalf("expected empty non-nil node list, got %v", table.Nodes)
	}
}

func TestDecodeEmptyPayloadIsTruncated(t *testing.T) {
	_, err := Decode(frame.Header{}, nil)
	if !errors.Is(err, core.ErrTruncatedTable) {
		t.Fatalf("expected ErrTruncatedTable, got %v", err)
	}
}

func TestDecodeMissingClearTag(t *testing.T) {
	payload := append(mustNode(t, Node{ID: 1}), mustNode(t, Node{ID: 2})...)

	_, err := Decode(frame.Header{}, payload)
	var de *core.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if !errors.Is(err, core.ErrTruncatedTable) {
		t.Fatalf("expected ErrTruncatedTable, got %v", err)
	}
	if de.Offset != 2*RecordSize {
		t.Errorf("expected offset %d, got %d", 2*RecordSize, de.Offset)
	}
}

func TestDecodePartialRecord(t *testing.T) {
	payload := mustNode(t, Node{ID: 1})
	payload = append(payload, mustNode(t, Node{ID: 2})[:10]...)

	_, err := Decode(frame.Header{}, payload)
	if !errors.Is(err, core.ErrTruncatedTable) {
		t.Fatalf("expected ErrTruncatedTable, got %v", err)
	}
}

func TestDecodeServiceWithoutNode(t *testing.T) {
	payload := append(mustService(t, Service{ID: 2, Alias: "gate"}), byte(ModeClear))

	_, err := Decode(frame.Header{}, payload)
	if !errors.Is(err, core.ErrStructural) {
		t.Fatalf("expected ErrStructural, got %v", err)
	}
	var de *core.DecodeError
	if errors.As(err, &de) && de.Offset != 0 {
		t.Errorf("expected offset 0, got %d", de.Offset)
	}
}

func TestDecodeNodesAndServices(t *testing.T) {
	var payload []byte
	payload = append(payload, mustNode(t, Node{ID: 1, Certificate: true, PortTable: []uint16{2, 0x0103}})...)
	payload = append(payload, mustService(t, Service{ID: 1, Type: 5, Access: AccessReadWrite, Alias: "gate"})...)
	payload = append(payload, mustService(t, Service{ID: 2, Type: 10, Access: AccessReadOnly, Alias: "pipe"})...)
	payload = append(payload, mustNode(t, Node{ID: 2, PortTable: []uint16{1}})...)
	payload = append(payload, mustService(t, Service{ID: 3, Type: 1, Access: AccessNone, Alias: "button"})...)
	payload = append(payload, byte(ModeClear))

	h := frame.Header{Protocol: 1, Command: frame.CommandRoutingTable, Size: uint16(len(payload))}
	table, err := Decode(h, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Header != h {
		t.Errorf("expected header %+v, got %+v", h, table.Header)
	}
	if len(table.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(table.Nodes))
	}

	first := table.Nodes[0]
	if first.ID != 1 || !first.Certificate {
		t.Errorf("unexpected first node %+v", first)
	}
	if !reflect.DeepEqual(first.PortTable, []uint16{2, 0x0103}) {
		t.Errorf("unexpected port table %v", first.PortTable)
	}
	if len(first.Services) != 2 || first.Services[1].Alias != "pipe" || first.Services[1].Access != AccessReadOnly {
		t.Errorf("unexpected services %+v", first.Services)
	}
	if len(table.Nodes[1].Services) != 1 || table.Nodes[1].Services[0].Alias != "button" {
		t.Errorf("unexpected services on second node %+v", table.Nodes[1].Services)
	}
	if table.ServiceCount() != 3 {
		t.Errorf("expected 3 services, got %d", table.ServiceCount())
	}
	if s, n, ok := table.FindService("button"); !ok || s.ID != 3 || n.ID != 2 {
		t.Errorf("FindService(button) = %+v, %+v, %v", s, n, ok)
	}
}

func TestDecodeSkipsUnknownMode(t *testing.T) {
	unknown := make([]byte, RecordSize)
	unknown[0] = 0x09
	payload := append(unknown, mustNode(t, Node{ID: 7})...)
	payload = append(payload, byte(ModeClear))

	table, err := Decode(frame.Header{}, payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Nodes) != 1 || table.Nodes[0].ID != 7 {
		t.Fatalf("expected single node 7, got %+v", table.Nodes)
	}
}

func TestParseNodeIDMask(t *testing.T) {
	body := make([]byte, bodySize)
	body[0], body[1] = 0xFF, 0xFF

	n := parseNode(body)
	if n.ID != 0x0FFF {
		t.Errorf("expected id 0xFFF, got 0x%X", n.ID)
	}
	if !n.Certificate {
		t.Error("bit 12 set, certificate expected")
	}

	body[1] = 0x0F
	if parseNode(body).Certificate {
		t.Error("bit 12 clear, certificate not expected")
	}
}

func TestParsePortTable(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []uint16
	}{
		{"two low bytes", []byte{0x01, 0x00, 0x02, 0x00}, []uint16{1, 2}},
		{"merged high byte", []byte{0x00, 0x00, 0x03, 0x01}, []uint16{259}},
		{"all zero", make([]byte, 19), []uint16{}},
		{"high byte first", []byte{0x00, 0x02}, []uint16{0x0200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePortTable(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePortTable(% X) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseAliasStripsFiller(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{[]byte{0x41, 0x42, 0x00, 0x00, 0x00}, "AB"},
		{[]byte{0xFF, 0x41, 0x00, 0x42, 0xFF}, "AB"},
		{[]byte{0x00, 0xFF}, ""},
	}
	for _, tt := range tests {
		if got := parseAlias(tt.in); got != tt.want {
			t.Errorf("parseAlias(% X) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAccessMarshalText(t *testing.T) {
	b, err := AccessWriteOnly.MarshalText()
	if err != nil || string(b) != "write-only" {
		t.Fatalf("unexpected %q, %v", b, err)
	}
	if Access(9).String() != "access(9)" {
		t.Errorf("unexpected unknown access name %q", Access(9).String())
	}
}

func TestEncodeRejectsOversizedFields(t *testing.T) {
	if _, err := NodeRecord(Node{ID: 0x1000}); err == nil {
		t.Error("expected error for 13-bit node id")
	}
	if _, err := NodeRecord(Node{ID: 1, PortTable: make([]uint16, MaxPorts+1)}); err == nil {
		t.Error("expected error for too many ports")
	}
	if _, err := ServiceRecord(Service{Alias: "an-alias-way-too-long"}); err == nil {
		t.Error("expected error for long alias")
	}
}
