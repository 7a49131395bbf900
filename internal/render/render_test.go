package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/busctl/internal/protocol/frame"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/protocol/rtb"
	"firestige.xyz/busctl/internal/transport/serial"
)

func sampleTable() *rtb.Table {
	return &rtb.Table{
		Header: frame.Header{Protocol: 1, Target: 0xFFF, Mode: 3, Command: frame.CommandRoutingTable, Size: 67},
		Nodes: []rtb.Node{
			{ID: 1, Certificate: true, PortTable: []uint16{2}, Services: []rtb.Service{
				{ID: 1, Type: 5, Access: rtb.AccessReadOnly, Alias: "gate"},
			}},
			{ID: 2, PortTable: []uint16{1}, Services: []rtb.Service{}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestTableText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, FormatText, sampleTable()))

	out := buf.String()
	assert.Contains(t, out, "command=0x3D size=67")
	assert.Contains(t, out, "2 nodes, 1 services")
	assert.Contains(t, out, "read-only")
	assert.Contains(t, out, "gate")
}

func TestTableJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, FormatJSON, sampleTable()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, float64(0x3D), got["command"])
	nodes := got["nodes"].([]any)
	require.Len(t, nodes, 2)
	svc := nodes[0].(map[string]any)["services"].([]any)[0].(map[string]any)
	assert.Equal(t, "read-only", svc["access"])
	assert.Equal(t, "gate", svc["alias"])
}

func TestTableYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, FormatYAML, sampleTable()))

	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 0x3D, got["command"])
	assert.Equal(t, 0xFFF, got["target"])
	assert.Contains(t, buf.String(), "access: read-only")
}

func TestMessageText(t *testing.T) {
	m := inspect.Message{Timestamp: 9, Protocol: 1, Target: 0x12, Source: 0x3, Command: 0x10, Size: 200, Payload: inspect.HexBytes{0xAB, 0xCD}}
	assert.Equal(t, "ts=9 proto=1 target=0x012 mode=0 source=0x003 cmd=0x10 size=200 msg=abcd (truncated)", MessageLine(m))

	var buf bytes.Buffer
	require.NoError(t, Message(&buf, FormatText, m))
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
}

func TestMessageJSONIsOneLine(t *testing.T) {
	m := inspect.Message{Timestamp: 1, Command: 0x20, Size: 1, Payload: inspect.HexBytes{0x7E}}
	var buf bytes.Buffer
	require.NoError(t, Message(&buf, FormatJSON, m))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"payload":"7e"`)
}

func TestPortsText(t *testing.T) {
	var buf bytes.Buffer
	err := Ports(&buf, FormatText, []serial.PortInfo{{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0483", PID: "5740"}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "/dev/ttyUSB0")
	assert.Contains(t, buf.String(), "0483")
}

func TestNamesJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Names(&buf, FormatJSON, nil))
	assert.Equal(t, "[]\n", buf.String())
}
