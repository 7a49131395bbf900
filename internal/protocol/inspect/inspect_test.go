package inspect

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"firestige.xyz/busctl/internal/core"
)

func sampleMessage(size int) Message {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i)
	}
	return Message{
		Timestamp:  0x0102030405060708,
		Protocol:   0x2,
		Target:     0x0AB,
		TargetMode: 0x1,
		Source:     0x123,
		Command:    0x1F,
		Size:       uint16(size),
		Payload:    payload,
	}
}

func TestDecodeFrameFields(t *testing.T) {
	raw := []byte{
		0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, // timestamp LE
		0xB2, 0x0A, // protocol 2, target 0x0AB
		0x31, 0x12, // mode 1, source 0x123
		0x1F,       // command
		0x02, 0x00, // size 2
		0xCA, 0xFE,
	}
	m, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Timestamp != 0x0102030405060708 {
		t.Errorf("timestamp: got 0x%X", m.Timestamp)
	}
	if m.Protocol != 2 || m.Target != 0x0AB || m.TargetMode != 1 || m.Source != 0x123 {
		t.Errorf("addressing: got %+v", m)
	}
	if m.Command != 0x1F || m.Size != 2 {
		t.Errorf("command/size: got %d/%d", m.Command, m.Size)
	}
	if !bytes.Equal(m.Payload, []byte{0xCA, 0xFE}) {
		t.Errorf("payload: got % X", m.Payload)
	}
	if m.Truncated() {
		t.Error("message should not be truncated")
	}
}

func TestDecodeFrameZeroSize(t *testing.T) {
	m, err := DecodeFrame(EncodeFrame(sampleMessage(0)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Payload) != 0 {
		t.Fatalf("expected empty payload, got % X", m.Payload)
	}
}

func TestDecodeFrameTruncatesLongMessages(t *testing.T) {
	m, err := DecodeFrame(EncodeFrame(sampleMessage(200)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Payload) != MaxMessage {
		t.Fatalf("expected %d payload bytes, got %d", MaxMessage, len(m.Payload))
	}
	if m.Size != 200 {
		t.Fatalf("declared size must be kept, got %d", m.Size)
	}
	if !m.Truncated() {
		t.Error("message should report truncation")
	}
	if m.Payload[127] != 127 {
		t.Errorf("expected first 128 bytes, last kept byte is %d", m.Payload[127])
	}
}

func TestDecodeFrameShortPayload(t *testing.T) {
	full := EncodeFrame(sampleMessage(10))
	m, err := DecodeFrame(full[:len(full)-4])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Payload) != 6 || m.Size != 10 {
		t.Fatalf("expected 6 of 10 bytes, got %d of %d", len(m.Payload), m.Size)
	}
}

func TestDecodeFrameTooShort(t *testing.T) {
	_, err := DecodeFrame(make([]byte, 14))
	if !errors.Is(err, core.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
}

func TestDecodeHexFrameInvalid(t *testing.T) {
	_, err := DecodeHexFrame([]byte("zz00"))
	if !errors.Is(err, core.ErrUnparsableText) {
		t.Fatalf("expected ErrUnparsableText, got %v", err)
	}
}

func TestDecoderHexStreamAcrossChunks(t *testing.T) {
	msgs := []Message{sampleMessage(3), sampleMessage(0), sampleMessage(200)}
	stream := EncodeStream(EncodingHex, msgs...)

	d := NewDecoder(EncodingHex)
	var got []Message
	for i := 0; i < len(stream); i += 7 {
		end := i + 7
		if end > len(stream) {
			end = len(stream)
		}
		out, err := d.Push(stream[i:end])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, out...)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[2].Size != 200 || len(got[2].Payload) != MaxMessage {
		t.Errorf("third message not truncated correctly: size=%d len=%d", got[2].Size, len(got[2].Payload))
	}
	if d.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d bytes", d.Pending())
	}
}

func TestDecoderBinaryStream(t *testing.T) {
	d := NewDecoder(EncodingBinary)
	out, err := d.Push(EncodeStream(EncodingBinary, sampleMessage(4)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Source != 0x123 {
		t.Fatalf("unexpected messages %+v", out)
	}
}

func TestDecoderKeepsPartialFrame(t *testing.T) {
	d := NewDecoder(EncodingHex)
	text := []byte(hex.EncodeToString(EncodeFrame(sampleMessage(2))))

	out, err := d.Push(text)
	if err != nil || len(out) != 0 {
		t.Fatalf("expected no message yet, got %v, %v", out, err)
	}
	if d.Pending() != len(text) {
		t.Fatalf("expected %d pending bytes, got %d", len(text), d.Pending())
	}
	out, err = d.Push([]byte{0x7E, 0x7E, 0x7E})
	if err != nil || len(out) != 1 {
		t.Fatalf("expected one message, got %v, %v", out, err)
	}
}

func TestDecoderReportsBadFramesAndContinues(t *testing.T) {
	stream := append([]byte("nothex"), 0x7E, 0x7E, 0x7E)
	stream = append(stream, EncodeStream(EncodingHex, sampleMessage(1))...)

	d := NewDecoder(EncodingHex)
	out, err := d.Push(stream)
	if len(out) != 1 {
		t.Fatalf("expected the good frame to decode, got %d messages", len(out))
	}
	if !errors.Is(err, core.ErrUnparsableText) {
		t.Fatalf("expected ErrUnparsableText, got %v", err)
	}
	stage, ok := core.StageOf(err)
	if !ok || stage != core.StageInspect {
		t.Errorf("expected inspect stage, got %v", err)
	}
}

func TestDecoderSkipsEmptyFrames(t *testing.T) {
	d := NewDecoder(EncodingHex)
	out, err := d.Push([]byte{0x7E, 0x7E, 0x7E, 0x7E, 0x7E, 0x7E})
	if err != nil || len(out) != 0 {
		t.Fatalf("expected nothing, got %v, %v", out, err)
	}
}

func TestParseEncoding(t *testing.T) {
	if enc, err := ParseEncoding("BINARY"); err != nil || enc != EncodingBinary {
		t.Errorf("ParseEncoding(BINARY) = %v, %v", enc, err)
	}
	if enc, err := ParseEncoding(""); err != nil || enc != EncodingHex {
		t.Errorf("ParseEncoding(\"\") = %v, %v", enc, err)
	}
	if _, err := ParseEncoding("base64"); err == nil {
		t.Error("expected error for unknown encoding")
	}
}

func TestMessageJSONPayloadIsHex(t *testing.T) {
	b, err := json.Marshal(Message{Size: 2, Payload: HexBytes{0xCA, 0xFE}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(b, []byte(`"payload":"cafe"`)) {
		t.Fatalf("expected hex payload in %s", b)
	}
}
