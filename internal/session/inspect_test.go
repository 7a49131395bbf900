package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/busctl/internal/core"
	"firestige.xyz/busctl/internal/protocol/inspect"
	"firestige.xyz/busctl/internal/transport/transporttest"
)

func sampleMessage(ts uint64, cmd uint8, payload ...byte) inspect.Message {
	return inspect.Message{
		Timestamp:  ts,
		Protocol:   1,
		Target:     0x123,
		TargetMode: 2,
		Source:     0x045,
		Command:    cmd,
		Size:       uint16(len(payload)),
		Payload:    inspect.HexBytes(payload),
	}
}

// gateway answers the init/start handshake and then streams msgs.
func gateway(reply string, enc inspect.Encoding, msgs ...inspect.Message) transporttest.Responder {
	return func(written []byte) [][]byte {
		switch string(written) {
		case handshakeInit:
			return [][]byte{[]byte(reply)}
		case handshakeStart:
			return transporttest.Split(inspect.EncodeStream(enc, msgs...), 9)
		}
		return nil
	}
}

func collect(ch chan inspect.Message) Handler {
	return func(m inspect.Message) { ch <- m }
}

func TestInspectWithHandshake(t *testing.T) {
	m1 := sampleMessage(1000, 0x10, 0xAA, 0xBB)
	m2 := sampleMessage(2000, 0x11, 0x01)
	link := transporttest.NewLink(gateway("yes", inspect.EncodingHex, m1, m2))
	client := NewClient(link, WithInspectTimeout(time.Second))

	got := make(chan inspect.Message, 4)
	sess, first, err := client.Inspect(context.Background(), collect(got))
	require.NoError(t, err)
	assert.Equal(t, m1, first)

	assert.Equal(t, m1, <-got)
	assert.Equal(t, m2, <-got)
	assert.True(t, client.Busy())

	require.NoError(t, sess.Stop())
	assert.Equal(t, uint64(2), sess.Messages())
	assert.False(t, link.Listening())
	assert.False(t, client.Busy())

	writes := link.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, "init", string(writes[0]))
	assert.Equal(t, "start", string(writes[1]))
}

func TestInspectBinaryWithoutHandshake(t *testing.T) {
	m := sampleMessage(7, 0x20, 0x01, 0x02, 0x03)
	link := transporttest.NewLink(nil)
	client := NewClient(link,
		WithHandshake(false),
		WithEncoding(inspect.EncodingBinary),
		WithInspectTimeout(time.Second),
	)

	go func() {
		if !assert.Eventually(t, link.Listening, time.Second, time.Millisecond) {
			return
		}
		link.Feed(transporttest.Split(inspect.EncodeStream(inspect.EncodingBinary, m), 4)...)
	}()

	sess, first, err := client.Inspect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, m, first)
	assert.Empty(t, link.Writes())
	require.NoError(t, sess.Stop())
}

func TestInspectTruncatesLongMessages(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = byte(i)
	}
	m := sampleMessage(1, 0x30, long...)
	link := transporttest.NewLink(gateway("yes", inspect.EncodingHex, m))
	client := NewClient(link)

	sess, first, err := client.Inspect(context.Background(), nil)
	require.NoError(t, err)
	defer sess.Stop()

	assert.Equal(t, uint16(200), first.Size)
	assert.Len(t, first.Payload, inspect.MaxMessage)
	assert.True(t, first.Truncated())
}

func TestInspectHandshakeRejected(t *testing.T) {
	link := transporttest.NewLink(gateway("no", inspect.EncodingHex))
	client := NewClient(link)

	_, _, err := client.Inspect(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrHandshake)
	assert.False(t, link.Listening())
	assert.False(t, client.Busy())
	_, closed := link.Counts()
	assert.Equal(t, 1, closed)
}

func TestInspectHandshakeTimeout(t *testing.T) {
	link := transporttest.NewLink(nil)
	client := NewClient(link, WithHandshakeTimeout(20*time.Millisecond))

	_, _, err := client.Inspect(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.False(t, client.Busy())
}

func TestInspectFirstMessageTimeout(t *testing.T) {
	link := transporttest.NewLink(gateway("yes", inspect.EncodingHex))
	client := NewClient(link, WithInspectTimeout(30*time.Millisecond))

	_, _, err := client.Inspect(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.False(t, link.Listening())
	assert.False(t, client.Busy())
	_, closed := link.Counts()
	assert.Equal(t, 1, closed)
}

func TestInspectSkipsBadFrames(t *testing.T) {
	m := sampleMessage(5, 0x40, 0x09)
	link := transporttest.NewLink(func(written []byte) [][]byte {
		switch string(written) {
		case handshakeInit:
			return [][]byte{[]byte("yes")}
		case handshakeStart:
			bad := append([]byte("zz"), 0x7E, 0x7E, 0x7E)
			return [][]byte{bad, inspect.EncodeStream(inspect.EncodingHex, m)}
		}
		return nil
	})
	client := NewClient(link)

	sess, first, err := client.Inspect(context.Background(), nil)
	require.NoError(t, err)
	defer sess.Stop()
	assert.Equal(t, m, first)
}

func TestInspectLinkGone(t *testing.T) {
	m := sampleMessage(1, 0x10, 0x01)
	link := transporttest.NewLink(gateway("yes", inspect.EncodingHex, m))
	client := NewClient(link)

	sess, _, err := client.Inspect(context.Background(), nil)
	require.NoError(t, err)

	require.NoError(t, link.Close())
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end after the link closed")
	}
	assert.ErrorIs(t, sess.Err(), core.ErrTransportClosed)
	assert.False(t, client.Busy())
}

func TestInspectParentContextEndsStream(t *testing.T) {
	m := sampleMessage(1, 0x10, 0x01)
	link := transporttest.NewLink(gateway("yes", inspect.EncodingHex, m))
	client := NewClient(link)

	ctx, cancel := context.WithCancel(context.Background())
	sess, _, err := client.Inspect(ctx, nil)
	require.NoError(t, err)

	cancel()
	<-sess.Done()
	assert.ErrorIs(t, sess.Err(), context.Canceled)
	assert.False(t, link.Listening())
}
