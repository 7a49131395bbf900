package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/busctl/internal/transport"
	"firestige.xyz/busctl/internal/transport/transporttest"
)

func TestQueuePreservesOrder(t *testing.T) {
	link := transporttest.NewLink(nil)
	require.NoError(t, link.Open(context.Background()))
	defer link.Close()

	chunks, release := transport.Queue(link, 4)
	defer release()

	want := [][]byte{{1}, {2}, {3}, {4}, {5}, {6}}
	link.Feed(want...)

	for i, w := range want {
		select {
		case got := <-chunks:
			assert.Equal(t, w, got, "chunk %d", i)
		case <-time.After(time.Second):
			t.Fatalf("chunk %d not delivered", i)
		}
	}
}

func TestQueueReleaseRemovesListener(t *testing.T) {
	link := transporttest.NewLink(nil)
	require.NoError(t, link.Open(context.Background()))
	defer link.Close()

	_, release := transport.Queue(link, 1)
	assert.True(t, link.Listening())

	release()
	release()
	assert.False(t, link.Listening())
}

func TestQueueReleaseUnblocksFullQueue(t *testing.T) {
	link := transporttest.NewLink(nil)
	require.NoError(t, link.Open(context.Background()))
	defer link.Close()

	_, release := transport.Queue(link, 1)
	// the second chunk blocks the pump until release
	link.Feed([]byte{1}, []byte{2}, []byte{3})
	release()

	// the pump must still be able to deliver to a new subscriber
	chunks, release2 := transport.Queue(link, 1)
	defer release2()
	link.Feed([]byte{9})

	deadline := time.After(time.Second)
	for {
		select {
		case got := <-chunks:
			if got[0] == 9 {
				return
			}
		case <-deadline:
			t.Fatal("link pump stayed blocked after release")
		}
	}
}

func TestDoneOf(t *testing.T) {
	link := transporttest.NewLink(nil)
	require.NoError(t, link.Open(context.Background()))

	done := transport.DoneOf(link)
	require.NotNil(t, done)
	require.NoError(t, link.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done not closed after Close")
	}
}
