package broadcast

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func TestForwarder_DeliversMessages(t *testing.T) {
	t.Parallel()
	server := listenLoopback(t)

	f, err := Dial(server.LocalAddr().String(), time.Second)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	require.True(t, f.Send([]byte("hello")))

	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 64)
	n, _, err := server.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.Eventually(t, func() bool { return f.Sent() == 1 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	server := listenLoopback(t)
	f, err := Dial(server.LocalAddr().String(), time.Second)
	require.NoError(t, err)
	defer f.Close()

	// Not started: nothing drains the queue.
	for i := 0; i < DefaultQueue; i++ {
		require.True(t, f.Send([]byte{byte(i)}))
	}
	assert.False(t, f.Send([]byte("overflow")))
	assert.Equal(t, int64(1), f.Dropped())
}

func TestForwarder_SendAfterClose(t *testing.T) {
	t.Parallel()
	server := listenLoopback(t)
	f, err := Dial(server.LocalAddr().String(), time.Second)
	require.NoError(t, err)

	require.NoError(t, f.Close())
	assert.NoError(t, f.Close())
	assert.False(t, f.Send([]byte("late")))
	assert.Equal(t, int64(1), f.Dropped())
}

func TestDial_BadAddress(t *testing.T) {
	t.Parallel()
	_, err := Dial("not an address", time.Second)
	assert.Error(t, err)
}
