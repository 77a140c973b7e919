package mocap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/banshee-data/arena.grid/internal/monitoring"
)

// DefaultPort is the UDP port the mocap bridge sends frames to.
const DefaultPort = 20001

// maxDatagram matches the bridge's send buffer.
const maxDatagram = 32768

// Stats counts datagrams seen by a Listener or a replay.
type Stats interface {
	AddPacket(bytes int)
	AddDropped()
	AddFrame()
}

// Forwarder mirrors raw datagrams somewhere else, typically a visualiser.
type Forwarder interface {
	ForwardAsync(packet []byte)
}

// Counters is a Stats backed by atomics.
type Counters struct {
	Packets atomic.Int64
	Bytes   atomic.Int64
	Dropped atomic.Int64
	Frames  atomic.Int64
}

func (c *Counters) AddPacket(bytes int) {
	c.Packets.Add(1)
	c.Bytes.Add(int64(bytes))
}

func (c *Counters) AddDropped() { c.Dropped.Add(1) }
func (c *Counters) AddFrame()   { c.Frames.Add(1) }

// Log writes a one-line summary through monitoring.Logf.
func (c *Counters) Log() {
	monitoring.Logf("mocap: %d packets (%d bytes), %d frames, %d dropped",
		c.Packets.Load(), c.Bytes.Load(), c.Frames.Load(), c.Dropped.Load())
}

type noopStats struct{}

func (noopStats) AddPacket(int) {}
func (noopStats) AddDropped()   {}
func (noopStats) AddFrame()     {}

// ListenerConfig configures a Listener. Only Address and Sink are required.
type ListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       Stats
	Sink        Sink
	Forwarder   Forwarder
	Factory     UDPSocketFactory
}

// Listener receives JSON frames over UDP.
type Listener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       Stats
	sink        Sink
	forwarder   Forwarder
	factory     UDPSocketFactory
}

func NewListener(cfg ListenerConfig) *Listener {
	l := &Listener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		stats:       cfg.Stats,
		sink:        cfg.Sink,
		forwarder:   cfg.Forwarder,
		factory:     cfg.Factory,
	}
	if l.address == "" {
		l.address = fmt.Sprintf(":%d", DefaultPort)
	}
	if l.stats == nil {
		l.stats = noopStats{}
	}
	if l.logInterval == 0 {
		l.logInterval = time.Minute
	}
	if l.factory == nil {
		l.factory = NetFactory{}
	}
	return l
}

// Start reads datagrams until ctx is cancelled. It always returns a non-nil
// error: ctx.Err() on shutdown, or the reason the socket could not be used.
func (l *Listener) Start(ctx context.Context) error {
	if l.sink == nil {
		return errors.New("mocap listener has no sink")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("mocap: failed to set receive buffer to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Logf("mocap: listening on %s", conn.LocalAddr())

	if c, ok := l.stats.(*Counters); ok {
		go logEvery(ctx, l.logInterval, c)
	}

	buf := make([]byte, maxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			monitoring.Logf("mocap: read error: %v", err)
			continue
		}
		if err := l.handle(buf[:n]); err != nil {
			monitoring.Logf("mocap: datagram from %v: %v", from, err)
		}
	}
}

func (l *Listener) handle(packet []byte) error {
	return deliver(packet, l.stats, l.sink, l.forwarder)
}

// deliver is shared by the live listener and the pcap replay.
func deliver(packet []byte, stats Stats, sink Sink, fwd Forwarder) error {
	stats.AddPacket(len(packet))
	if fwd != nil {
		fwd.ForwardAsync(packet)
	}
	f, err := DecodeFrame(packet)
	if err != nil {
		stats.AddDropped()
		return err
	}
	stats.AddFrame()
	sink.HandleFrame(f)
	return nil
}

func logEvery(ctx context.Context, every time.Duration, c *Counters) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Log()
		}
	}
}
