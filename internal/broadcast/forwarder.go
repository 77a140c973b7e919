// Package broadcast sends robot poses and plans to the robots over UDP.
// Delivery is fire-and-forget: a full queue or a failed write drops the
// message and is only counted.
package broadcast

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/arena.grid/internal/monitoring"
)

// DefaultQueue is the number of messages buffered before Send drops.
const DefaultQueue = 256

// Forwarder writes queued messages to one UDP destination.
type Forwarder struct {
	conn        net.Conn
	queue       chan []byte
	address     string
	logInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}

	sent    atomic.Int64
	dropped atomic.Int64
}

// Dial connects a Forwarder to addr ("host:port").
func Dial(addr string, logInterval time.Duration) (*Forwarder, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve broadcast address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create broadcast connection: %w", err)
	}
	return NewForwarder(conn, addr, logInterval), nil
}

// NewForwarder wraps an already connected conn.
func NewForwarder(conn net.Conn, addr string, logInterval time.Duration) *Forwarder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &Forwarder{
		conn:        conn,
		queue:       make(chan []byte, DefaultQueue),
		address:     addr,
		logInterval: logInterval,
		done:        make(chan struct{}),
	}
}

// Start drains the queue in a goroutine until ctx is cancelled or Close is
// called.
func (f *Forwarder) Start(ctx context.Context) {
	go func() {
		var failed int
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case msg := <-f.queue:
				if _, err := f.conn.Write(msg); err != nil {
					failed++
					lastErr = err
					f.dropped.Add(1)
					continue
				}
				f.sent.Add(1)
			case <-ticker.C:
				if failed > 0 {
					monitoring.Logf("broadcast: %d messages to %s failed (latest: %v)", failed, f.address, lastErr)
					failed, lastErr = 0, nil
				}
			}
		}
	}()
	monitoring.Logf("broadcast: sending to %s", f.address)
}

// Send queues a copy of msg without blocking. It reports false when the
// message was dropped.
func (f *Forwarder) Send(msg []byte) bool {
	select {
	case <-f.done:
		f.dropped.Add(1)
		return false
	default:
	}
	select {
	case f.queue <- append([]byte(nil), msg...):
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// ForwardAsync lets a Forwarder mirror raw mocap datagrams.
func (f *Forwarder) ForwardAsync(packet []byte) { f.Send(packet) }

// Sent is the number of messages written.
func (f *Forwarder) Sent() int64 { return f.sent.Load() }

// Dropped is the number of messages lost to a full queue, a closed
// forwarder or a write error.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

// Close stops the drain goroutine and closes the connection. Messages still
// queued are discarded.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		err = f.conn.Close()
	})
	return err
}
