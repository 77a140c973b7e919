package mocap

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// ReplayOptions controls recording and pcap replay.
type ReplayOptions struct {
	// Interval is the pause between frames; zero replays as fast as the
	// sink accepts them.
	Interval time.Duration
	Stats    Stats
}

func (o ReplayOptions) stats() Stats {
	if o.Stats == nil {
		return noopStats{}
	}
	return o.Stats
}

// ReadRecording feeds each line of a JSON-lines recording to sink and
// returns how many frames were delivered. Blank lines are skipped; any other
// line that is not a frame stops the replay with ErrMalformedFrame.
func ReadRecording(ctx context.Context, r io.Reader, sink Sink, opts ReplayOptions) (int, error) {
	stats := opts.stats()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxDatagram*4)

	n, line := 0, 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if n > 0 {
			if err := pause(ctx, opts.Interval); err != nil {
				return n, err
			}
		} else if err := ctx.Err(); err != nil {
			return n, err
		}
		stats.AddPacket(len(raw))
		f, err := DecodeFrame(raw)
		if err != nil {
			stats.AddDropped()
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		stats.AddFrame()
		sink.HandleFrame(f)
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read recording: %w", err)
	}
	return n, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Recorder is a Sink that appends every frame to w as one JSON line, the
// format ReadRecording replays.
type Recorder struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

func (r *Recorder) HandleFrame(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	r.err = r.enc.Encode(f)
}

// Err returns the first write error, after which the recorder drops frames.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
