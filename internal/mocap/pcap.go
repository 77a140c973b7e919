package mocap

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/arena.grid/internal/monitoring"
)

// ReplayPCAP decodes UDP datagrams sent to port from a pcap capture and
// feeds the frames to sink. Port 0 accepts every UDP packet. Datagrams that
// are not frames are counted as dropped and skipped. It returns the number
// of frames delivered.
func ReplayPCAP(ctx context.Context, r io.Reader, port int, sink Sink, opts ReplayOptions) (int, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to open pcap: %w", err)
	}
	stats := opts.stats()
	source := gopacket.NewPacketSource(reader, reader.LinkType())

	delivered, seen := 0, 0
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case packet, ok := <-source.Packets():
			if !ok || packet == nil {
				monitoring.Logf("mocap: pcap replay complete: %d packets, %d frames", seen, delivered)
				return delivered, nil
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			udp, ok := udpLayer.(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}
			if port != 0 && int(udp.DstPort) != port {
				continue
			}
			seen++
			if delivered > 0 {
				if err := pause(ctx, opts.Interval); err != nil {
					return delivered, err
				}
			}
			if err := deliver(udp.Payload, stats, sink, nil); err != nil {
				monitoring.Logf("mocap: pcap packet %d: %v", seen, err)
				continue
			}
			delivered++
		}
	}
}
