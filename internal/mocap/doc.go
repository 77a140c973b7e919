// Package mocap is the boundary to the motion-capture system. Frames arrive
// as JSON datagrams on a UDP socket, from a JSON-lines recording, or from a
// pcap capture of that UDP stream, and are handed to a Sink. Frame.Input
// turns a frame into the marker sets the occupancy pipeline classifies.
package mocap
