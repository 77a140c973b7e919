package mocap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/arena.grid/internal/arena"
	"github.com/banshee-data/arena.grid/internal/occupancy"
)

// ErrMalformedFrame is returned when a datagram or recording line is not a
// frame.
var ErrMalformedFrame = errors.New("malformed frame")

// Kind tags what a marker set represents.
type Kind string

const (
	KindUnknown  Kind = ""
	KindRobot    Kind = "robot"
	KindObstacle Kind = "obstacle"
	KindCorner   Kind = "corner"
)

// Vec3 is a lab-frame position in metres.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation quaternion with w last.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// MarkerSet is a named group of tracked markers.
type MarkerSet struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"type,omitempty"`
	Markers []Vec3 `json:"markers"`
}

// ResolvedKind returns Kind when the sender set it and otherwise infers it
// from the naming convention: "all" is ignored, names containing "corner"
// are corners, names containing "obst" are obstacles and everything else is
// a robot.
func (ms MarkerSet) ResolvedKind() Kind {
	switch ms.Kind {
	case KindRobot, KindObstacle, KindCorner:
		return ms.Kind
	}
	lower := strings.ToLower(ms.Name)
	switch {
	case lower == "all" || lower == "":
		return KindUnknown
	case strings.Contains(lower, "corner"):
		return KindCorner
	case strings.Contains(lower, "obst"):
		return KindObstacle
	}
	return KindRobot
}

// Points drops the height of every marker.
func (ms MarkerSet) Points() []arena.Point {
	pts := make([]arena.Point, len(ms.Markers))
	for i, m := range ms.Markers {
		pts[i] = arena.Point{X: m.X, Y: m.Y}
	}
	return pts
}

// RobotID is the part of a marker-set name after the first '-', or the
// whole name when there is none ("Robot-3" -> "3").
func RobotID(name string) string {
	if _, after, ok := strings.Cut(name, "-"); ok && after != "" {
		return after
	}
	return name
}

// RigidBody is a tracked body with a pose.
type RigidBody struct {
	ID       int  `json:"id"`
	Position Vec3 `json:"position"`
	Rotation Quat `json:"rotation"`
}

// Frame is one motion-capture sample.
type Frame struct {
	Seq         uint64      `json:"seq"`
	Timestamp   float64     `json:"timestamp"`
	MarkerSets  []MarkerSet `json:"marker_sets"`
	RigidBodies []RigidBody `json:"rigid_bodies,omitempty"`
}

// DecodeFrame parses one JSON frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// Input sorts the frame's marker sets into the pipeline's obstacles, robots
// and corners. Robots are keyed by RobotID.
func (f Frame) Input() occupancy.Input {
	var in occupancy.Input
	for _, ms := range f.MarkerSets {
		body := occupancy.Body{ID: ms.Name, Markers: ms.Points()}
		switch ms.ResolvedKind() {
		case KindRobot:
			body.ID = RobotID(ms.Name)
			in.Robots = append(in.Robots, body)
		case KindObstacle:
			in.Obstacles = append(in.Obstacles, body)
		case KindCorner:
			in.Corners = append(in.Corners, body)
		}
	}
	return in
}

// Sink receives decoded frames.
type Sink interface {
	HandleFrame(Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame)

func (f SinkFunc) HandleFrame(fr Frame) { f(fr) }

// Latest keeps the most recent frame. The classification loop polls it
// once per pass so a fast mocap stream never queues up work.
type Latest struct {
	mu    sync.Mutex
	frame Frame
	ok    bool
}

func (l *Latest) HandleFrame(f Frame) {
	l.mu.Lock()
	l.frame = f
	l.ok = true
	l.mu.Unlock()
}

// Get returns the last frame and whether one has arrived yet.
func (l *Latest) Get() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, l.ok
}
