package broadcast

import (
	"encoding/json"
	"sort"

	"github.com/banshee-data/arena.grid/internal/mocap"
	"github.com/banshee-data/arena.grid/internal/plan"
)

// IsRobotBody reports whether a rigid-body id belongs to a robot. Robot
// bodies are numbered 100-199.
func IsRobotBody(id int) bool { return id/100 == 1 }

// Pose is a robot body in the robots' own frame.
type Pose struct {
	ID       int        `json:"body_id"`
	Position mocap.Vec3 `json:"position"`
	Rotation mocap.Quat `json:"rotation"`
}

// PoseMessage is the per-frame pose broadcast.
type PoseMessage struct {
	Seq   uint64 `json:"seq"`
	Poses []Pose `json:"bodies"`
}

// RobotPose remaps a lab-frame body into the robots' frame: the robots'
// x axis is the lab's -y and their y is the lab's x, and the quaternion
// components are rotated one place (x<-w, y<-x, z<-y, w<-z).
func RobotPose(b mocap.RigidBody) Pose {
	return Pose{
		ID: b.ID,
		Position: mocap.Vec3{
			X: -b.Position.Y,
			Y: b.Position.X,
			Z: b.Position.Z,
		},
		Rotation: mocap.Quat{
			X: b.Rotation.W,
			Y: b.Rotation.X,
			Z: b.Rotation.Y,
			W: b.Rotation.Z,
		},
	}
}

// Poses builds the broadcast for a frame, keeping robot bodies only,
// sorted by id.
func Poses(f mocap.Frame) PoseMessage {
	msg := PoseMessage{Seq: f.Seq, Poses: []Pose{}}
	for _, b := range f.RigidBodies {
		if IsRobotBody(b.ID) {
			msg.Poses = append(msg.Poses, RobotPose(b))
		}
	}
	sort.Slice(msg.Poses, func(i, j int) bool { return msg.Poses[i].ID < msg.Poses[j].ID })
	return msg
}

// PlanMessage carries a translated plan. Agents[i] is the robot id of
// solver agent i.
type PlanMessage struct {
	RunID  string        `json:"run_id,omitempty"`
	Agents []string      `json:"agents"`
	Steps  [][]plan.Step `json:"steps"`
	Plan   string        `json:"plan"`
}

// NewPlanMessage pairs each path of table with its robot id.
func NewPlanMessage(runID string, agents []string, table plan.PathTable, planText string) PlanMessage {
	msg := PlanMessage{RunID: runID, Agents: agents, Plan: planText}
	for _, p := range table {
		msg.Steps = append(msg.Steps, plan.Steps(p))
	}
	return msg
}

// Marshal encodes v as the JSON sent on the wire.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }
