package bus

import (
	"context"
	"time"
)

// SubjectMissionCompleted carries mission-completion signals detected in
// model replies. Mission state transitions are owned by whoever subscribes.
const SubjectMissionCompleted = "mission.completed"

// MissionEvent is the published hand-off payload.
type MissionEvent struct {
	UserID    string    `json:"user_id"`
	Reply     string    `json:"reply"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MissionPublisher emits mission-completion events on the bus.
type MissionPublisher struct {
	client *Client
}

func NewMissionPublisher(client *Client) *MissionPublisher {
	return &MissionPublisher{client: client}
}

func (p *MissionPublisher) MissionCompleted(_ context.Context, userID, reply, traceID string) error {
	return p.client.Publish(SubjectMissionCompleted, MissionEvent{
		UserID:    userID,
		Reply:     reply,
		TraceID:   traceID,
		Timestamp: time.Now().UTC(),
	})
}
