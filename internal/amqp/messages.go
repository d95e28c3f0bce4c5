package amqp

import (
	"encoding/json"
	"time"
)

// DashboardStaleMessage tells the export worker that a user's month view
// changed. It carries only the user id; the worker fetches fresh data
// from the store, so stale payloads can never overwrite newer state.
type DashboardStaleMessage struct {
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDashboardStaleMessage(user string) *DashboardStaleMessage {
	return &DashboardStaleMessage{
		User:      user,
		Timestamp: time.Now().UTC(),
	}
}

func (m *DashboardStaleMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DashboardStaleMessageFromJSON(data []byte) (*DashboardStaleMessage, error) {
	var msg DashboardStaleMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
