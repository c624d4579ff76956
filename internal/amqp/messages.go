package amqp

import (
	"encoding/json"
	"time"
)

// IngestionEvent reports one transition of a receipt ingestion attempt.
// Consumers correlate events of the same attempt through AttemptID.
type IngestionEvent struct {
	AttemptID string    `json:"attempt_id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	FileSize  int       `json:"file_size,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewIngestionEvent creates an event stamped with the current time.
func NewIngestionEvent(attemptID string, userID int64, kind string) *IngestionEvent {
	return &IngestionEvent{
		AttemptID: attemptID,
		UserID:    userID,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (m *IngestionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// IngestionEventFromJSON parses an event.
func IngestionEventFromJSON(data []byte) (*IngestionEvent, error) {
	var msg IngestionEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
