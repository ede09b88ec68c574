package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/buildingco2/tracker/pkg/core"
)

// Message type constants for the trashcan feed.
const (
	TypeSnapshot = "snapshot"
	TypeDisposal = "disposal"
	TypeStatus   = "status"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// DisposalPayload announces a recorded disposal.
type DisposalPayload struct {
	BuildingID string              `json:"buildingId"`
	Point      core.WasteDataPoint `json:"point"`
}

// StatusPayload tells a freshly connected client whether a session runs.
type StatusPayload struct {
	Running    bool      `json:"running"`
	BuildingID string    `json:"buildingId,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
}

// NewEnvelope marshals payload and wraps it with the message type.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
