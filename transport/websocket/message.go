package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload - arguments of inbound actions. CellIndex is a pointer so a missing index is told apart from 0.
type Payload struct {
	SessionID string      `json:"sessionId"`
	CellIndex *int        `json:"cellIndex,omitempty"`
	Marker    entity.Mark `json:"marker,omitempty"`
}

func encodeEvent(event entity.Event) ([]byte, error) {
	message := Message{Action: event.Action}

	if event.Payload != nil {
		payload, err := json.Marshal(event.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		message.Payload = payload
	}

	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}
