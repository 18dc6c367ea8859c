package ws

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client → server events. Server → client event names live in the
// transfer package alongside their payloads.
const (
	eventJoinRoom  = "join-transfer-room"
	eventLeaveRoom = "leave-transfer-room"
	eventPeerReady = "peer-ready"

	// Room-scoped relays: participants may push offer/answer/candidate
	// payloads straight through the socket as a latency optimization. The
	// REST store-and-forward path remains the delivery of record.
	eventOffer     = "offer"
	eventAnswer    = "answer"
	eventCandidate = "ice-candidate"
)

type roomPayload struct {
	TransferID uuid.UUID `json:"transferId"`
}

func marshalEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
