package ws

import (
	"sync"

	"github.com/google/uuid"

	"github.com/beamdrop/beamdrop/internal/logger"
	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Hub is the session registry for the real-time layer: it owns the
// mapping from live connections to user identity and joined transfer
// rooms. Registration happens on connect and teardown is guaranteed by
// the client's read pump, so no entry outlives its connection.
//
// Delivery is best-effort and at-most-once: a client with a full send
// buffer is dropped, and nothing is persisted here. Offline participants
// recover state through the REST fetch path.
type Hub struct {
	mu    sync.RWMutex
	users map[uuid.UUID]map[*Client]bool
	rooms map[uuid.UUID]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		users: make(map[uuid.UUID]map[*Client]bool),
		rooms: make(map[uuid.UUID]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.users[c.userID] == nil {
		h.users[c.userID] = make(map[*Client]bool)
	}
	h.users[c.userID][c] = true
}

// unregister removes the client from its user inbox and every joined
// room, telling each room the peer went away.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	var joined []uuid.UUID
	for transferID := range c.rooms {
		joined = append(joined, transferID)
		h.dropFromRoom(c, transferID)
	}
	c.rooms = make(map[uuid.UUID]bool)
	if peers := h.users[c.userID]; peers != nil {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.users, c.userID)
		}
	}
	h.mu.Unlock()

	close(c.send)
	for _, transferID := range joined {
		h.NotifyTransfer(transferID, transfer.EventPeerDisconnected,
			transfer.PeerDisconnectedEvent{TransferID: transferID})
	}
}

func (h *Hub) join(c *Client, transferID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[transferID] == nil {
		h.rooms[transferID] = make(map[*Client]bool)
	}
	h.rooms[transferID][c] = true
	c.rooms[transferID] = true
}

func (h *Hub) leave(c *Client, transferID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropFromRoom(c, transferID)
	delete(c.rooms, transferID)
}

// dropFromRoom must be called with h.mu held.
func (h *Hub) dropFromRoom(c *Client, transferID uuid.UUID) {
	if members := h.rooms[transferID]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, transferID)
		}
	}
}

// NotifyUser pushes an event to every live connection of one user.
func (h *Hub) NotifyUser(userID uuid.UUID, event string, data any) {
	frame, err := marshalEnvelope(event, data)
	if err != nil {
		logger.Log.Error().Err(err).Str("event", event).Msg("marshal notification")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		c.trySend(frame)
	}
}

// NotifyTransfer pushes an event to every member of a transfer room.
func (h *Hub) NotifyTransfer(transferID uuid.UUID, event string, data any) {
	frame, err := marshalEnvelope(event, data)
	if err != nil {
		logger.Log.Error().Err(err).Str("event", event).Msg("marshal notification")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[transferID] {
		c.trySend(frame)
	}
}

// relayToRoom forwards a raw frame to every room member except the
// sender, and only if the sender has actually joined the room.
func (h *Hub) relayToRoom(sender *Client, transferID uuid.UUID, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[transferID]
	if members == nil || !members[sender] {
		return
	}
	for c := range members {
		if c != sender {
			c.trySend(frame)
		}
	}
}
