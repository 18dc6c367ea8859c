package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamdrop/beamdrop/internal/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Signal relays carry SDP
	// blobs, which run a few KB.
	maxMessageSize = 64 << 10
)

// Client is one live websocket connection bound to an authenticated user.
type Client struct {
	hub    *Hub
	access RoomAccess
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID

	// rooms is the set of joined transfer rooms. Owned by the hub; only
	// touched under the hub's lock.
	rooms map[uuid.UUID]bool
}

func newClient(hub *Hub, access RoomAccess, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		access: access,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
		rooms:  make(map[uuid.UUID]bool),
	}
}

// trySend queues a frame without blocking; a client that cannot keep up
// loses the frame.
func (c *Client) trySend(frame []byte) {
	select {
	case c.send <- frame:
	default:
		logger.Log.Warn().Str("user", c.userID.String()).Msg("dropping frame, client send buffer full")
	}
}

// readPump pumps inbound events from the connection and guarantees hub
// teardown on any exit.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Log.Warn().Err(err).Msg("malformed websocket frame")
			continue
		}
		c.dispatch(raw, env)
	}
}

func (c *Client) dispatch(raw []byte, env Envelope) {
	switch env.Event {
	case eventJoinRoom, eventLeaveRoom, eventPeerReady, eventOffer, eventAnswer, eventCandidate:
	default:
		return // unknown events are ignored
	}

	var room roomPayload
	if err := json.Unmarshal(env.Data, &room); err != nil || room.TransferID == uuid.Nil {
		return
	}

	switch env.Event {
	case eventJoinRoom:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.access.CanJoin(ctx, room.TransferID, c.userID); err != nil {
			logger.Log.Warn().Err(err).
				Str("user", c.userID.String()).
				Str("transfer", room.TransferID.String()).
				Msg("room join refused")
			return
		}
		c.hub.join(c, room.TransferID)
	case eventLeaveRoom:
		c.hub.leave(c, room.TransferID)
	default:
		// peer-ready and the offer/answer/candidate relays pass through
		// verbatim to the other room members.
		c.hub.relayToRoom(c, room.TransferID, raw)
	}
}

// writePump pumps queued frames to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
