package ws

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/logger"
)

// RoomAccess authorizes joining a transfer room: the error is nil only
// when userID is a participant of the transfer.
type RoomAccess interface {
	CanJoin(ctx context.Context, transferID, userID uuid.UUID) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == config.Envs.FrontendURL
	},
}

// Handler upgrades an already-authenticated request to a websocket and
// registers the connection under the given identity resolver. Mount it
// behind the auth middleware.
func Handler(hub *Hub, access RoomAccess, userIDFrom func(r *http.Request) (uuid.UUID, bool)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFrom(r)
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("websocket upgrade")
			return
		}

		c := newClient(hub, access, conn, userID)
		hub.register(c)

		go c.writePump()
		go c.readPump()
	}
}
