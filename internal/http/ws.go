package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// handleTripWS streams the trip's location updates to a watching client.
// The subscription ends when the client disconnects or tracking stops.
func (s *Server) handleTripWS(w http.ResponseWriter, r *http.Request) {
	tripID := mux.Vars(r)["trip_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake error
		return
	}
	ch, unsubscribe := s.Monitor.Subscribe(tripID)
	defer unsubscribe()
	defer conn.Close()

	go func() {
		defer conn.Close()
		for loc := range ch {
			if err := conn.WriteJSON(map[string]any{"trip_id": tripID, "location": loc}); err != nil {
				return
			}
		}
	}()

	// read pump: a disconnect surfaces here and releases the subscription
	// even when the trip never publishes a single update
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
