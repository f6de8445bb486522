// ABOUTME: HTTP upgrade endpoint attaching sockets to the hub
// ABOUTME: Sockets identify as ?user=ID&name=… or ?channel=ID&name=…
package gateway

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The deployment fronts this with its own auth; origins are not
		// restricted here.
		return true
	},
}

// Handler returns the websocket attach endpoint for the hub.
func Handler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		name := q.Get("name")

		var userID, channelID int64
		switch {
		case q.Get("user") != "":
			id, err := strconv.ParseInt(q.Get("user"), 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "bad user id", http.StatusBadRequest)
				return
			}
			userID = id
		case q.Get("channel") != "":
			id, err := strconv.ParseInt(q.Get("channel"), 10, 64)
			if err != nil || id <= 0 {
				http.Error(w, "bad channel id", http.StatusBadRequest)
				return
			}
			channelID = id
		default:
			http.Error(w, "user or channel required", http.StatusBadRequest)
			return
		}
		if name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := newClient(h, conn, userID, channelID, name)
		h.attach(c)
		go c.writePump()
		go c.readPump()
	}
}
