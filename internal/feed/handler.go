package feed

import (
	"log/slog"
	"net/http"
	"strconv"

	ws "github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Handler upgrades GET /api/families/{id}/feed to a WebSocket subscription.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		familyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid family id", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // household LAN clients connect from any origin
		})
		if err != nil {
			logger.Warn("websocket accept", "family_id", familyID, "error", err)
			return
		}

		NewClient(hub, conn, familyID).Run(r.Context())
	}
}
