package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and streams hub messages to it until
// the client disconnects. originPatterns restricts cross-origin browsers; an
// empty list allows same-origin only.
func HandleWebSocket(hub *Hub, logger *slog.Logger, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err, "remote", r.RemoteAddr)
			return
		}
		defer conn.CloseNow()

		logger.Info("subscriber connected", "remote", r.RemoteAddr)
		NewClient(hub, conn).Run(r.Context())
		logger.Info("subscriber disconnected", "remote", r.RemoteAddr)
	}
}
