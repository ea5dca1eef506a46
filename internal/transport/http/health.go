package http

import (
	"encoding/json"
	"net/http"
)

// SessionCounter reports live sessions.
type SessionCounter interface {
	ActiveSessions() int
}

// Health answers liveness probes with the number of live sessions.
func Health(sessions SessionCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"sessions": sessions.ActiveSessions(),
		})
	}
}

// NewMux routes /healthz and /ws.
func NewMux(ws *WSHandler, sessions SessionCounter) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", Health(sessions))
	mux.HandleFunc("/ws", ws.ServeWS)
	return mux
}
