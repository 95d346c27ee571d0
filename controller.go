package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"temp_chat/internal/app"
	"temp_chat/internal/hub"
)

type Controller struct {
	hub      *hub.Hub
	log      *slog.Logger
	cors     *cors.Cors
	upgrader websocket.Upgrader
}

type healthResponse struct {
	Status  string `json:"status"`
	Members int    `json:"members"`
}

func NewController(h *hub.Hub, origins []string, log *slog.Logger) *Controller {
	c := &Controller{
		hub: h,
		log: log,
		cors: cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet},
		}),
	}
	c.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Native clients send no Origin header.
			return r.Header.Get("Origin") == "" || c.cors.OriginAllowed(r)
		},
	}
	return c
}

// relayHandler wires a Controller for every chat the app creates.
func relayHandler(origins []string, log *slog.Logger) app.HandlerFunc {
	return func(h *hub.Hub) http.Handler {
		return NewController(h, origins, log).Routes()
	}
}

func (c *Controller) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", c.HandleHealth)
	mux.HandleFunc("GET /ws", c.HandleWS)
	mux.HandleFunc("GET /{$}", c.HandleWS)
	return c.cors.Handler(mux)
}

func (c *Controller) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		c.writeError(w, http.StatusBadRequest, "websocket upgrade required", nil)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Error("upgrade failed", "error", err)
		return
	}
	if err := c.hub.Accept(conn); err != nil {
		c.log.Warn("connection refused", "remote", r.RemoteAddr, "error", err)
	}
}

func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	c.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Members: c.hub.Members()})
}

func (c *Controller) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		c.log.Error("failed to write json response", "error", err)
	}
}

func (c *Controller) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		c.log.Error(message, "error", err)
	}
	c.writeJSON(w, status, map[string]string{"error": message})
}
