// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
}

// streamEvent is the envelope every live-feed message travels in.
type streamEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans finished assessments out to websocket subscribers.
//
// # Description
//
// The pipeline calls BroadcastAssessment after every persisted
// assessment; the Stream handler registers each connected client. A
// client that fails a write is dropped on the spot: the feed is
// best-effort and a stuck subscriber must not stall the pipeline.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex serializes
// registration, eviction, and every broadcast write; gorilla connections
// do not allow concurrent writers, so the mutex doubles as the per-
// connection write lock.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *slog.Logger
}

var _ pipeline.Broadcaster = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

// BroadcastAssessment sends the assessment to every connected client,
// evicting clients whose write fails.
func (h *Hub) BroadcastAssessment(a datatypes.StabilityAssessment) {
	h.broadcast(streamEvent{Type: "assessment", Data: a})
}

// BroadcastIntervention sends a decided intervention to every connected
// client.
func (h *Hub) BroadcastIntervention(iv datatypes.Intervention) {
	h.broadcast(streamEvent{Type: "intervention", Data: iv})
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber. Used at service shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		_ = ws.Close()
		delete(h.clients, ws)
		metrics.WebsocketClientDisconnected()
	}
}

func (h *Hub) broadcast(env streamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		if err := ws.WriteJSON(env); err != nil {
			h.log.Warn("Dropping websocket client after failed write", "error", err)
			_ = ws.Close()
			delete(h.clients, ws)
			metrics.WebsocketClientDisconnected()
		}
	}
}

func (h *Hub) register(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[ws] = true
	metrics.WebsocketClientConnected()
}

// unregister removes the client if it is still registered. A client the
// broadcaster already evicted is a no-op, so the connected-clients gauge
// never double-decrements.
func (h *Hub) unregister(ws *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[ws] {
		return
	}
	delete(h.clients, ws)
	metrics.WebsocketClientDisconnected()
}

// ============================================================================
// Handler
// ============================================================================

// Stream upgrades the request and subscribes the client to the live
// assessment feed until it disconnects. The feed is one-way; anything
// the client sends is read and discarded to service control frames.
func Stream(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("Websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		hub.register(ws)
		defer hub.unregister(ws)
		hub.log.Info("Websocket client connected", "remote", ws.RemoteAddr().String())

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				hub.log.Info("Websocket client disconnected", "remote", ws.RemoteAddr().String())
				return
			}
		}
	}
}
