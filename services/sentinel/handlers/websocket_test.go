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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

func newStreamServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	t.Helper()
	router := gin.New()
	router.GET("/api/v1/stream", Stream(hub))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/api/v1/stream"
	return srv, wsURL
}

func dialStream(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, want, hub.ClientCount())
}

func TestHubBroadcastsAssessments(t *testing.T) {
	hub := NewHub(nil)
	_, wsURL := newStreamServer(t, hub)

	conn := dialStream(t, wsURL)
	waitForClients(t, hub, 1)

	assessment := datatypes.StabilityAssessment{
		ID:              "asmt-1",
		UserID:          "u-1",
		RiskProbability: 0.77,
		RiskLevel:       datatypes.RiskHigh,
	}
	hub.BroadcastAssessment(assessment)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type string                        `json:"type"`
		Data datatypes.StabilityAssessment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "assessment", env.Type)
	assert.Equal(t, "u-1", env.Data.UserID)
	assert.Equal(t, datatypes.RiskHigh, env.Data.RiskLevel)
}

func TestHubFansOutToEverySubscriber(t *testing.T) {
	hub := NewHub(nil)
	_, wsURL := newStreamServer(t, hub)

	first := dialStream(t, wsURL)
	second := dialStream(t, wsURL)
	waitForClients(t, hub, 2)

	hub.BroadcastIntervention(datatypes.Intervention{
		ID:     "iv-1",
		UserID: "u-1",
		Type:   datatypes.InterventionAlert,
		Action: datatypes.Action{Alert: &datatypes.AlertAction{AlertType: "manager_notification", Urgency: "critical", Reason: "r"}},
	})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(payload, &env))
		assert.Equal(t, "intervention", env.Type)
	}
}

func TestHubEvictsDisconnectedClients(t *testing.T) {
	hub := NewHub(nil)
	_, wsURL := newStreamServer(t, hub)

	conn := dialStream(t, wsURL)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Broadcasting into an empty hub must not panic or block.
	hub.BroadcastAssessment(datatypes.StabilityAssessment{ID: "asmt-2", UserID: "u-2"})
	assert.Equal(t, 0, hub.ClientCount())
}
