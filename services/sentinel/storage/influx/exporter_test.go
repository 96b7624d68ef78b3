// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package influx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// fakeInflux records write requests and serves a healthy /health.
type fakeInflux struct {
	server    *httptest.Server
	bodies    []string
	authz     []string
	orgs      []string
	buckets   []string
	writeCode int
	healthy   bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()

	f := &fakeInflux{writeCode: http.StatusNoContent, healthy: true}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.bodies = append(f.bodies, string(body))
			f.authz = append(f.authz, r.Header.Get("Authorization"))
			f.orgs = append(f.orgs, r.URL.Query().Get("org"))
			f.buckets = append(f.buckets, r.URL.Query().Get("bucket"))
			w.WriteHeader(f.writeCode)
		case "/health":
			status := "pass"
			if !f.healthy {
				status = "fail"
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"influxdb","status":"` + status + `","checks":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func testConfig(url string) config.InfluxConfig {
	return config.InfluxConfig{URL: url, Org: "aleutian", Bucket: "pulse", Token: "secret"}
}

func sampleAssessment() datatypes.StabilityAssessment {
	return datatypes.StabilityAssessment{
		ID:              "asmt-1",
		UserID:          "u-42",
		AssessmentDate:  time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		StabilityIndex:  0.28,
		Volatility:      0.31,
		RiskProbability: 0.72,
		RiskLevel:       datatypes.RiskHigh,
		IsAnomaly:       true,
		AnomalyScore:    0.62,
		ConfidenceScore: 0.85,
	}
}

func TestNewExporter_RequiresURL(t *testing.T) {
	_, err := NewExporter(config.InfluxConfig{}, nil)
	require.Error(t, err)
}

func TestExporter_ExportAssessment_WritesPoint(t *testing.T) {
	fake := newFakeInflux(t)
	e, err := NewExporter(testConfig(fake.server.URL), nil)
	require.NoError(t, err)
	defer e.Close()

	err = e.ExportAssessment(context.Background(), sampleAssessment())
	require.NoError(t, err)

	require.Len(t, fake.bodies, 1)
	body := fake.bodies[0]
	assert.Contains(t, body, "stability_assessments,")
	assert.Contains(t, body, "user_id=u-42")
	assert.Contains(t, body, "risk_level=high")
	assert.Contains(t, body, "risk_probability=0.72")
	assert.Contains(t, body, "is_anomaly=true")
	assert.Contains(t, body, "anomaly_score=0.62")

	assert.Equal(t, "Token secret", fake.authz[0])
	assert.Equal(t, "aleutian", fake.orgs[0])
	assert.Equal(t, "pulse", fake.buckets[0])
}

func TestExporter_ExportAssessment_ServerError(t *testing.T) {
	fake := newFakeInflux(t)
	fake.writeCode = http.StatusInternalServerError

	e, err := NewExporter(testConfig(fake.server.URL), nil)
	require.NoError(t, err)
	defer e.Close()

	err = e.ExportAssessment(context.Background(), sampleAssessment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "u-42")
}

func TestExporter_Ping(t *testing.T) {
	fake := newFakeInflux(t)
	e, err := NewExporter(testConfig(fake.server.URL), nil)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Ping(context.Background()))

	fake.healthy = false
	require.Error(t, e.Ping(context.Background()))
}
