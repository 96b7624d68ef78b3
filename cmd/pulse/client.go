// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/tui"
)

// =============================================================================
// API Client
// =============================================================================

// errNotFound marks a 404 from the server so callers can tell "no data
// yet" apart from a real failure.
var errNotFound = errors.New("not found")

// apiClient talks to a running sentinel over its HTTP API. It doubles as
// the tui.Fetcher behind `pulse watch`.
type apiClient struct {
	base string
	http *http.Client
}

var _ tui.Fetcher = (*apiClient)(nil)

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// =============================================================================
// Response Shapes
// =============================================================================

type assessResponse struct {
	Assessment   datatypes.StabilityAssessment `json:"assessment"`
	Forecast     *datatypes.BurnoutForecast    `json:"forecast"`
	Intervention *datatypes.Intervention       `json:"intervention"`
	Suppressed   bool                          `json:"suppressed"`
}

type historyResponse struct {
	UserID      string                          `json:"user_id"`
	Days        int                             `json:"days"`
	Count       int                             `json:"count"`
	Assessments []datatypes.StabilityAssessment `json:"assessments"`
}

type interventionsResponse struct {
	UserID        string                   `json:"user_id"`
	Days          int                      `json:"days"`
	Count         int                      `json:"count"`
	Interventions []datatypes.Intervention `json:"interventions"`
}

type usersResponse struct {
	Count int              `json:"count"`
	Users []datatypes.User `json:"users"`
}

// =============================================================================
// Operations
// =============================================================================

// Assess runs the pipeline for one worker now. date is YYYY-MM-DD or empty
// for today.
func (c *apiClient) Assess(ctx context.Context, userID, date string) (assessResponse, error) {
	path := "/api/v1/assess/" + url.PathEscape(userID)
	if date != "" {
		path += "?date=" + url.QueryEscape(date)
	}
	var out assessResponse
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out, err
}

func (c *apiClient) CurrentStability(ctx context.Context, userID string) (datatypes.StabilityAssessment, error) {
	var out datatypes.StabilityAssessment
	err := c.do(ctx, http.MethodGet, "/api/v1/stability/"+url.PathEscape(userID)+"/current", nil, &out)
	return out, err
}

func (c *apiClient) StabilityHistory(ctx context.Context, userID string, days int) (historyResponse, error) {
	path := fmt.Sprintf("/api/v1/stability/%s/history?days=%d", url.PathEscape(userID), days)
	var out historyResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) CurrentForecast(ctx context.Context, userID string) (datatypes.BurnoutForecast, error) {
	var out datatypes.BurnoutForecast
	err := c.do(ctx, http.MethodGet, "/api/v1/forecast/"+url.PathEscape(userID)+"/current", nil, &out)
	return out, err
}

func (c *apiClient) Interventions(ctx context.Context, userID string, days, limit int) (interventionsResponse, error) {
	path := fmt.Sprintf("/api/v1/interventions/%s/history?days=%d&limit=%d",
		url.PathEscape(userID), days, limit)
	var out interventionsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) CreateCheckIn(ctx context.Context, checkin datatypes.DailyCheckIn) (datatypes.DailyCheckIn, error) {
	var out datatypes.DailyCheckIn
	err := c.do(ctx, http.MethodPost, "/api/v1/checkins", checkin, &out)
	return out, err
}

func (c *apiClient) Stats(ctx context.Context) (tui.Stats, error) {
	var out tui.Stats
	err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out)
	return out, err
}

func (c *apiClient) Users(ctx context.Context) ([]datatypes.User, error) {
	var out usersResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/users", nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// Snapshot implements tui.Fetcher: deployment stats plus one row per
// worker with their latest assessment. Workers the pipeline has not
// reached yet appear without an assessment.
func (c *apiClient) Snapshot(ctx context.Context) (tui.Snapshot, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return tui.Snapshot{}, fmt.Errorf("load stats: %w", err)
	}
	users, err := c.Users(ctx)
	if err != nil {
		return tui.Snapshot{}, fmt.Errorf("load users: %w", err)
	}

	rows := make([]tui.Row, 0, len(users))
	for _, u := range users {
		row := tui.Row{User: u}
		assessment, err := c.CurrentStability(ctx, u.ID)
		switch {
		case err == nil:
			row.Assessment = &assessment
		case errors.Is(err, errNotFound):
			// Not assessed yet; the dashboard shows the row as pending.
		default:
			return tui.Snapshot{}, fmt.Errorf("load assessment for %s: %w", u.ID, err)
		}
		rows = append(rows, row)
	}

	return tui.Snapshot{Stats: stats, Rows: rows, At: time.Now()}, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := serverError(resp.Body)
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, msg)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// serverError extracts the {"error": ...} envelope, falling back to the
// raw body.
func serverError(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(raw))
}
