// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tui implements the `pulse watch` terminal dashboard.
//
// # Description
//
// This package renders a live view of the workforce: deployment totals on
// top, one row per monitored worker below, riskiest first. Data arrives
// through the Fetcher interface so the dashboard never knows about HTTP;
// cmd/pulse supplies an API-backed fetcher.
//
// # Thread Safety
//
// The model is single-threaded inside the bubbletea event loop. Fetches run
// in bubbletea-managed goroutines and communicate only via messages.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
)

// =============================================================================
// Fetcher
// =============================================================================

// Stats mirrors the deployment summary exposed by GET /stats.
type Stats struct {
	TotalUsers       int     `json:"total_users"`
	ActiveUsers      int     `json:"active_users"`
	Assessments24h   int     `json:"assessments_24h"`
	HighRiskUsers24h int     `json:"high_risk_users_24h"`
	OrgStability7d   float64 `json:"org_stability_7d"`
}

// Row pairs a worker with their latest assessment. Assessment is nil until
// the first pipeline run lands for that worker.
type Row struct {
	User       datatypes.User
	Assessment *datatypes.StabilityAssessment
}

// Snapshot is one complete refresh of the dashboard.
type Snapshot struct {
	Stats Stats
	Rows  []Row
	At    time.Time
}

// Fetcher loads a dashboard snapshot.
//
// # Description
//
// Implementations are expected to be safe for repeated calls; the dashboard
// polls on a fixed interval and on demand (the `r` key). A failed fetch
// keeps the previous snapshot on screen.
type Fetcher interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// =============================================================================
// Messages
// =============================================================================

type snapshotMsg struct {
	snap Snapshot
}

type errMsg struct {
	err error
}

type tickMsg struct{}

// =============================================================================
// Config
// =============================================================================

// fetchTimeout bounds one snapshot load so a hung server cannot freeze
// the refresh loop.
const fetchTimeout = 5 * time.Second

// Config controls dashboard behavior.
type Config struct {
	// RefreshInterval is the poll period (default: 5s).
	RefreshInterval time.Duration

	// Width overrides terminal width (0 = auto-detect).
	Width int

	// Height overrides terminal height (0 = auto-detect).
	Height int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: 5 * time.Second,
	}
}

// =============================================================================
// Model
// =============================================================================

// Model is the bubbletea model for the watch dashboard.
//
// # Description
//
// Holds the latest snapshot, the scroll viewport over worker rows, and the
// last fetch error. The error is displayed in the footer without clearing
// the stale-but-useful table.
type Model struct {
	fetcher Fetcher
	config  Config

	viewport viewport.Model

	snap    Snapshot
	loaded  bool
	lastErr error

	width  int
	height int

	ready    bool
	quitting bool
}

// NewModel creates a dashboard model.
//
// # Inputs
//
//   - fetcher: Snapshot source, typically the cmd/pulse API client.
//   - config: Behavior knobs; zero RefreshInterval falls back to the default.
//
// # Outputs
//
//   - Model: Ready-to-use model for tea.NewProgram.
func NewModel(fetcher Fetcher, config Config) Model {
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = DefaultConfig().RefreshInterval
	}
	return Model{
		fetcher: fetcher,
		config:  config,
		width:   config.Width,
		height:  config.Height,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(), m.scheduleRefresh())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 4
		footerHeight := 2
		viewportHeight := m.height - headerHeight - footerHeight

		if !m.ready {
			m.viewport = viewport.New(m.width, viewportHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = viewportHeight
		}

		m.updateViewportContent()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "Q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "r", "R":
			return m, m.fetch()

		case "j", "down":
			m.viewport.LineDown(1)

		case "k", "up":
			m.viewport.LineUp(1)

		case "ctrl+d":
			m.viewport.HalfViewDown()

		case "ctrl+u":
			m.viewport.HalfViewUp()

		case "g", "home":
			m.viewport.GotoTop()

		case "G", "end":
			m.viewport.GotoBottom()
		}

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.scheduleRefresh())

	case snapshotMsg:
		m.snap = msg.snap
		m.loaded = true
		m.lastErr = nil
		m.updateViewportContent()
		return m, nil

	case errMsg:
		m.lastErr = msg.err
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return "Dashboard closed.\n"
	}

	if !m.ready {
		return "Loading dashboard...\n"
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) fetch() tea.Cmd {
	fetcher := m.fetcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		snap, err := fetcher.Snapshot(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(m.config.RefreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// =============================================================================
// Rendering
// =============================================================================

func (m *Model) updateViewportContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderRows())
}

func (m Model) renderHeader() string {
	var b strings.Builder

	refreshed := "awaiting first snapshot"
	if m.loaded {
		refreshed = "refreshed " + m.snap.At.Format("15:04:05")
	}
	b.WriteString(titleStyle.Render("Pulse · workforce stability"))
	b.WriteString("  ")
	b.WriteString(statsStyle.Render(refreshed))
	b.WriteString("\n")

	s := m.snap.Stats
	summary := fmt.Sprintf("Workers %d (%d active) · Assessments 24h %d · High risk %d · Org stability 7d %.2f",
		s.TotalUsers, s.ActiveUsers, s.Assessments24h, s.HighRiskUsers24h, s.OrgStability7d)
	b.WriteString(statsStyle.Render(summary))
	b.WriteString("\n\n")

	b.WriteString(columnHeaderStyle.Render(fmt.Sprintf(rowFormat,
		"WORKER", "RISK", "LEVEL", "STABILITY", "VOLATILITY", "FLAGS", "ASSESSED")))

	return b.String()
}

// rowFormat keeps the header and rows column-aligned.
const rowFormat = "%-26s %5s  %-9s %9s %10s  %-8s %10s"

func (m Model) renderRows() string {
	if !m.loaded {
		return "Loading...\n"
	}
	if len(m.snap.Rows) == 0 {
		return "No workers registered. POST /api/v1/users or `pulse checkin` to get started.\n"
	}

	rows := sortRows(m.snap.Rows)

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(renderRow(row))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRow(row Row) string {
	name := row.User.FullName
	if name == "" {
		name = row.User.ID
	}
	if len(name) > 26 {
		name = name[:23] + "..."
	}

	if row.Assessment == nil {
		return unassessedStyle.Render(fmt.Sprintf(rowFormat,
			name, "-", "pending", "-", "-", "", "-"))
	}

	a := row.Assessment
	flags := ""
	if a.IsAnomaly {
		flags = "anomaly"
	}

	line := fmt.Sprintf(rowFormat,
		name,
		fmt.Sprintf("%.2f", a.RiskProbability),
		string(a.RiskLevel),
		fmt.Sprintf("%.2f", a.StabilityIndex),
		fmt.Sprintf("%.2f", a.Volatility),
		flags,
		a.AssessmentDate.Format(datatypes.DayKey),
	)
	return riskStyle(a.RiskLevel).Render(line)
}

func (m Model) renderFooter() string {
	help := strings.Join([]string{
		helpKeyStyle.Render("q") + helpDescStyle.Render(" quit"),
		helpKeyStyle.Render("r") + helpDescStyle.Render(" refresh"),
		helpKeyStyle.Render("j/k") + helpDescStyle.Render(" scroll"),
		helpKeyStyle.Render("g/G") + helpDescStyle.Render(" top/bottom"),
	}, "  ")

	if m.lastErr != nil {
		return help + "  " + errorStyle.Render("fetch failed: "+m.lastErr.Error())
	}
	return help
}

// sortRows orders riskiest first: by risk probability descending, ties by
// name, unassessed workers last.
func sortRows(rows []Row) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.Assessment == nil && b.Assessment == nil:
			return a.User.FullName < b.User.FullName
		case a.Assessment == nil:
			return false
		case b.Assessment == nil:
			return true
		case a.Assessment.RiskProbability != b.Assessment.RiskProbability:
			return a.Assessment.RiskProbability > b.Assessment.RiskProbability
		default:
			return a.User.FullName < b.User.FullName
		}
	})
	return sorted
}

func riskStyle(level datatypes.RiskLevel) lipgloss.Style {
	switch level {
	case datatypes.RiskCritical:
		return criticalStyle
	case datatypes.RiskHigh:
		return highStyle
	case datatypes.RiskModerate:
		return moderateStyle
	default:
		return lowStyle
	}
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("250"))

	lowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	moderateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208"))

	criticalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	unassessedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))
)
