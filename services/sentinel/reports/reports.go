// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reports builds per-worker and organization-level stability
// reports from stored assessments and forecasts.
//
// Reports are structured documents: JSON for the full record, CSV for the
// tabular sections. Export writes them under the configured output
// directory and, when a bucket is configured, archives copies to GCS.
// Persistence and archival are best-effort; generation itself only fails
// on storage errors.
package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianPulse/services/sentinel/config"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/datatypes"
	"github.com/AleutianAI/AleutianPulse/services/sentinel/metrics"
)

const (
	// employeeWindowDays bounds the assessment table in a worker report.
	employeeWindowDays = 7

	// orgWindowDays bounds the departmental aggregation window.
	orgWindowDays = 7

	// highRiskWindow bounds the at-risk personnel table.
	highRiskWindow = 24 * time.Hour

	// defaultDepartment labels workers without a department assignment.
	defaultDepartment = "Global Operations"
)

// Departmental status labels, keyed off the 7-day average stability index.
const (
	deptOptimal   = "OPTIMAL"
	deptStable    = "STABLE"
	deptWatchlist = "WATCHLIST"
)

// Store is the persistence surface the report generator reads from.
type Store interface {
	GetUser(ctx context.Context, id string) (datatypes.User, error)
	ListUsers(ctx context.Context, activeOnly bool) ([]datatypes.User, error)
	AssessmentsInRange(ctx context.Context, userID string, from, to time.Time) ([]datatypes.StabilityAssessment, error)
	AssessmentsSince(ctx context.Context, since time.Time) ([]datatypes.StabilityAssessment, error)
	LatestForecast(ctx context.Context, userID string) (datatypes.BurnoutForecast, bool, error)
}

// Archiver uploads report artifacts to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, objectName, contentType string, data []byte) error
}

// ============================================================================
// Report shapes
// ============================================================================

// EmployeeReport is the per-worker stability report: personnel details,
// the last week of assessments newest-first, and the latest forecast when
// one exists.
type EmployeeReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Personnel   Personnel        `json:"personnel"`
	Assessments []AssessmentRow  `json:"assessments"`
	Forecast    *ForecastSection `json:"forecast,omitempty"`
}

// Personnel carries the identifying details for the report header.
type Personnel struct {
	UserID     string `json:"user_id"`
	FullName   string `json:"full_name"`
	EmployeeID string `json:"employee_id,omitempty"`
	Department string `json:"department"`
	Role       string `json:"role,omitempty"`
	Email      string `json:"email"`
}

// AssessmentRow is one day in the assessment table. RiskLevel is
// uppercased for display.
type AssessmentRow struct {
	Date            string  `json:"date"`
	StabilityIndex  float64 `json:"stability_index"`
	Volatility      float64 `json:"volatility"`
	RiskProbability float64 `json:"risk_probability"`
	RiskLevel       string  `json:"risk_level"`
}

// ForecastSection summarizes the latest burnout forecast.
type ForecastSection struct {
	ModelType           string        `json:"model_type"`
	ConfidenceScore     float64       `json:"confidence_score"`
	HorizonDays         int           `json:"horizon_days"`
	Points              []ForecastRow `json:"points"`
	PeakRiskDate        string        `json:"peak_risk_date,omitempty"`
	PeakRiskProbability float64       `json:"peak_risk_probability,omitempty"`
}

// ForecastRow is one forecast horizon day.
type ForecastRow struct {
	Date        string  `json:"date"`
	Probability float64 `json:"probability"`
}

// OrgReport is the organization-wide stability summary: personnel at
// high or critical risk in the last day, per-department stability
// averages over the last week, and the overall index.
type OrgReport struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	WindowDays        int             `json:"window_days"`
	ActiveUsers       int             `json:"active_users"`
	OrgStabilityIndex float64         `json:"org_stability_index"`
	HighRisk          []HighRiskRow   `json:"high_risk"`
	Departments       []DepartmentRow `json:"departments"`
}

// HighRiskRow is one at-risk worker. FullName and EmployeeID fall back to
// "Unknown" / "N/A" when the user record no longer exists.
type HighRiskRow struct {
	FullName        string  `json:"full_name"`
	EmployeeID      string  `json:"employee_id"`
	StabilityIndex  float64 `json:"stability_index"`
	RiskProbability float64 `json:"risk_probability"`
}

// DepartmentRow aggregates one department's week. Workers counts distinct
// workers with at least one assessment in the window.
type DepartmentRow struct {
	Department   string  `json:"department"`
	Workers      int     `json:"workers"`
	AvgStability float64 `json:"avg_stability"`
	Status       string  `json:"status"`
}

// ============================================================================
// Generator
// ============================================================================

// Generator builds and exports stability reports.
//
// # Description
//
// Generate methods are pure reads against the store; Export methods
// additionally write the report files to the output directory and archive
// them when an Archiver is configured. Export treats persistence and
// archival failures as warnings so a report download never fails because
// a disk or bucket is unavailable.
//
// # Thread Safety
//
// Safe for concurrent use; all state is set at construction.
type Generator struct {
	store    Store
	dir      string
	archiver Archiver
	log      *slog.Logger
}

// NewGenerator creates a report generator.
//
// # Inputs
//
//   - store: Persistence layer to read from. Required.
//   - cfg: Output directory (a leading ~/ is expanded) and GCS settings.
//   - archiver: Optional long-term archival sink. Nil disables archival.
//   - log: Logger. Nil falls back to slog.Default().
func NewGenerator(store Store, cfg config.ReportsConfig, archiver Archiver, log *slog.Logger) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		store:    store,
		dir:      config.ExpandPath(cfg.OutputDir),
		archiver: archiver,
		log:      log,
	}
}

// GenerateEmployeeReport builds the per-worker report as of now.
//
// # Outputs
//
//   - EmployeeReport: Personnel details, last-week assessments
//     newest-first, latest forecast when present.
//   - error: Non-nil if the user does not exist or a read fails.
func (g *Generator) GenerateEmployeeReport(ctx context.Context, userID string, now time.Time) (EmployeeReport, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return EmployeeReport{}, fmt.Errorf("load user %s: %w", userID, err)
	}

	day := datatypes.Day(now)
	history, err := g.store.AssessmentsInRange(ctx, userID, day.AddDate(0, 0, -employeeWindowDays), day.AddDate(0, 0, 1))
	if err != nil {
		return EmployeeReport{}, fmt.Errorf("load assessments for %s: %w", userID, err)
	}

	rows := make([]AssessmentRow, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		a := history[i]
		rows = append(rows, AssessmentRow{
			Date:            a.AssessmentDate.Format("2006-01-02"),
			StabilityIndex:  a.StabilityIndex,
			Volatility:      a.Volatility,
			RiskProbability: a.RiskProbability,
			RiskLevel:       strings.ToUpper(string(a.RiskLevel)),
		})
	}

	report := EmployeeReport{
		GeneratedAt: now.UTC(),
		Personnel: Personnel{
			UserID:     user.ID,
			FullName:   user.FullName,
			EmployeeID: user.EmployeeID,
			Department: orDefaultDepartment(user.Department),
			Role:       user.Role,
			Email:      user.Email,
		},
		Assessments: rows,
	}

	forecast, found, err := g.store.LatestForecast(ctx, userID)
	if err != nil {
		return EmployeeReport{}, fmt.Errorf("load forecast for %s: %w", userID, err)
	}
	if found {
		report.Forecast = forecastSection(forecast)
	}

	metrics.RecordReportGenerated("employee")
	g.log.Debug("Report generated",
		"kind", "employee",
		"user_id", userID,
		"assessments", len(rows),
		"has_forecast", report.Forecast != nil)
	return report, nil
}

// GenerateOrgReport builds the organization-wide summary as of now.
func (g *Generator) GenerateOrgReport(ctx context.Context, now time.Time) (OrgReport, error) {
	users, err := g.store.ListUsers(ctx, false)
	if err != nil {
		return OrgReport{}, fmt.Errorf("list users: %w", err)
	}
	byID := make(map[string]datatypes.User, len(users))
	active := 0
	for _, u := range users {
		byID[u.ID] = u
		if u.Active {
			active++
		}
	}

	week, err := g.store.AssessmentsSince(ctx, now.AddDate(0, 0, -orgWindowDays))
	if err != nil {
		return OrgReport{}, fmt.Errorf("load recent assessments: %w", err)
	}

	report := OrgReport{
		GeneratedAt:       now.UTC(),
		WindowDays:        orgWindowDays,
		ActiveUsers:       active,
		HighRisk:          highRiskRows(week, byID, now),
		Departments:       departmentRows(week, byID),
		OrgStabilityIndex: meanStability(week),
	}

	metrics.RecordReportGenerated("org")
	g.log.Debug("Report generated",
		"kind", "org",
		"high_risk", len(report.HighRisk),
		"departments", len(report.Departments))
	return report, nil
}

// highRiskRows extracts workers assessed high or critical within the last
// day, ordered by risk probability descending.
func highRiskRows(week []datatypes.StabilityAssessment, byID map[string]datatypes.User, now time.Time) []HighRiskRow {
	cutoff := now.Add(-highRiskWindow)
	rows := []HighRiskRow{}
	for _, a := range week {
		if a.RiskLevel != datatypes.RiskHigh && a.RiskLevel != datatypes.RiskCritical {
			continue
		}
		if a.AssessmentDate.Before(cutoff) {
			continue
		}
		row := HighRiskRow{
			FullName:        "Unknown",
			EmployeeID:      "N/A",
			StabilityIndex:  a.StabilityIndex,
			RiskProbability: a.RiskProbability,
		}
		if u, ok := byID[a.UserID]; ok {
			row.FullName = u.FullName
			row.EmployeeID = u.EmployeeID
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RiskProbability != rows[j].RiskProbability {
			return rows[i].RiskProbability > rows[j].RiskProbability
		}
		return rows[i].FullName < rows[j].FullName
	})
	return rows
}

// departmentRows aggregates the week's assessments by department, ordered
// by department name. Assessments for unknown users are dropped.
func departmentRows(week []datatypes.StabilityAssessment, byID map[string]datatypes.User) []DepartmentRow {
	type agg struct {
		sum     float64
		n       int
		workers map[string]struct{}
	}
	aggs := map[string]*agg{}
	for _, a := range week {
		u, ok := byID[a.UserID]
		if !ok {
			continue
		}
		dept := orDefaultDepartment(u.Department)
		da := aggs[dept]
		if da == nil {
			da = &agg{workers: map[string]struct{}{}}
			aggs[dept] = da
		}
		da.sum += a.StabilityIndex
		da.n++
		da.workers[a.UserID] = struct{}{}
	}

	rows := make([]DepartmentRow, 0, len(aggs))
	for dept, da := range aggs {
		avg := da.sum / float64(da.n)
		rows = append(rows, DepartmentRow{
			Department:   dept,
			Workers:      len(da.workers),
			AvgStability: avg,
			Status:       deptStatus(avg),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Department < rows[j].Department })
	return rows
}

// deptStatus classifies a department's average stability index.
func deptStatus(avg float64) string {
	switch {
	case avg > 0.8:
		return deptOptimal
	case avg > 0.65:
		return deptStable
	default:
		return deptWatchlist
	}
}

func meanStability(assessments []datatypes.StabilityAssessment) float64 {
	if len(assessments) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range assessments {
		sum += a.StabilityIndex
	}
	return sum / float64(len(assessments))
}

func forecastSection(f datatypes.BurnoutForecast) *ForecastSection {
	section := &ForecastSection{
		ModelType:       strings.ToUpper(string(f.ModelType)),
		ConfidenceScore: f.ConfidenceScore,
		HorizonDays:     f.HorizonDays,
		Points:          make([]ForecastRow, 0, len(f.Points)),
	}
	for _, p := range f.Points {
		section.Points = append(section.Points, ForecastRow{
			Date:        p.Date.Format("2006-01-02"),
			Probability: p.Value,
		})
	}
	if !f.PeakRiskDate.IsZero() {
		section.PeakRiskDate = f.PeakRiskDate.Format("2006-01-02")
		section.PeakRiskProbability = f.PeakRiskProbability
	}
	return section
}

func orDefaultDepartment(dept string) string {
	if dept == "" {
		return defaultDepartment
	}
	return dept
}

// ============================================================================
// Export
// ============================================================================

// reportFile is one artifact produced by an export.
type reportFile struct {
	name        string
	contentType string
	data        []byte
}

// ExportEmployeeReport generates the per-worker report and persists it as
// JSON and CSV.
//
// # Outputs
//
//   - EmployeeReport: The generated report.
//   - []string: Paths written under the output directory. Nil when no
//     directory is configured or every write failed.
//   - error: Non-nil only when generation itself fails.
func (g *Generator) ExportEmployeeReport(ctx context.Context, userID string, now time.Time) (EmployeeReport, []string, error) {
	report, err := g.GenerateEmployeeReport(ctx, userID, now)
	if err != nil {
		return EmployeeReport{}, nil, err
	}

	id := report.Personnel.EmployeeID
	if id == "" {
		id = report.Personnel.UserID
	}
	base := fmt.Sprintf("pulse_report_%s_%s", id, now.UTC().Format("20060102"))

	jsonBytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, nil, fmt.Errorf("marshal employee report: %w", err)
	}
	var csvBuf bytes.Buffer
	if err := EncodeEmployeeCSV(&csvBuf, report); err != nil {
		return report, nil, fmt.Errorf("encode employee csv: %w", err)
	}

	paths := g.persist(ctx, []reportFile{
		{name: base + ".json", contentType: "application/json", data: jsonBytes},
		{name: base + ".csv", contentType: "text/csv", data: csvBuf.Bytes()},
	})
	return report, paths, nil
}

// ExportOrgReport generates the organization summary and persists it as JSON.
func (g *Generator) ExportOrgReport(ctx context.Context, now time.Time) (OrgReport, []string, error) {
	report, err := g.GenerateOrgReport(ctx, now)
	if err != nil {
		return OrgReport{}, nil, err
	}

	jsonBytes, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return report, nil, fmt.Errorf("marshal org report: %w", err)
	}

	name := fmt.Sprintf("pulse_org_summary_%s.json", now.UTC().Format("20060102"))
	paths := g.persist(ctx, []reportFile{
		{name: name, contentType: "application/json", data: jsonBytes},
	})
	return report, paths, nil
}

// persist writes the artifacts to the output directory and archives them.
// Failures are logged, never returned: a report stays usable even when
// its copies cannot be kept.
func (g *Generator) persist(ctx context.Context, files []reportFile) []string {
	var paths []string
	if g.dir != "" {
		if err := os.MkdirAll(g.dir, 0755); err != nil {
			g.log.Warn("Report directory unavailable", "dir", g.dir, "error", err)
		} else {
			for _, f := range files {
				path := filepath.Join(g.dir, f.name)
				if err := os.WriteFile(path, f.data, 0644); err != nil {
					g.log.Warn("Report write failed", "path", path, "error", err)
					continue
				}
				paths = append(paths, path)
			}
		}
	}
	if g.archiver != nil {
		for _, f := range files {
			if err := g.archiver.Archive(ctx, "reports/"+f.name, f.contentType, f.data); err != nil {
				g.log.Warn("Report archival failed", "object", f.name, "error", err)
			}
		}
	}
	return paths
}

// EncodeEmployeeCSV writes the report's assessment table as CSV: one row
// per day, newest first, indices formatted to two decimals and risk as a
// percentage.
func EncodeEmployeeCSV(w io.Writer, report EmployeeReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Stability", "Volatility", "Risk Probability", "Risk Level"}); err != nil {
		return err
	}
	for _, row := range report.Assessments {
		rec := []string{
			row.Date,
			fmt.Sprintf("%.2f", row.StabilityIndex),
			fmt.Sprintf("%.2f", row.Volatility),
			fmt.Sprintf("%.1f%%", row.RiskProbability*100),
			row.RiskLevel,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
