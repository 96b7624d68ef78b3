// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Enums
// ============================================================================

// InterventionType identifies the kind of corrective action taken for a user.
type InterventionType string

const (
	InterventionBuffer       InterventionType = "buffer"
	InterventionRedistribute InterventionType = "redistribute"
	InterventionAlert        InterventionType = "alert"
)

var validInterventionTypes = map[InterventionType]bool{
	InterventionBuffer:       true,
	InterventionRedistribute: true,
	InterventionAlert:        true,
}

// IsValid returns true if the intervention type is recognized.
func (t InterventionType) IsValid() bool {
	return validInterventionTypes[t]
}

// InterventionStatus tracks an intervention through its lifecycle.
// Records start pending, move to executed or failed after the executor
// runs, and become cancelled only through the management API.
type InterventionStatus string

const (
	InterventionPending   InterventionStatus = "pending"
	InterventionExecuted  InterventionStatus = "executed"
	InterventionFailed    InterventionStatus = "failed"
	InterventionCancelled InterventionStatus = "cancelled"
)

var validInterventionStatuses = map[InterventionStatus]bool{
	InterventionPending:   true,
	InterventionExecuted:  true,
	InterventionFailed:    true,
	InterventionCancelled: true,
}

// IsValid returns true if the status is recognized.
func (s InterventionStatus) IsValid() bool {
	return validInterventionStatuses[s]
}

// CountsTowardCap reports whether an intervention in this status consumes
// the per-user daily budget. Cancelled records free their slot.
func (s InterventionStatus) CountsTowardCap() bool {
	return s != InterventionCancelled
}

// ============================================================================
// Action union
// ============================================================================

// BufferAction blocks out recovery time on the user's calendar.
type BufferAction struct {
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
}

// RedistributeAction proposes shifting a fraction of assigned workload to
// teammates. WorkloadReduction is a ratio in (0,1].
type RedistributeAction struct {
	WorkloadReduction float64 `json:"workload_reduction"`
	Reason            string  `json:"reason"`
}

// AlertAction escalates to a human channel instead of acting autonomously.
type AlertAction struct {
	AlertType string `json:"alert_type"`
	Urgency   string `json:"urgency"`
	Reason    string `json:"reason"`
}

// Action carries the parameters of exactly one intervention kind.
//
// Description:
//
//	Exactly one of Buffer, Redistribute, or Alert must be non-nil. The
//	JSON form is flat with a "kind" discriminator, e.g.
//	{"kind":"buffer","duration_minutes":120,"reason":"..."}; Validate
//	rejects zero or multiple arms so a malformed record can never reach
//	an executor.
type Action struct {
	Buffer       *BufferAction
	Redistribute *RedistributeAction
	Alert        *AlertAction
}

// Kind returns the intervention type of the populated arm, or "" when the
// union is empty or over-populated.
func (a Action) Kind() InterventionType {
	if err := a.Validate(); err != nil {
		return ""
	}
	switch {
	case a.Buffer != nil:
		return InterventionBuffer
	case a.Redistribute != nil:
		return InterventionRedistribute
	default:
		return InterventionAlert
	}
}

// Validate ensures exactly one arm is set and its parameters are usable.
func (a Action) Validate() error {
	set := 0
	if a.Buffer != nil {
		set++
	}
	if a.Redistribute != nil {
		set++
	}
	if a.Alert != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("action must carry exactly one arm, got %d", set)
	}
	switch {
	case a.Buffer != nil:
		if a.Buffer.DurationMinutes <= 0 {
			return fmt.Errorf("buffer duration must be positive, got %d", a.Buffer.DurationMinutes)
		}
	case a.Redistribute != nil:
		if a.Redistribute.WorkloadReduction <= 0 || a.Redistribute.WorkloadReduction > 1 {
			return fmt.Errorf("workload reduction must be in (0,1], got %.3f", a.Redistribute.WorkloadReduction)
		}
	case a.Alert != nil:
		if a.Alert.AlertType == "" {
			return fmt.Errorf("alert action requires an alert type")
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. The populated arm's fields are
// emitted flat alongside the "kind" discriminator.
func (a Action) MarshalJSON() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	type actionJSON struct {
		Kind              InterventionType `json:"kind"`
		DurationMinutes   *int             `json:"duration_minutes,omitempty"`
		WorkloadReduction *float64         `json:"workload_reduction,omitempty"`
		AlertType         string           `json:"alert_type,omitempty"`
		Urgency           string           `json:"urgency,omitempty"`
		Reason            string           `json:"reason"`
	}

	out := actionJSON{Kind: a.Kind()}
	switch {
	case a.Buffer != nil:
		out.DurationMinutes = &a.Buffer.DurationMinutes
		out.Reason = a.Buffer.Reason
	case a.Redistribute != nil:
		out.WorkloadReduction = &a.Redistribute.WorkloadReduction
		out.Reason = a.Redistribute.Reason
	case a.Alert != nil:
		out.AlertType = a.Alert.AlertType
		out.Urgency = a.Alert.Urgency
		out.Reason = a.Alert.Reason
	}
	return json.Marshal(&out)
}

// UnmarshalJSON implements json.Unmarshaler, dispatching on "kind".
func (a *Action) UnmarshalJSON(data []byte) error {
	type actionJSON struct {
		Kind              InterventionType `json:"kind"`
		DurationMinutes   int              `json:"duration_minutes"`
		WorkloadReduction float64          `json:"workload_reduction"`
		AlertType         string           `json:"alert_type"`
		Urgency           string           `json:"urgency"`
		Reason            string           `json:"reason"`
	}

	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal action: %w", err)
	}

	*a = Action{}
	switch raw.Kind {
	case InterventionBuffer:
		a.Buffer = &BufferAction{DurationMinutes: raw.DurationMinutes, Reason: raw.Reason}
	case InterventionRedistribute:
		a.Redistribute = &RedistributeAction{WorkloadReduction: raw.WorkloadReduction, Reason: raw.Reason}
	case InterventionAlert:
		a.Alert = &AlertAction{AlertType: raw.AlertType, Urgency: raw.Urgency, Reason: raw.Reason}
	default:
		return fmt.Errorf("unknown action kind %q", raw.Kind)
	}
	return a.Validate()
}

// ============================================================================
// Intervention record
// ============================================================================

// Intervention is the persisted record of one corrective action, from the
// decision that triggered it through execution and outcome measurement.
//
// Lifecycle:
//
//	The decision engine writes the record with Status pending, trigger
//	metrics, and the Action union. The executor fills the type-specific
//	result fields (buffer window, redistribution counts, alert routing)
//	and flips Status to executed or failed. RecordOutcome later fills the
//	post-metrics and EffectivenessScore once a follow-up assessment lands.
type Intervention struct {
	ID               string             `json:"id"`
	UserID           string             `json:"user_id"`
	InterventionDate time.Time          `json:"intervention_date"`
	Type             InterventionType   `json:"type"`
	Status           InterventionStatus `json:"status"`

	TriggerRiskLevel       RiskLevel `json:"trigger_risk_level"`
	TriggerRiskProbability float64   `json:"trigger_risk_probability"`
	TriggerStabilityIndex  float64   `json:"trigger_stability_index"`

	ActionDescription string `json:"action_description"`
	Action            Action `json:"action"`

	ExecutionTimestamp *time.Time `json:"execution_timestamp,omitempty"`

	PreStabilityIndex  float64 `json:"pre_stability_index"`
	PreVolatility      float64 `json:"pre_volatility"`
	PreRiskProbability float64 `json:"pre_risk_probability"`

	PostStabilityIndex  *float64 `json:"post_stability_index,omitempty"`
	PostVolatility      *float64 `json:"post_volatility,omitempty"`
	PostRiskProbability *float64 `json:"post_risk_probability,omitempty"`
	EffectivenessScore  *float64 `json:"effectiveness_score,omitempty"`

	BufferStartTime       *time.Time `json:"buffer_start_time,omitempty"`
	BufferEndTime         *time.Time `json:"buffer_end_time,omitempty"`
	BufferDurationMinutes int        `json:"buffer_duration_minutes,omitempty"`

	TasksRedistributed          int     `json:"tasks_redistributed,omitempty"`
	WorkloadReductionPercentage float64 `json:"workload_reduction_percentage,omitempty"`

	AlertSentTo  string `json:"alert_sent_to,omitempty"`
	AlertMessage string `json:"alert_message,omitempty"`

	IsAutonomous bool      `json:"is_autonomous"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}
