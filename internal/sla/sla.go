package sla

import (
	"time"

	"github.com/google/uuid"
)

// TargetType names the measured dimension of an SLA
type TargetType string

const (
	TargetResponseTime TargetType = "response_time"
	TargetThroughput   TargetType = "throughput"
	TargetAvailability TargetType = "availability"
	TargetErrorRate    TargetType = "error_rate"
	TargetQueueTime    TargetType = "queue_time"
)

// Definition is one service-level objective
type Definition struct {
	ID                string        `json:"id"`
	TargetType        TargetType    `json:"target_type"`
	TargetValue       float64       `json:"target_value"`
	Unit              string        `json:"unit"`
	MeasurementPeriod time.Duration `json:"measurement_period"`
	PriorityImpact    float64       `json:"priority_impact"`
	Enabled           bool          `json:"enabled"`
}

// ComplianceStatus classifies a compliance record
type ComplianceStatus string

const (
	StatusCompliant ComplianceStatus = "compliant"
	StatusWarning   ComplianceStatus = "warning"
	StatusViolation ComplianceStatus = "violation"
	StatusCritical  ComplianceStatus = "critical"
)

// measurementHistorySize bounds the per-SLA measurement ring
const measurementHistorySize = 60

// Measurement is one observation in the compliance history ring
type Measurement struct {
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// Compliance is the rolling evaluation state of one SLA
type Compliance struct {
	SLAID                string           `json:"sla_id"`
	CurrentValue         float64          `json:"current_value"`
	TargetValue          float64          `json:"target_value"`
	CompliancePercentage float64          `json:"compliance_percentage"`
	Status               ComplianceStatus `json:"status"`
	LastUpdated          time.Time        `json:"last_updated"`
	History              []Measurement    `json:"history"`
}

// ViolationSeverity grades a violation by how far past target it landed
type ViolationSeverity string

const (
	SeverityMinor        ViolationSeverity = "minor"
	SeverityMajor        ViolationSeverity = "major"
	SeverityCritical     ViolationSeverity = "critical"
	SeverityCatastrophic ViolationSeverity = "catastrophic"
)

// Violation records one SLA breach
type Violation struct {
	ID             uuid.UUID         `json:"id"`
	SLAID          string            `json:"sla_id"`
	Time           time.Time         `json:"time"`
	Severity       ViolationSeverity `json:"severity"`
	Measured       float64           `json:"measured"`
	Target         float64           `json:"target"`
	Impact         string            `json:"impact"`
	Resolved       bool              `json:"resolved"`
	ResolutionTime *time.Time        `json:"resolution_time,omitempty"`
}

// classifyCompliance maps a compliance percentage to a status
func classifyCompliance(pct float64) ComplianceStatus {
	switch {
	case pct >= 95:
		return StatusCompliant
	case pct >= 80:
		return StatusWarning
	default:
		return StatusViolation
	}
}

// classifySeverity grades a violation by the measured/target ratio
func classifySeverity(ratio float64) ViolationSeverity {
	switch {
	case ratio <= 1.2:
		return SeverityMinor
	case ratio <= 1.5:
		return SeverityMajor
	case ratio <= 2.0:
		return SeverityCritical
	default:
		return SeverityCatastrophic
	}
}
