package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Vehicle is a customer vehicle tracked by a workshop.
type Vehicle struct {
	ID           uuid.UUID      `json:"id"`
	OrgID        uuid.UUID      `json:"org_id"`
	OwnerID      *uuid.UUID     `json:"owner_id,omitempty"` // client account, if linked
	VIN          string         `json:"vin"`
	Make         string         `json:"make"`
	Model        string         `json:"model"`
	Year         int            `json:"year"`
	LicensePlate string         `json:"license_plate"`
	Mileage      int            `json:"mileage"`
	Metadata     map[string]any `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AppointmentStatus enumerates appointment lifecycle states.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentInService AppointmentStatus = "in_service"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a scheduled service slot for a vehicle.
type Appointment struct {
	ID          uuid.UUID         `json:"id"`
	OrgID       uuid.UUID         `json:"org_id"`
	VehicleID   uuid.UUID         `json:"vehicle_id"`
	ClientID    *uuid.UUID        `json:"client_id,omitempty"`
	ServiceType string            `json:"service_type"`
	Status      AppointmentStatus `json:"status"`
	StartsAt    time.Time         `json:"starts_at"`
	EndsAt      time.Time         `json:"ends_at"`
	Notes       *string           `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// InvoiceStatus enumerates invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceIssued InvoiceStatus = "issued"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceVoid   InvoiceStatus = "void"
)

// InvoiceLine is a single billed item on an invoice.
type InvoiceLine struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitCents   int64   `json:"unit_cents"`
}

// Invoice is a bill issued to a client for service work.
type Invoice struct {
	ID            uuid.UUID     `json:"id"`
	OrgID         uuid.UUID     `json:"org_id"`
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	ClientID      *uuid.UUID    `json:"client_id,omitempty"`
	Number        string        `json:"number"`
	Status        InvoiceStatus `json:"status"`
	Lines         []InvoiceLine `json:"lines"`
	TotalCents    int64         `json:"total_cents"`
	Currency      string        `json:"currency"`
	IssuedAt      *time.Time    `json:"issued_at,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SumLines computes the invoice total from its line items.
func SumLines(lines []InvoiceLine) int64 {
	var total int64
	for _, l := range lines {
		total += int64(l.Quantity * float64(l.UnitCents))
	}
	return total
}

// AssessmentSeverity enumerates condition-assessment severities.
type AssessmentSeverity string

const (
	SeverityLow      AssessmentSeverity = "low"
	SeverityModerate AssessmentSeverity = "moderate"
	SeverityHigh     AssessmentSeverity = "high"
	SeverityCritical AssessmentSeverity = "critical"
)

// Assessment is a recorded condition assessment for a vehicle, typically
// produced by the vision tool or entered by a mechanic.
type Assessment struct {
	ID         uuid.UUID          `json:"id"`
	OrgID      uuid.UUID          `json:"org_id"`
	VehicleID  uuid.UUID          `json:"vehicle_id"`
	AssessorID string             `json:"assessor_id"` // account id or tool name
	Component  string             `json:"component"`   // e.g. "brakes", "front bumper"
	Severity   AssessmentSeverity `json:"severity"`
	Summary    string             `json:"summary"`
	Findings   map[string]any     `json:"findings"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ServiceRecord is a completed unit of service work, embedded for semantic
// search so the vector-search tool can surface similar past jobs.
type ServiceRecord struct {
	ID          uuid.UUID        `json:"id"`
	OrgID       uuid.UUID        `json:"org_id"`
	VehicleID   uuid.UUID        `json:"vehicle_id"`
	ServiceType string           `json:"service_type"`
	Description string           `json:"description"`
	CostCents   int64            `json:"cost_cents"`
	Embedding   *pgvector.Vector `json:"-"`
	PerformedAt time.Time        `json:"performed_at"`
	CreatedAt   time.Time        `json:"created_at"`
}
