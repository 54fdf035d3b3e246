package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   *int         `json:"total,omitempty"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	AccountID string `json:"account_id"`
	APIKey    string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateAccountRequest is the request body for POST /v1/accounts.
type CreateAccountRequest struct {
	AccountID string         `json:"account_id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Role      Role           `json:"role"`
	APIKey    string         `json:"api_key"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CreateVehicleRequest is the request body for POST /v1/vehicles.
type CreateVehicleRequest struct {
	VIN          string         `json:"vin"`
	Make         string         `json:"make"`
	Model        string         `json:"model"`
	Year         int            `json:"year"`
	LicensePlate string         `json:"license_plate"`
	Mileage      int            `json:"mileage"`
	OwnerID      *uuid.UUID     `json:"owner_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// CreateAppointmentRequest is the request body for POST /v1/appointments.
type CreateAppointmentRequest struct {
	VehicleID   uuid.UUID  `json:"vehicle_id"`
	ClientID    *uuid.UUID `json:"client_id,omitempty"`
	ServiceType string     `json:"service_type"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	Notes       *string    `json:"notes,omitempty"`
}

// CreateInvoiceRequest is the request body for POST /v1/invoices.
type CreateInvoiceRequest struct {
	AppointmentID *uuid.UUID    `json:"appointment_id,omitempty"`
	ClientID      *uuid.UUID    `json:"client_id,omitempty"`
	Lines         []InvoiceLine `json:"lines"`
	Currency      string        `json:"currency"`
}

// CreateAssessmentRequest is the request body for POST /v1/assessments.
type CreateAssessmentRequest struct {
	VehicleID uuid.UUID          `json:"vehicle_id"`
	Component string             `json:"component"`
	Severity  AssessmentSeverity `json:"severity"`
	Summary   string             `json:"summary"`
	Findings  map[string]any     `json:"findings,omitempty"`
}

// SupervisorRunRequest is the request body for POST /v1/supervisor/run.
type SupervisorRunRequest struct {
	Task string `json:"task"`
}

// ToolInvokeRequest is the request body for POST /v1/tools/{name}.
// Args are tool-specific and validated by the tool itself.
type ToolInvokeRequest struct {
	Args map[string]any `json:"args"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Qdrant   string `json:"qdrant,omitempty"`
	Uptime   int64  `json:"uptime_seconds"`
}

// MaxTaskLen caps the free-text task handed to the supervisor. Oversized
// tasks would blow up the routing prompt and the trajectory row.
const MaxTaskLen = 8 * 1024
