/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordAttendanceRequest is one check-in/check-out submission. Exactly one
// of worker_code and credential_id identifies the worker.
type RecordAttendanceRequest struct {
	WorkerCode      string            `json:"worker_code,omitempty"`
	CredentialID    string            `json:"credential_id,omitempty"`
	EstablishmentID string            `json:"establishment_id"`
	DepartmentWide  bool              `json:"department_wide,omitempty"`
	Source          string            `json:"source,omitempty"`
	IdempotencyKey  string            `json:"idempotency_key,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// RecordAttendanceDTO is the success payload.
type RecordAttendanceDTO struct {
	EventID           string `json:"event_id"`
	EventType         string `json:"event_type"`
	OccurredAt        string `json:"occurred_at"`
	WorkerID          string `json:"worker_id"`
	WorkerDisplayName string `json:"worker_display_name"`
	EstablishmentName string `json:"establishment_name"`
	RollupDate        string `json:"rollup_date"`
}

// EventDTO is one ledger entry in audit views.
type EventDTO struct {
	ID              string            `json:"id"`
	WorkerID        string            `json:"worker_id"`
	EventType       string            `json:"event_type"`
	OccurredAt      string            `json:"occurred_at"`
	EstablishmentID string            `json:"establishment_id"`
	Source          string            `json:"source,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func toEventDTO(e attendance.AttendanceEvent) EventDTO {
	return EventDTO{
		ID:              string(e.ID),
		WorkerID:        string(e.WorkerID),
		EventType:       string(e.Type),
		OccurredAt:      e.OccurredAt.Format(time.RFC3339),
		EstablishmentID: string(e.EstablishmentID),
		Source:          e.Source,
		Metadata:        e.Metadata,
	}
}

// =============================================================================
// ROLLUPS
// =============================================================================

type RollupDTO struct {
	WorkerID        string  `json:"worker_id"`
	Date            string  `json:"date"`
	EstablishmentID string  `json:"establishment_id"`
	FirstCheckinAt  *string `json:"first_checkin_at,omitempty"`
	LastCheckoutAt  *string `json:"last_checkout_at,omitempty"`
	TotalHours      float64 `json:"total_hours"`
	Status          string  `json:"status"`
}

func toRollupDTO(r attendance.DailyRollup) RollupDTO {
	dto := RollupDTO{
		WorkerID:        string(r.WorkerID),
		Date:            r.Date,
		EstablishmentID: string(r.EstablishmentID),
		TotalHours:      r.TotalHours.Float64(),
		Status:          string(r.Status),
	}
	if r.FirstCheckinAt != nil {
		s := r.FirstCheckinAt.Format(time.RFC3339)
		dto.FirstCheckinAt = &s
	}
	if r.LastCheckoutAt != nil {
		s := r.LastCheckoutAt.Format(time.RFC3339)
		dto.LastCheckoutAt = &s
	}
	return dto
}

// RebuildRequest triggers a reconciliation replay for one worker.
type RebuildRequest struct {
	WorkerID string `json:"worker_id"`
	FromDate string `json:"from_date"`
	ToDate   string `json:"to_date"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

type WorkerDTO struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	DisplayName  string `json:"display_name"`
	DepartmentID string `json:"department_id"`
	IsActive     bool   `json:"is_active"`
}

func toWorkerDTO(w attendance.Worker) WorkerDTO {
	return WorkerDTO{
		ID:           string(w.ID),
		Code:         w.Code,
		DisplayName:  w.DisplayName,
		DepartmentID: string(w.DepartmentID),
		IsActive:     w.IsActive,
	}
}

type CreateWorkerRequest struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	DisplayName  string `json:"display_name"`
	DepartmentID string `json:"department_id"`
	IsActive     bool   `json:"is_active"`
}

type EstablishmentDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	IsActive     bool   `json:"is_active"`
	IsApproved   bool   `json:"is_approved"`
}

type CreateEstablishmentRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	IsActive     bool   `json:"is_active"`
	IsApproved   bool   `json:"is_approved"`
}

type CreateDepartmentRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// MapWorkerRequest remaps a worker: the previous mapping is closed, never
// deleted.
type MapWorkerRequest struct {
	EstablishmentID string `json:"establishment_id"`
}

type RegisterCredentialRequest struct {
	CredentialID string `json:"credential_id"`
}

type MappingDTO struct {
	ID              string  `json:"id"`
	EstablishmentID string  `json:"establishment_id"`
	MappedAt        string  `json:"mapped_at"`
	UnmappedAt      *string `json:"unmapped_at,omitempty"`
	IsActive        bool    `json:"is_active"`
}

func toMappingDTO(m attendance.EstablishmentMapping) MappingDTO {
	dto := MappingDTO{
		ID:              string(m.ID),
		EstablishmentID: string(m.EstablishmentID),
		MappedAt:        m.MappedAt.Format(time.RFC3339),
		IsActive:        m.IsActive,
	}
	if m.UnmappedAt != nil {
		s := m.UnmappedAt.Format(time.RFC3339)
		dto.UnmappedAt = &s
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse carries the stable machine code plus a human message.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
