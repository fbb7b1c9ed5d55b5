/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the engine via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the recorder and stores.

ENDPOINTS:
  Attendance:
    POST   /api/attendance                 Record a check-in/check-out

  Reporting:
    GET    /api/rollups                    Query daily rollups
    GET    /api/workers/{id}/events        Raw event ledger (audit view)

  Admin:
    POST   /api/admin/rollups/rebuild      Replay ledger, repair rollups
    POST   /api/departments                Create/update department
    GET    /api/establishments             List establishments
    POST   /api/establishments             Create/update establishment
    GET    /api/workers                    List workers
    POST   /api/workers                    Create/update worker
    GET    /api/workers/{id}/mappings      Mapping history
    POST   /api/workers/{id}/mapping       Remap worker
    POST   /api/workers/{id}/credentials   Register card credential

ERROR HANDLING:
  Eligibility rejections return 4xx with {code, message} verbatim; they
  are caller errors, not system faults. Storage faults return 5xx with a
  generic code.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Recorder *attendance.Recorder
	Window   *attendance.ClockWindow
	Log      *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, recorder *attendance.Recorder, window *attendance.ClockWindow, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Recorder: recorder, Window: window, Log: log}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// RecordAttendance handles one check-in/check-out submission.
// POST /api/attendance
func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.EstablishmentID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "establishment_id is required")
		return
	}

	result, err := h.Recorder.Record(r.Context(), attendance.RecordRequest{
		Worker: attendance.WorkerIdentifier{
			Code:         req.WorkerCode,
			CredentialID: req.CredentialID,
		},
		Establishment: attendance.EstablishmentContext{
			EstablishmentID: attendance.EstablishmentID(req.EstablishmentID),
			DepartmentWide:  req.DepartmentWide,
		},
		Source:         req.Source,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.writeRecordError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RecordAttendanceDTO{
		EventID:           string(result.EventID),
		EventType:         string(result.EventType),
		OccurredAt:        result.OccurredAt.Format(time.RFC3339),
		WorkerID:          string(result.WorkerID),
		WorkerDisplayName: result.WorkerDisplayName,
		EstablishmentName: result.EstablishmentName,
		RollupDate:        result.RollupDate,
	})
}

func (h *Handler) writeRecordError(w http.ResponseWriter, err error) {
	if errors.Is(err, attendance.ErrEmptyWorkerIdentifier) {
		writeError(w, http.StatusBadRequest, "BadRequest", "worker identifier is required")
		return
	}
	if errors.Is(err, attendance.ErrDuplicateIdempotencyKey) {
		writeError(w, http.StatusConflict, "Duplicate", "this submission was already recorded")
		return
	}
	if rej := attendance.AsRejection(err); rej != nil {
		status := http.StatusUnprocessableEntity
		switch rej.Code {
		case attendance.CodeWorkerNotFound:
			status = http.StatusNotFound
		case attendance.CodeInsertError, attendance.CodeLookupError:
			status = http.StatusInternalServerError
		}
		writeError(w, status, string(rej.Code), rej.Message)
		return
	}
	h.Log.Error("record attendance failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, string(attendance.CodeLookupError), "internal error")
}

// =============================================================================
// REPORTING
// =============================================================================

// QueryRollups returns rollups filtered by worker/establishment/date range.
// GET /api/rollups?worker=&establishment=&from=&to=
func (h *Handler) QueryRollups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rollups, err := h.Store.QueryRollups(r.Context(), attendance.RollupFilter{
		WorkerID:        attendance.WorkerID(q.Get("worker")),
		EstablishmentID: attendance.EstablishmentID(q.Get("establishment")),
		FromDate:        q.Get("from"),
		ToDate:          q.Get("to"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to query rollups")
		return
	}

	dtos := make([]RollupDTO, len(rollups))
	for i, r := range rollups {
		dtos[i] = toRollupDTO(r)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListWorkerEvents returns the raw ledger for audit views.
// GET /api/workers/{id}/events?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) ListWorkerEvents(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.WorkerID(chi.URLParam(r, "id"))
	q := r.URL.Query()

	fromWindow, err := h.Window.WindowForDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "from must be YYYY-MM-DD")
		return
	}
	toWindow, err := h.Window.WindowForDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "to must be YYYY-MM-DD")
		return
	}

	events, err := h.Store.EventsForWorkerInRange(r.Context(), workerID, fromWindow.Start, toWindow.End)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to query events")
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RebuildRollups replays the ledger for a worker's date range.
// POST /api/admin/rollups/rebuild
func (h *Handler) RebuildRollups(w http.ResponseWriter, r *http.Request) {
	var req RebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.WorkerID == "" || req.FromDate == "" || req.ToDate == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "worker_id, from_date and to_date are required")
		return
	}

	repaired, err := h.Recorder.RebuildRange(r.Context(), attendance.WorkerID(req.WorkerID), req.FromDate, req.ToDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "rebuild failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repaired_days": repaired})
}

// =============================================================================
// DIRECTORY ADMIN
// =============================================================================

// ListWorkers returns all workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Store.ListWorkers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to list workers")
		return
	}
	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWorker creates or updates a worker.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.Code == "" || req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "code and display_name are required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	worker := attendance.Worker{
		ID:           attendance.WorkerID(req.ID),
		Code:         req.Code,
		DisplayName:  req.DisplayName,
		DepartmentID: attendance.DepartmentID(req.DepartmentID),
		IsActive:     req.IsActive,
	}
	if err := h.Store.SaveWorker(r.Context(), worker); err != nil {
		writeError(w, http.StatusInternalServerError, "InsertError", "failed to save worker")
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(worker))
}

// GetWorker returns one worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	worker, err := h.Store.GetWorker(r.Context(), attendance.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to get worker")
		return
	}
	if worker == nil {
		writeError(w, http.StatusNotFound, "WorkerNotFound", "worker not found")
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(*worker))
}

// MapWorker remaps a worker to an establishment, closing the previous
// mapping.
func (h *Handler) MapWorker(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.WorkerID(chi.URLParam(r, "id"))

	var req MapWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.EstablishmentID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "establishment_id is required")
		return
	}

	mapping := attendance.EstablishmentMapping{
		ID:              attendance.MappingID(uuid.NewString()),
		WorkerID:        workerID,
		EstablishmentID: attendance.EstablishmentID(req.EstablishmentID),
		MappedAt:        time.Now().UTC(),
		IsActive:        true,
	}
	if err := h.Store.MapWorker(r.Context(), mapping); err != nil {
		writeError(w, http.StatusInternalServerError, "InsertError", "failed to remap worker")
		return
	}
	writeJSON(w, http.StatusCreated, toMappingDTO(mapping))
}

// ListWorkerMappings returns a worker's full mapping history.
func (h *Handler) ListWorkerMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.Store.MappingHistory(r.Context(), attendance.WorkerID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to list mappings")
		return
	}
	dtos := make([]MappingDTO, len(mappings))
	for i, m := range mappings {
		dtos[i] = toMappingDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RegisterCredential links an external credential id to a worker.
func (h *Handler) RegisterCredential(w http.ResponseWriter, r *http.Request) {
	workerID := attendance.WorkerID(chi.URLParam(r, "id"))

	var req RegisterCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "credential_id is required")
		return
	}

	if err := h.Store.SaveCredential(r.Context(), req.CredentialID, workerID); err != nil {
		writeError(w, http.StatusInternalServerError, "InsertError", "failed to register credential")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEstablishments returns all establishments.
func (h *Handler) ListEstablishments(w http.ResponseWriter, r *http.Request) {
	establishments, err := h.Store.ListEstablishments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LookupError", "failed to list establishments")
		return
	}
	dtos := make([]EstablishmentDTO, len(establishments))
	for i, e := range establishments {
		dtos[i] = EstablishmentDTO{
			ID:           string(e.ID),
			Name:         e.Name,
			DepartmentID: string(e.DepartmentID),
			IsActive:     e.IsActive,
			IsApproved:   e.IsApproved,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEstablishment creates or updates an establishment.
func (h *Handler) CreateEstablishment(w http.ResponseWriter, r *http.Request) {
	var req CreateEstablishmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "name is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	est := attendance.Establishment{
		ID:           attendance.EstablishmentID(req.ID),
		Name:         req.Name,
		DepartmentID: attendance.DepartmentID(req.DepartmentID),
		IsActive:     req.IsActive,
		IsApproved:   req.IsApproved,
	}
	if err := h.Store.SaveEstablishment(r.Context(), est); err != nil {
		writeError(w, http.StatusInternalServerError, "InsertError", "failed to save establishment")
		return
	}
	writeJSON(w, http.StatusCreated, EstablishmentDTO{
		ID:           string(est.ID),
		Name:         est.Name,
		DepartmentID: string(est.DepartmentID),
		IsActive:     est.IsActive,
		IsApproved:   est.IsApproved,
	})
}

// CreateDepartment creates or updates a department.
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "invalid request body")
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "id and name are required")
		return
	}

	dep := attendance.Department{
		ID:       attendance.DepartmentID(req.ID),
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	if err := h.Store.SaveDepartment(r.Context(), dep); err != nil {
		writeError(w, http.StatusInternalServerError, "InsertError", "failed to save department")
		return
	}
	writeJSON(w, http.StatusCreated, dep)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
