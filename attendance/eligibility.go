/*
eligibility.go - Worker/establishment authorization checks

PURPOSE:
  Confirms, before any event is recorded, that the worker may record
  attendance at the target establishment. Checks run in a fixed order and
  short-circuit on the first failure. Every failure is terminal for the
  request and carries a stable machine code (see errors.go).

CHECK ORDER:
  1. Worker exists                      -> WorkerNotFound
  2. Worker is active                   -> WorkerInactive
  3. Establishment active               -> EstablishmentInactive
  4. Establishment approved             -> EstablishmentNotApproved
  5. Worker has an active mapping       -> NoActiveMapping
  6. Mapping matches the target         -> WrongEstablishment, or for a
     department-wide terminal, the departments must match
                                        -> DifferentDepartment

  All checks are read-only and run outside the per-worker serialized
  section; only the toggle-read plus append is serialized.
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
)

// WorkerIdentifier names a worker either by code or by a verified external
// credential. Exactly one field should be set.
type WorkerIdentifier struct {
	Code         string
	CredentialID string
}

func (id WorkerIdentifier) isEmpty() bool {
	return strings.TrimSpace(id.Code) == "" && strings.TrimSpace(id.CredentialID) == ""
}

// EstablishmentContext describes what the calling terminal is authorized
// to record against. DepartmentWide terminals accept any worker of the
// establishment's department rather than only workers mapped to the exact
// establishment.
type EstablishmentContext struct {
	EstablishmentID EstablishmentID
	DepartmentWide  bool
}

// Validator performs the eligibility checks against the directory.
type Validator struct {
	Directory Directory
}

func NewValidator(dir Directory) *Validator {
	return &Validator{Directory: dir}
}

// ResolveWorker resolves the identifier to a worker record, or a rejection.
func (v *Validator) ResolveWorker(ctx context.Context, id WorkerIdentifier) (*Worker, error) {
	if id.isEmpty() {
		return nil, ErrEmptyWorkerIdentifier
	}

	var (
		worker *Worker
		err    error
	)
	if id.CredentialID != "" {
		worker, err = v.Directory.GetWorkerByCredential(ctx, strings.TrimSpace(id.CredentialID))
	} else {
		worker, err = v.Directory.GetWorkerByCode(ctx, strings.TrimSpace(id.Code))
	}
	if err != nil {
		return nil, fmt.Errorf("worker lookup: %w", err)
	}
	if worker == nil {
		return nil, reject(CodeWorkerNotFound, "no worker matches the supplied identifier")
	}
	return worker, nil
}

// Validate runs the ordered checks and returns the establishment that will
// be recorded on the event: the one from the worker's active mapping.
func (v *Validator) Validate(ctx context.Context, worker *Worker, ec EstablishmentContext) (*Establishment, error) {
	if !worker.IsActive {
		return nil, reject(CodeWorkerInactive, "worker %s is not active", worker.Code)
	}

	target, err := v.Directory.GetEstablishment(ctx, ec.EstablishmentID)
	if err != nil {
		return nil, fmt.Errorf("establishment lookup: %w", err)
	}
	if target == nil || !target.IsActive {
		return nil, reject(CodeEstablishmentInactive, "establishment %s is not active", ec.EstablishmentID)
	}
	if !target.IsApproved {
		return nil, reject(CodeEstablishmentNotApproved, "establishment %s is not approved by its department", ec.EstablishmentID)
	}

	mapping, err := v.Directory.ActiveMapping(ctx, worker.ID)
	if err != nil {
		return nil, fmt.Errorf("mapping lookup: %w", err)
	}
	if mapping == nil {
		return nil, reject(CodeNoActiveMapping, "worker %s has no active establishment mapping", worker.Code)
	}

	if mapping.EstablishmentID == target.ID {
		return v.mappedEstablishment(ctx, mapping, target)
	}

	if ec.DepartmentWide {
		if worker.DepartmentID == target.DepartmentID {
			return v.mappedEstablishment(ctx, mapping, target)
		}
		return nil, reject(CodeDifferentDepartment, "worker %s belongs to a different department than establishment %s", worker.Code, target.ID)
	}

	return nil, reject(CodeWrongEstablishment, "worker %s is mapped to %s, not %s", worker.Code, mapping.EstablishmentID, target.ID)
}

// mappedEstablishment resolves the establishment of the active mapping.
// That id, not the terminal's, is what gets copied onto the event so
// attribution follows the mapping in force when the event occurred.
func (v *Validator) mappedEstablishment(ctx context.Context, mapping *EstablishmentMapping, target *Establishment) (*Establishment, error) {
	if mapping.EstablishmentID == target.ID {
		return target, nil
	}
	est, err := v.Directory.GetEstablishment(ctx, mapping.EstablishmentID)
	if err != nil {
		return nil, fmt.Errorf("mapped establishment lookup: %w", err)
	}
	if est == nil {
		return nil, reject(CodeNoActiveMapping, "mapped establishment %s no longer exists", mapping.EstablishmentID)
	}
	return est, nil
}
