package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// newDirectory builds a directory with one department, two approved
// establishments in it, and one active worker mapped to est-A.
func newDirectory(t *testing.T) *store.MemoryDirectory {
	t.Helper()
	dir := store.NewMemoryDirectory()

	dir.PutDepartment(attendance.Department{ID: "dep-1", Name: "Public Works"})
	dir.PutEstablishment(attendance.Establishment{
		ID: "est-A", Name: "Site A", DepartmentID: "dep-1", IsActive: true, IsApproved: true,
	})
	dir.PutEstablishment(attendance.Establishment{
		ID: "est-B", Name: "Site B", DepartmentID: "dep-1", IsActive: true, IsApproved: true,
	})
	dir.PutWorker(attendance.Worker{
		ID: "wkr-1", Code: "WKR001", DisplayName: "Asha Devi", DepartmentID: "dep-1", IsActive: true,
	})
	dir.MapWorker(attendance.EstablishmentMapping{
		ID: "map-1", WorkerID: "wkr-1", EstablishmentID: "est-A",
		MappedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	return dir
}

func requireCode(t *testing.T, err error, code attendance.RejectionCode) {
	t.Helper()
	rej := attendance.AsRejection(err)
	require.NotNil(t, rej, "expected a rejection, got %v", err)
	assert.Equal(t, code, rej.Code)
}

func TestResolveWorker_EmptyIdentifier(t *testing.T) {
	v := attendance.NewValidator(newDirectory(t))

	_, err := v.ResolveWorker(context.Background(), attendance.WorkerIdentifier{Code: "  "})
	assert.ErrorIs(t, err, attendance.ErrEmptyWorkerIdentifier)
}

func TestResolveWorker_ByCodeAndCredential(t *testing.T) {
	dir := newDirectory(t)
	dir.PutCredential("cred-9f", "wkr-1")
	v := attendance.NewValidator(dir)

	byCode, err := v.ResolveWorker(context.Background(), attendance.WorkerIdentifier{Code: "WKR001"})
	require.NoError(t, err)
	assert.Equal(t, attendance.WorkerID("wkr-1"), byCode.ID)

	byCred, err := v.ResolveWorker(context.Background(), attendance.WorkerIdentifier{CredentialID: "cred-9f"})
	require.NoError(t, err)
	assert.Equal(t, byCode.ID, byCred.ID)
}

func TestResolveWorker_Unknown(t *testing.T) {
	v := attendance.NewValidator(newDirectory(t))

	_, err := v.ResolveWorker(context.Background(), attendance.WorkerIdentifier{Code: "NOPE"})
	requireCode(t, err, attendance.CodeWorkerNotFound)
}

func TestValidate_InactiveWorker(t *testing.T) {
	dir := newDirectory(t)
	dir.PutWorker(attendance.Worker{
		ID: "wkr-2", Code: "WKR002", DepartmentID: "dep-1", IsActive: false,
	})
	v := attendance.NewValidator(dir)

	worker, err := dir.GetWorker(context.Background(), "wkr-2")
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-A"})
	requireCode(t, err, attendance.CodeWorkerInactive)
}

func TestValidate_EstablishmentInactive(t *testing.T) {
	dir := newDirectory(t)
	dir.PutEstablishment(attendance.Establishment{
		ID: "est-closed", Name: "Closed Site", DepartmentID: "dep-1", IsActive: false, IsApproved: true,
	})
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	// A missing establishment gets the same code as an inactive one.
	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-missing"})
	requireCode(t, err, attendance.CodeEstablishmentInactive)

	_, err = v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-closed"})
	requireCode(t, err, attendance.CodeEstablishmentInactive)
}

func TestValidate_EstablishmentNotApproved(t *testing.T) {
	dir := newDirectory(t)
	dir.PutEstablishment(attendance.Establishment{
		ID: "est-pending", Name: "Pending Site", DepartmentID: "dep-1", IsActive: true, IsApproved: false,
	})
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-pending"})
	requireCode(t, err, attendance.CodeEstablishmentNotApproved)
}

func TestValidate_NoActiveMapping(t *testing.T) {
	dir := newDirectory(t)
	dir.PutWorker(attendance.Worker{
		ID: "wkr-unmapped", Code: "WKR003", DepartmentID: "dep-1", IsActive: true,
	})
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-unmapped")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-A"})
	requireCode(t, err, attendance.CodeNoActiveMapping)
}

func TestValidate_MatchingMapping(t *testing.T) {
	dir := newDirectory(t)
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	est, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-A"})
	require.NoError(t, err)
	assert.Equal(t, attendance.EstablishmentID("est-A"), est.ID)
}

func TestValidate_WrongEstablishment(t *testing.T) {
	// Worker is mapped to est-A; a non-department-wide terminal at est-B
	// must reject.
	dir := newDirectory(t)
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-B"})
	requireCode(t, err, attendance.CodeWrongEstablishment)
}

func TestValidate_DepartmentWideTerminal(t *testing.T) {
	dir := newDirectory(t)
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	// WHEN: a department-wide terminal at est-B (same department dep-1)
	est, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{
		EstablishmentID: "est-B", DepartmentWide: true,
	})
	require.NoError(t, err)

	// THEN: the event attributes to the mapped establishment, not the terminal's
	assert.Equal(t, attendance.EstablishmentID("est-A"), est.ID)
}

func TestValidate_DifferentDepartment(t *testing.T) {
	dir := newDirectory(t)
	dir.PutDepartment(attendance.Department{ID: "dep-2", Name: "Sanitation"})
	dir.PutEstablishment(attendance.Establishment{
		ID: "est-other", Name: "Other Dept Site", DepartmentID: "dep-2", IsActive: true, IsApproved: true,
	})
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{
		EstablishmentID: "est-other", DepartmentWide: true,
	})
	requireCode(t, err, attendance.CodeDifferentDepartment)
}

func TestValidate_CheckOrder_InactiveWorkerWinsOverBadEstablishment(t *testing.T) {
	// Checks run in a fixed order: an inactive worker at a missing
	// establishment reports WorkerInactive, not EstablishmentInactive.
	dir := newDirectory(t)
	dir.PutWorker(attendance.Worker{
		ID: "wkr-2", Code: "WKR002", DepartmentID: "dep-1", IsActive: false,
	})
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-2")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-missing"})
	requireCode(t, err, attendance.CodeWorkerInactive)
}

func TestIsEligibility(t *testing.T) {
	dir := newDirectory(t)
	v := attendance.NewValidator(dir)
	worker, _ := dir.GetWorker(context.Background(), "wkr-1")

	_, err := v.Validate(context.Background(), worker, attendance.EstablishmentContext{EstablishmentID: "est-B"})
	assert.True(t, attendance.IsEligibility(err))
	assert.False(t, attendance.IsRetryable(err))
}
