package identity

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/store"
)

func newTestService() (*Service, *store.Memory) {
	m := store.NewMemory()
	logger := zerolog.New(io.Discard)
	w := store.NewWriter(m, logger)
	svc := NewService(m, w, auditlog.NewService(m, m, w, logger), logger)
	svc.SetHashCost(bcrypt.MinCost)
	return svc, m
}

func registerDoctor(t *testing.T, svc *Service, email string) User {
	t.Helper()
	u, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Dr. Rao", Email: email, Password: "secret-pass", Role: auth.RoleDoctor,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

func TestRegister_PendingAndHashed(t *testing.T) {
	svc, m := newTestService()
	u := registerDoctor(t, svc, "rao@example.com")

	if u.VerificationStatus != StatusPending {
		t.Errorf("expected PENDING, got %s", u.VerificationStatus)
	}
	if u.PasswordHash != "" {
		t.Error("expected password hash to be hidden from the caller")
	}
	stored, _ := Users.All(context.Background(), m)
	if len(stored) != 1 || stored[0].PasswordHash == "" || stored[0].PasswordHash == "secret-pass" {
		t.Errorf("expected bcrypt hash in storage, got %+v", stored)
	}
}

func TestRegister_DuplicateEmailCaseInsensitive(t *testing.T) {
	svc, _ := newTestService()
	registerDoctor(t, svc, "rao@example.com")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Other", Email: "RAO@Example.com", Password: "secret-pass", Role: auth.RolePharmacy,
	})
	if !errors.Is(err, apperr.ErrState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestRegister_RejectsAdminRole(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Register(context.Background(), RegisterRequest{
		Name: "Eve", Email: "eve@example.com", Password: "secret-pass", Role: auth.RoleAdmin,
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u := registerDoctor(t, svc, "rao@example.com")

	got, err := svc.Authenticate(ctx, "Rao@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected %s, got %s", u.ID, got.ID)
	}
	if _, err := svc.Authenticate(ctx, "rao@example.com", "wrong-pass"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden for bad password, got %v", err)
	}
}

func TestTerminate_BlocksLoginAndKeepsRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u := registerDoctor(t, svc, "rao@example.com")

	got, err := svc.Terminate(ctx, auth.DevUserID, u.ID, "licence revoked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VerificationStatus != StatusTerminated || got.TerminatedBy != auth.DevUserID || got.TerminatedAt == nil {
		t.Errorf("unexpected terminated user: %+v", got)
	}
	if _, err := svc.Authenticate(ctx, "rao@example.com", "secret-pass"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected terminated login to be refused, got %v", err)
	}
	if _, err := svc.GetUser(ctx, u.ID); err != nil {
		t.Errorf("expected record to be retained, got %v", err)
	}
	if _, err := svc.SetStatus(ctx, auth.DevUserID, u.ID, StatusVerified); !errors.Is(err, apperr.ErrInvalidStateTransition) {
		t.Errorf("expected terminated user not to be re-verified, got %v", err)
	}
}

func TestTerminate_RequiresReason(t *testing.T) {
	svc, _ := newTestService()
	u := registerDoctor(t, svc, "rao@example.com")
	if _, err := svc.Terminate(context.Background(), auth.DevUserID, u.ID, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDelete_RemovesRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u := registerDoctor(t, svc, "rao@example.com")

	if err := svc.Delete(ctx, auth.DevUserID, u.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetUser(ctx, u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := svc.Delete(ctx, auth.DevUserID, u.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	svc, m := newTestService()
	ctx := context.Background()
	u := registerDoctor(t, svc, "rao@example.com")

	temp, err := svc.ResetPassword(ctx, auth.DevUserID, u.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(temp) != tempPasswordLen {
		t.Errorf("expected %d-char temporary password, got %q", tempPasswordLen, temp)
	}
	if _, err := svc.Authenticate(ctx, "rao@example.com", temp); err != nil {
		t.Errorf("expected temporary password to work, got %v", err)
	}
	stored, _ := Users.All(ctx, m)
	if !stored[0].ForcePasswordChange {
		t.Error("expected forcePasswordChange to be set")
	}

	if err := svc.ChangePassword(ctx, u.ID, temp, "brand-new-pass"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	stored, _ = Users.All(ctx, m)
	if stored[0].ForcePasswordChange {
		t.Error("expected forcePasswordChange to be cleared")
	}

	entries, _ := svc.audit.Load(ctx, 10)
	found := false
	for _, e := range entries {
		if e.Action == auditlog.ActionPasswordReset {
			found = true
		}
	}
	if !found {
		t.Error("expected password reset to be audited")
	}
}

func validProfile() DoctorProfile {
	return DoctorProfile{
		RegistrationNumber: "MCI-12345",
		MedicalDegree:      "MBBS",
		StateCouncil:       "Maharashtra Medical Council",
		ClinicName:         "Rao Clinic",
		ClinicAddress:      "12 MG Road",
		City:               "Pune",
		State:              "MH",
		Pincode:            "411001",
		Phone:              "9820012345",
	}
}

func TestSubmitVerification_ReturnsToPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	u := registerDoctor(t, svc, "rao@example.com")
	svc.SetStatus(ctx, auth.DevUserID, u.ID, StatusVerified)

	got, err := svc.SubmitVerification(ctx, u.ID, validProfile())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.VerificationStatus != StatusPending {
		t.Errorf("expected PENDING after resubmission, got %s", got.VerificationStatus)
	}
	if got.DoctorProfile == nil || got.DoctorProfile.ClinicName != "Rao Clinic" {
		t.Errorf("expected profile stored, got %+v", got.DoctorProfile)
	}
}

func TestSubmitVerification_MissingField(t *testing.T) {
	svc, _ := newTestService()
	u := registerDoctor(t, svc, "rao@example.com")
	p := validProfile()
	p.Pincode = ""
	if _, err := svc.SubmitVerification(context.Background(), u.ID, p); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSeed_OnlyWhenEmpty(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	seeded, err := svc.Seed(ctx, "admin-password")
	if err != nil || !seeded {
		t.Fatalf("expected first seed to run, got %v %v", seeded, err)
	}
	seeded, err = svc.Seed(ctx, "admin-password")
	if err != nil || seeded {
		t.Fatalf("expected second seed to be a no-op, got %v %v", seeded, err)
	}
	admin, err := svc.GetUser(ctx, auth.DevUserID)
	if err != nil || admin.Role != auth.RoleAdmin {
		t.Errorf("expected seeded admin, got %+v %v", admin, err)
	}
}

func TestPatients_ClinicalLists(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	p, err := svc.CreatePatient(ctx, "doc-1", Patient{FullName: " Asha Kumar ", Gender: "Female", Phone: "9876500000"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.FullName != "Asha Kumar" || p.DoctorID != "doc-1" || len(p.ID) < 5 || p.ID[:4] != "PAT-" {
		t.Fatalf("unexpected patient: %+v", p)
	}

	svc.AppendClinical(ctx, p.ID, ListAllergies, "Penicillin")
	svc.AppendClinical(ctx, p.ID, ListAllergies, "Sulfa")
	if _, err := svc.AppendClinical(ctx, p.ID, ListAllergies, "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected blank allergy to be rejected, got %v", err)
	}

	got, err := svc.RemoveClinical(ctx, p.ID, ListAllergies, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(got.Allergies) != 1 || got.Allergies[0] != "Sulfa" {
		t.Errorf("unexpected allergies: %v", got.Allergies)
	}
	if _, err := svc.RemoveClinical(ctx, p.ID, ListConditions, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected out-of-range removal to fail, got %v", err)
	}
}

func TestPatients_ListSearch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	svc.CreatePatient(ctx, "doc-1", Patient{FullName: "Asha Kumar", Gender: "Female", Phone: "9876500000"})
	svc.CreatePatient(ctx, "doc-1", Patient{FullName: "Ravi Shah", Gender: "Male", Phone: "9123400000"})
	svc.CreatePatient(ctx, "doc-2", Patient{FullName: "Asha Patel", Gender: "Female", Phone: "9000000000"})

	got, _ := svc.ListPatients(ctx, "doc-1", "asha")
	if len(got) != 1 || got[0].FullName != "Asha Kumar" {
		t.Errorf("expected name search scoped to doctor, got %+v", got)
	}
	got, _ = svc.ListPatients(ctx, "doc-1", "91234")
	if len(got) != 1 || got[0].FullName != "Ravi Shah" {
		t.Errorf("expected phone search, got %+v", got)
	}
}

func TestUpdatePatient_KeepsOwner(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, _ := svc.CreatePatient(ctx, "doc-1", Patient{FullName: "Asha Kumar", Gender: "Female"})

	updated, err := svc.UpdatePatient(ctx, Patient{ID: p.ID, FullName: "Asha K", Gender: "Female", DoctorID: "doc-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.DoctorID != "doc-1" || !updated.RegisteredAt.Equal(p.RegisteredAt) {
		t.Errorf("expected owner and registration time kept, got %+v", updated)
	}
	if _, err := svc.UpdatePatient(ctx, Patient{ID: "PAT-missing", FullName: "X", Gender: "Male"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}
