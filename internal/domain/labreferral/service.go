// Package labreferral issues lab test referrals and accepts the lab's report
// through a public upload link. The link is guarded by a 4-digit access code
// printed on the requisition; the code is short and guessable, so the public
// routes are rate limited.
package labreferral

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/store"
)

const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
)

// publicActor is recorded as the actor of uploads made through the public link.
const publicActor = "public-lab-link"

var referrals = store.NewCollection[Referral](store.LabReferrals)

type Referral struct {
	ID          string     `json:"id"`
	DoctorID    string     `json:"doctorId"`
	DoctorName  string     `json:"doctorName"`
	PatientID   string     `json:"patientId"`
	PatientName string     `json:"patientName"`
	Tests       []string   `json:"tests"`
	LabName     string     `json:"labName,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	AccessCode  string     `json:"accessCode"`
	Status      string     `json:"status"`
	ReportURL   string     `json:"reportUrl,omitempty"`
	Date        time.Time  `json:"date"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Public is what the upload page may show before the code is entered.
type Public struct {
	ID          string    `json:"id"`
	DoctorName  string    `json:"doctorName"`
	PatientName string    `json:"patientName"`
	Tests       []string  `json:"tests"`
	LabName     string    `json:"labName,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
	Date        time.Time `json:"date"`
}

func (r Referral) Public() Public {
	return Public{
		ID:          r.ID,
		DoctorName:  r.DoctorName,
		PatientName: r.PatientName,
		Tests:       r.Tests,
		LabName:     r.LabName,
		Notes:       r.Notes,
		Status:      r.Status,
		Date:        r.Date,
	}
}

type CreateRequest struct {
	PatientID string   `json:"patientId"`
	Tests     []string `json:"tests"`
	LabName   string   `json:"labName,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type Service struct {
	docs   store.DocumentStore
	writer *store.Writer
	audit  *auditlog.Service
	now    func() time.Time
	code   func() (string, error)
}

func NewService(docs store.DocumentStore, writer *store.Writer, audit *auditlog.Service) *Service {
	return &Service{
		docs:   docs,
		writer: writer,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
		code:   randomCode,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

// Create refers one of the doctor's patients for the listed tests.
func (s *Service) Create(ctx context.Context, doctorID string, req CreateRequest) (Referral, error) {
	tests := make([]string, 0, len(req.Tests))
	for _, t := range req.Tests {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	if len(tests) == 0 {
		return Referral{}, apperr.Validation("at least one test is required")
	}
	code, err := s.code()
	if err != nil {
		return Referral{}, err
	}

	var ref Referral
	err = s.writer.Do(ctx, func(u *store.Unit) error {
		doctor, err := identity.VerifiedUser(ctx, u, doctorID, auth.RoleDoctor)
		if err != nil {
			return err
		}
		patient, err := identity.FindPatient(ctx, u, req.PatientID)
		if err != nil {
			return err
		}
		if patient.DoctorID != doctorID {
			return apperr.Forbidden("patient %s belongs to another doctor", patient.ID)
		}
		list, err := referrals.Load(ctx, u)
		if err != nil {
			return err
		}
		seq, err := u.NextSequence(ctx, store.LabReferrals)
		if err != nil {
			return err
		}
		ref = Referral{
			ID:          fmt.Sprintf("LAB-%06d", seq),
			DoctorID:    doctor.ID,
			DoctorName:  doctor.Name,
			PatientID:   patient.ID,
			PatientName: patient.FullName,
			Tests:       tests,
			LabName:     strings.TrimSpace(req.LabName),
			Notes:       strings.TrimSpace(req.Notes),
			AccessCode:  code,
			Status:      StatusPending,
			Date:        s.now(),
		}
		return referrals.Stage(u, append(list, ref))
	})
	if err != nil {
		return Referral{}, err
	}
	return ref, nil
}

func (s *Service) Get(ctx context.Context, id string) (Referral, error) {
	list, err := referrals.All(ctx, s.docs)
	if err != nil {
		return Referral{}, err
	}
	if i := indexReferral(list, id); i >= 0 {
		return list[i], nil
	}
	return Referral{}, apperr.NotFound("lab referral", id)
}

// List returns a doctor's referrals newest first, optionally for one patient.
func (s *Service) List(ctx context.Context, doctorID, patientID string) ([]Referral, error) {
	all, err := referrals.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]Referral, 0, len(all))
	for _, r := range all {
		if r.DoctorID != doctorID || (patientID != "" && r.PatientID != patientID) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// VerifyCode reports whether code opens the referral's upload link.
func (s *Service) VerifyCode(ctx context.Context, id, code string) (bool, error) {
	ref, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return codeMatches(ref, code), nil
}

// SubmitReport attaches the uploaded report and completes the referral.
func (s *Service) SubmitReport(ctx context.Context, id, code, fileURL string) (Referral, error) {
	if strings.TrimSpace(fileURL) == "" {
		return Referral{}, apperr.Validation("report file URL is required")
	}
	var ref Referral
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		list, err := referrals.Load(ctx, u)
		if err != nil {
			return err
		}
		i := indexReferral(list, id)
		if i < 0 {
			return apperr.NotFound("lab referral", id)
		}
		if !codeMatches(list[i], code) {
			return apperr.Validation("invalid access code")
		}
		if list[i].Status == StatusCompleted {
			return apperr.State("a report has already been submitted for %s", id)
		}
		now := s.now()
		list[i].Status = StatusCompleted
		list[i].ReportURL = fileURL
		list[i].CompletedAt = &now
		ref = list[i]
		return referrals.Stage(u, list)
	})
	if err != nil {
		return Referral{}, err
	}
	s.audit.Log(ctx, publicActor, auditlog.ActionLabReport,
		fmt.Sprintf("Lab report for %s (%s) uploaded for referral %s", ref.PatientName, strings.Join(ref.Tests, ", "), ref.ID))
	return ref, nil
}

func codeMatches(ref Referral, code string) bool {
	return subtle.ConstantTimeCompare([]byte(ref.AccessCode), []byte(strings.TrimSpace(code))) == 1
}

func indexReferral(list []Referral, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
