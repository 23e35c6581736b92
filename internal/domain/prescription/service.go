// Package prescription implements the e-Rx workflow. A prescription is
// created ISSUED for one pharmacy and ends in exactly one terminal state:
// DISPENSED, REJECTED or REJECTED_STOCK. Terminal prescriptions never change
// status again, so a repeated dispense fails instead of taking stock twice.
package prescription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/store"
)

// Allocator takes dispensed medicines out of a pharmacy's stock inside the
// dispense unit of work and reports the names it could not supply.
type Allocator interface {
	Allocate(ctx context.Context, u *store.Unit, pharmacyID string, names []string) ([]string, error)
}

type Service struct {
	docs   store.DocumentStore
	writer *store.Writer
	audit  *auditlog.Service
	alloc  Allocator
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(docs store.DocumentStore, writer *store.Writer, audit *auditlog.Service, logger zerolog.Logger) *Service {
	return &Service{
		docs:   docs,
		writer: writer,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetAllocator enables stock decrement on dispense. Without one, dispensing
// only records the transition and reports every medicine as unavailable.
func (s *Service) SetAllocator(a Allocator) {
	s.alloc = a
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create issues a prescription from a verified doctor to a verified pharmacy.
func (s *Service) Create(ctx context.Context, doctorID string, req CreateRequest) (Prescription, error) {
	if err := req.Patient.validate(); err != nil {
		return Prescription{}, err
	}
	if err := validateMedicines(req.Medicines); err != nil {
		return Prescription{}, err
	}
	if req.PharmacyID == "" {
		return Prescription{}, apperr.Validation("pharmacyId is required")
	}

	var rx Prescription
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		doctor, err := identity.VerifiedUser(ctx, u, doctorID, auth.RoleDoctor)
		if err != nil {
			return err
		}
		pharmacy, err := identity.VerifiedUser(ctx, u, req.PharmacyID, auth.RolePharmacy)
		if err != nil {
			return err
		}
		details := req.Patient
		if req.PatientID != "" {
			p, err := identity.FindPatient(ctx, u, req.PatientID)
			if err != nil {
				return err
			}
			details.Allergies = append([]string(nil), p.Allergies...)
		}

		list, err := prescriptions.Load(ctx, u)
		if err != nil {
			return err
		}
		seq, err := u.NextSequence(ctx, store.Prescriptions)
		if err != nil {
			return err
		}
		rx = Prescription{
			ID:                    fmt.Sprintf("%09d", seq),
			DoctorID:              doctor.ID,
			DoctorName:            doctor.Name,
			DoctorDetails:         DoctorDetailsFor(doctor),
			PatientID:             req.PatientID,
			PatientDetails:        details,
			Diagnosis:             strings.TrimSpace(req.Diagnosis),
			Medicines:             req.Medicines,
			Advice:                strings.TrimSpace(req.Advice),
			Date:                  s.now(),
			Status:                StatusIssued,
			PharmacyID:            pharmacy.ID,
			PharmacyName:          pharmacy.Name,
			DigitalSignatureToken: "SIG-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16]),
		}
		return prescriptions.Stage(u, append(list, rx))
	})
	if err != nil {
		return Prescription{}, err
	}
	s.audit.Log(ctx, doctorID, auditlog.ActionRxCreated,
		fmt.Sprintf("Prescription %s issued for %s to %s", rx.ID, rx.PatientDetails.Name, rx.PharmacyName))
	return rx, nil
}

// Dispense closes an ISSUED prescription as DISPENSED and takes one unit of
// each medicine from the pharmacy's stock in the same commit. scope is the
// acting pharmacy, or empty for an administrator.
func (s *Service) Dispense(ctx context.Context, actorID, scope, rxID, patientID string) (DispenseResult, error) {
	var res DispenseResult
	err := s.transition(ctx, actorID, scope, rxID, StatusDispensed, func(u *store.Unit, rx *Prescription) error {
		if patientID != "" {
			if _, err := identity.FindPatient(ctx, u, patientID); err != nil {
				return err
			}
			rx.PatientID = patientID
		}
		names := rx.medicineNames()
		unavailable := names
		if s.alloc != nil {
			var err error
			if unavailable, err = s.alloc.Allocate(ctx, u, rx.PharmacyID, names); err != nil {
				return err
			}
		}
		rx.Unavailable = unavailable
		res.Unavailable = unavailable
		return nil
	}, &res.Prescription)
	if err != nil {
		return DispenseResult{}, err
	}
	if res.Unavailable == nil {
		res.Unavailable = []string{}
	}

	details := fmt.Sprintf("Prescription %s dispensed by %s", rxID, res.Prescription.PharmacyName)
	if len(res.Unavailable) > 0 {
		details += "; unavailable: " + strings.Join(res.Unavailable, ", ")
	}
	s.audit.Log(ctx, actorID, auditlog.ActionRxDispensed, details)
	return res, nil
}

// Reject closes an ISSUED prescription without touching stock.
func (s *Service) Reject(ctx context.Context, actorID, scope, rxID, reason string) (Prescription, error) {
	reason = strings.ToUpper(strings.TrimSpace(reason))
	if reason != StatusRejected && reason != StatusRejectedStock {
		return Prescription{}, apperr.Validation("reason must be %s or %s", StatusRejected, StatusRejectedStock)
	}
	var rx Prescription
	if err := s.transition(ctx, actorID, scope, rxID, reason, nil, &rx); err != nil {
		return Prescription{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionRxRejected,
		fmt.Sprintf("Prescription %s rejected by %s (%s)", rxID, rx.PharmacyName, reason))
	return rx, nil
}

// MarkDispensed closes a prescription fulfilled through a point-of-sale
// checkout. It runs inside the checkout's unit of work and takes no stock:
// the sale's own lines are the decrement. actorID is recorded as the closer.
func (s *Service) MarkDispensed(ctx context.Context, u *store.Unit, actorID, rxID, pharmacyID string) error {
	list, err := prescriptions.Load(ctx, u)
	if err != nil {
		return err
	}
	i, err := s.closable(list, rxID, pharmacyID, StatusDispensed)
	if err != nil {
		return err
	}
	s.close(&list[i], actorID, StatusDispensed)
	return prescriptions.Stage(u, list)
}

func (s *Service) transition(ctx context.Context, actorID, scope, rxID, to string, fn func(u *store.Unit, rx *Prescription) error, out *Prescription) error {
	return s.writer.Do(ctx, func(u *store.Unit) error {
		list, err := prescriptions.Load(ctx, u)
		if err != nil {
			return err
		}
		i, err := s.closable(list, rxID, scope, to)
		if err != nil {
			return err
		}
		rx := &list[i]
		if fn != nil {
			if err := fn(u, rx); err != nil {
				return err
			}
		}
		s.close(rx, actorID, to)
		if err := prescriptions.Stage(u, list); err != nil {
			return err
		}
		*out = *rx
		return nil
	})
}

// closable finds rxID and checks it may move to status `to` on behalf of
// scope. A pharmacy only sees prescriptions addressed to it.
func (s *Service) closable(list []Prescription, rxID, scope, to string) (int, error) {
	i := indexRx(list, rxID)
	if i < 0 || (scope != "" && list[i].PharmacyID != scope) {
		return -1, apperr.NotFound("prescription", rxID)
	}
	if list[i].Status != StatusIssued {
		return -1, apperr.Transition(list[i].Status, to)
	}
	return i, nil
}

func (s *Service) close(rx *Prescription, actorID, status string) {
	now := s.now()
	rx.Status = status
	rx.ClosedAt = &now
	rx.ClosedBy = actorID
}

// -- Queries --

func (s *Service) Get(ctx context.Context, id string) (Prescription, error) {
	list, err := prescriptions.All(ctx, s.docs)
	if err != nil {
		return Prescription{}, err
	}
	if i := indexRx(list, id); i >= 0 {
		return list[i], nil
	}
	return Prescription{}, apperr.NotFound("prescription", id)
}

// Queue returns the pharmacy's ISSUED prescriptions, oldest first.
func (s *Service) Queue(ctx context.Context, pharmacyID string) ([]Prescription, error) {
	out, err := s.filter(ctx, func(rx Prescription) bool {
		return rx.Status == StatusIssued && rx.PharmacyID == pharmacyID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// History returns every prescription addressed to the pharmacy, newest
// first, optionally filtered by id, patient name or doctor name.
func (s *Service) History(ctx context.Context, pharmacyID, search string) ([]Prescription, error) {
	return s.newestFirst(ctx, func(rx Prescription) bool {
		return rx.PharmacyID == pharmacyID && matchesSearch(rx, search)
	})
}

// ForDoctor lists a doctor's prescriptions newest first. An empty doctorID
// lists all of them.
func (s *Service) ForDoctor(ctx context.Context, doctorID, search string) ([]Prescription, error) {
	return s.newestFirst(ctx, func(rx Prescription) bool {
		return (doctorID == "" || rx.DoctorID == doctorID) && matchesSearch(rx, search)
	})
}

// ForPatient is the prescription history of a registered patient.
func (s *Service) ForPatient(ctx context.Context, patientID string) ([]Prescription, error) {
	return s.newestFirst(ctx, func(rx Prescription) bool { return rx.PatientID == patientID })
}

func (s *Service) newestFirst(ctx context.Context, keep func(Prescription) bool) ([]Prescription, error) {
	out, err := s.filter(ctx, keep)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (s *Service) filter(ctx context.Context, keep func(Prescription) bool) ([]Prescription, error) {
	list, err := prescriptions.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	out := make([]Prescription, 0, len(list))
	for _, rx := range list {
		if keep(rx) {
			out = append(out, rx)
		}
	}
	return out, nil
}

func matchesSearch(rx Prescription, search string) bool {
	q := strings.ToLower(strings.TrimSpace(search))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(rx.ID), q) ||
		strings.Contains(strings.ToLower(rx.PatientDetails.Name), q) ||
		strings.Contains(strings.ToLower(rx.DoctorName), q)
}

func indexRx(list []Prescription, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
