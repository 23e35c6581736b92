package prescription

import (
	"context"
	"fmt"
	"strings"

	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// Patient resolution actions. The operator always chooses one; nothing is
// linked automatically.
const (
	ActionLink   = "LINK"
	ActionCreate = "CREATE"
)

type Decision struct {
	Action    string `json:"action"`
	PatientID string `json:"patientId,omitempty"`
}

// Match returns the patients that may be the person on rx: the linked
// patient by id, and every patient whose full name equals the prescription's
// patient name ignoring case and surrounding space.
func Match(rx Prescription, patients []identity.Patient) []identity.Patient {
	name := strings.TrimSpace(rx.PatientDetails.Name)
	out := []identity.Patient{}
	for _, p := range patients {
		byID := rx.PatientID != "" && p.ID == rx.PatientID
		byName := name != "" && strings.EqualFold(strings.TrimSpace(p.FullName), name)
		if byID || byName {
			out = append(out, p)
		}
	}
	return out
}

// Candidates lists possible patient records for a prescription.
func (s *Service) Candidates(ctx context.Context, scope, rxID string) ([]identity.Patient, error) {
	rx, err := s.Get(ctx, rxID)
	if err != nil {
		return nil, err
	}
	if scope != "" && rx.PharmacyID != scope {
		return nil, apperr.NotFound("prescription", rxID)
	}
	patients, err := identity.Patients.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	return Match(rx, patients), nil
}

// Resolve applies the operator's decision: link an existing patient, or
// register a new one from the prescription snapshot and link that. The
// estimated date of birth is January 1st of (current year - age).
func (s *Service) Resolve(ctx context.Context, actorID, scope, rxID string, d Decision) (Prescription, error) {
	action := strings.ToUpper(strings.TrimSpace(d.Action))
	if action != ActionLink && action != ActionCreate {
		return Prescription{}, apperr.Validation("action must be %s or %s", ActionLink, ActionCreate)
	}
	if action == ActionLink && d.PatientID == "" {
		return Prescription{}, apperr.Validation("patientId is required to link")
	}

	var rx Prescription
	err := s.writer.Do(ctx, func(u *store.Unit) error {
		list, err := prescriptions.Load(ctx, u)
		if err != nil {
			return err
		}
		i := indexRx(list, rxID)
		if i < 0 || (scope != "" && list[i].PharmacyID != scope) {
			return apperr.NotFound("prescription", rxID)
		}

		patientID := d.PatientID
		if action == ActionLink {
			if _, err := identity.FindPatient(ctx, u, patientID); err != nil {
				return err
			}
		} else {
			p := newPatientFrom(list[i], s.now().Year())
			p.RegisteredAt = s.now()
			if err := identity.AddPatient(ctx, u, p); err != nil {
				return err
			}
			patientID = p.ID
		}
		list[i].PatientID = patientID
		rx = list[i]
		return prescriptions.Stage(u, list)
	})
	if err != nil {
		return Prescription{}, err
	}
	s.audit.Log(ctx, actorID, auditlog.ActionPatientLinked,
		fmt.Sprintf("Prescription %s linked to patient %s (%s)", rx.ID, rx.PatientID, action))
	return rx, nil
}

func newPatientFrom(rx Prescription, year int) identity.Patient {
	pd := rx.PatientDetails
	return identity.Patient{
		ID:          identity.NewPatientID(),
		DoctorID:    rx.DoctorID,
		FullName:    pd.Name,
		DateOfBirth: fmt.Sprintf("%04d-01-01", year-pd.Age),
		Gender:      pd.Gender,
		Phone:       pd.Phone,
		Address:     pd.Address,
		Allergies:   append([]string{}, pd.Allergies...),
	}
}
