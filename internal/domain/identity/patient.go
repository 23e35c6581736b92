package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// Clinical list kinds a patient record carries.
const (
	ListAllergies  = "allergies"
	ListConditions = "conditions"
)

// NewPatientID returns an id in the registry's PAT- format.
func NewPatientID() string {
	return "PAT-" + uuid.NewString()
}

func (s *Service) CreatePatient(ctx context.Context, doctorID string, p Patient) (Patient, error) {
	if err := validatePatient(&p); err != nil {
		return Patient{}, err
	}
	p.ID = NewPatientID()
	p.DoctorID = doctorID
	p.RegisteredAt = s.now()
	p.Allergies = cleanList(p.Allergies)
	p.ChronicConditions = cleanList(p.ChronicConditions)

	err := s.writer.Do(ctx, func(unit *store.Unit) error {
		patients, err := Patients.Load(ctx, unit)
		if err != nil {
			return err
		}
		return Patients.Stage(unit, append(patients, p))
	})
	if err != nil {
		return Patient{}, err
	}
	return p, nil
}

// UpdatePatient replaces the editable demographic fields. Ownership, id and
// registration time are kept.
func (s *Service) UpdatePatient(ctx context.Context, p Patient) (Patient, error) {
	if err := validatePatient(&p); err != nil {
		return Patient{}, err
	}
	var updated Patient
	err := s.mutatePatient(ctx, p.ID, func(cur *Patient) error {
		p.DoctorID = cur.DoctorID
		p.RegisteredAt = cur.RegisteredAt
		p.Allergies = cleanList(p.Allergies)
		p.ChronicConditions = cleanList(p.ChronicConditions)
		*cur = p
		updated = p
		return nil
	})
	return updated, err
}

// AppendClinical adds a trimmed, non-empty value to the named list.
func (s *Service) AppendClinical(ctx context.Context, patientID, list, value string) (Patient, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Patient{}, apperr.Validation("value is required")
	}
	var updated Patient
	err := s.mutatePatient(ctx, patientID, func(p *Patient) error {
		target, err := clinicalList(p, list)
		if err != nil {
			return err
		}
		*target = append(*target, value)
		updated = *p
		return nil
	})
	return updated, err
}

// RemoveClinical drops the entry at index from the named list.
func (s *Service) RemoveClinical(ctx context.Context, patientID, list string, index int) (Patient, error) {
	var updated Patient
	err := s.mutatePatient(ctx, patientID, func(p *Patient) error {
		target, err := clinicalList(p, list)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(*target) {
			return apperr.Validation("index %d out of range", index)
		}
		*target = append((*target)[:index:index], (*target)[index+1:]...)
		updated = *p
		return nil
	})
	return updated, err
}

func (s *Service) GetPatient(ctx context.Context, id string) (Patient, error) {
	patients, err := Patients.All(ctx, s.docs)
	if err != nil {
		return Patient{}, err
	}
	if i := indexPatient(patients, id); i >= 0 {
		return patients[i], nil
	}
	return Patient{}, apperr.NotFound("patient", id)
}

// ListPatients returns a doctor's patients, optionally filtered by a name or
// phone substring. An empty doctorID lists every patient.
func (s *Service) ListPatients(ctx context.Context, doctorID, search string) ([]Patient, error) {
	patients, err := Patients.All(ctx, s.docs)
	if err != nil {
		return nil, err
	}
	search = strings.TrimSpace(search)
	needle := strings.ToLower(search)
	out := make([]Patient, 0, len(patients))
	for _, p := range patients {
		if doctorID != "" && p.DoctorID != doctorID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.FullName), needle) && !strings.Contains(p.Phone, search) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FindPatient loads a patient inside unit.
func FindPatient(ctx context.Context, unit *store.Unit, id string) (Patient, error) {
	patients, err := Patients.Load(ctx, unit)
	if err != nil {
		return Patient{}, err
	}
	if i := indexPatient(patients, id); i >= 0 {
		return patients[i], nil
	}
	return Patient{}, apperr.NotFound("patient", id)
}

// AddPatient stages a new patient record inside unit.
func AddPatient(ctx context.Context, unit *store.Unit, p Patient) error {
	if err := validatePatient(&p); err != nil {
		return err
	}
	patients, err := Patients.Load(ctx, unit)
	if err != nil {
		return err
	}
	if p.Allergies == nil {
		p.Allergies = []string{}
	}
	if p.ChronicConditions == nil {
		p.ChronicConditions = []string{}
	}
	return Patients.Stage(unit, append(patients, p))
}

func (s *Service) mutatePatient(ctx context.Context, id string, fn func(p *Patient) error) error {
	return s.writer.Do(ctx, func(unit *store.Unit) error {
		patients, err := Patients.Load(ctx, unit)
		if err != nil {
			return err
		}
		i := indexPatient(patients, id)
		if i < 0 {
			return apperr.NotFound("patient", id)
		}
		if err := fn(&patients[i]); err != nil {
			return err
		}
		return Patients.Stage(unit, patients)
	})
}

func clinicalList(p *Patient, list string) (*[]string, error) {
	switch list {
	case ListAllergies:
		return &p.Allergies, nil
	case ListConditions:
		return &p.ChronicConditions, nil
	default:
		return nil, apperr.Validation("unknown list %q", list)
	}
}

func validatePatient(p *Patient) error {
	p.FullName = strings.TrimSpace(p.FullName)
	if p.FullName == "" {
		return apperr.Validation("fullName is required")
	}
	if p.Gender == "" {
		return apperr.Validation("gender is required")
	}
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func indexPatient(patients []Patient, id string) int {
	for i := range patients {
		if patients[i].ID == id {
			return i
		}
	}
	return -1
}
