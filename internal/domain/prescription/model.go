package prescription

import (
	"strings"
	"time"

	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/store"
)

// Prescription statuses. ISSUED is the only non-terminal state.
const (
	StatusIssued        = "ISSUED"
	StatusDispensed     = "DISPENSED"
	StatusRejected      = "REJECTED"
	StatusRejectedStock = "REJECTED_STOCK"
)

var (
	prescriptions = store.NewCollection[Prescription](store.Prescriptions)
	templates     = store.NewCollection[Template](store.RxTemplates)
)

type Medicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// DoctorDetails is the prescriber as printed on the prescription. Only Name
// is required.
type DoctorDetails struct {
	Name               string `json:"name"`
	Qualifications     string `json:"qualifications,omitempty"`
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	NMRUID             string `json:"nmrUid,omitempty"`
	StateCouncil       string `json:"stateCouncil,omitempty"`
	Specialty          string `json:"specialty,omitempty"`
	ClinicName         string `json:"clinicName,omitempty"`
	ClinicAddress      string `json:"clinicAddress,omitempty"`
	City               string `json:"city,omitempty"`
	State              string `json:"state,omitempty"`
	Pincode            string `json:"pincode,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
}

// Defaults for doctors who have not submitted a profile.
const (
	defaultQualifications = "Registered Medical Practitioner"
	defaultRegistration   = "N/A"
	defaultClinic         = "DevXWorld Network"
)

// DoctorDetailsFor snapshots u for a new prescription.
func DoctorDetailsFor(u identity.User) DoctorDetails {
	p := u.DoctorProfile
	if p == nil {
		return DoctorDetails{
			Name:               u.Name,
			Qualifications:     defaultQualifications,
			RegistrationNumber: defaultRegistration,
			ClinicName:         defaultClinic,
			Email:              u.Email,
			Phone:              u.Phone,
		}
	}
	d := DoctorDetails{
		Name:               u.Name,
		Qualifications:     p.Qualifications,
		RegistrationNumber: p.RegistrationNumber,
		NMRUID:             p.NMRUID,
		StateCouncil:       p.StateCouncil,
		Specialty:          p.Specialty,
		ClinicName:         p.ClinicName,
		ClinicAddress:      p.ClinicAddress,
		City:               p.City,
		State:              p.State,
		Pincode:            p.Pincode,
		Phone:              p.Phone,
		Email:              u.Email,
	}
	if d.Qualifications == "" {
		d.Qualifications = p.MedicalDegree
	}
	return d
}

// PatientDetails is the patient as written on the prescription. Name, Age
// and Gender are required.
type PatientDetails struct {
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender"`
	Address   string   `json:"address,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Allergies []string `json:"allergies,omitempty"`
}

func (p *PatientDetails) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Gender = strings.TrimSpace(p.Gender)
	switch {
	case p.Name == "":
		return apperr.Validation("patient name is required")
	case p.Gender == "":
		return apperr.Validation("patient gender is required")
	case p.Age < 0 || p.Age > 150:
		return apperr.Validation("patient age must be between 0 and 150")
	}
	return nil
}

type Prescription struct {
	ID                    string         `json:"id"`
	DoctorID              string         `json:"doctorId"`
	DoctorName            string         `json:"doctorName"`
	DoctorDetails         DoctorDetails  `json:"doctorDetails"`
	PatientID             string         `json:"patientId,omitempty"`
	PatientDetails        PatientDetails `json:"patientDetails"`
	Diagnosis             string         `json:"diagnosis,omitempty"`
	Medicines             []Medicine     `json:"medicines"`
	Advice                string         `json:"advice,omitempty"`
	Date                  time.Time      `json:"date"`
	Status                string         `json:"status"`
	PharmacyID            string         `json:"pharmacyId"`
	PharmacyName          string         `json:"pharmacyName"`
	DigitalSignatureToken string         `json:"digitalSignatureToken"`
	ClosedAt              *time.Time     `json:"closedAt,omitempty"`
	ClosedBy              string         `json:"closedBy,omitempty"`
	// Unavailable lists medicines that had no stock when dispensed.
	Unavailable []string `json:"unavailable,omitempty"`
}

func (rx Prescription) medicineNames() []string {
	names := make([]string, len(rx.Medicines))
	for i, m := range rx.Medicines {
		names[i] = m.Name
	}
	return names
}

// CreateRequest is what a doctor submits. PatientID optionally links a
// registered patient whose allergies are copied onto the snapshot.
type CreateRequest struct {
	PatientID  string         `json:"patientId,omitempty"`
	Patient    PatientDetails `json:"patient"`
	Diagnosis  string         `json:"diagnosis,omitempty"`
	Medicines  []Medicine     `json:"medicines"`
	Advice     string         `json:"advice,omitempty"`
	PharmacyID string         `json:"pharmacyId"`
}

func validateMedicines(meds []Medicine) error {
	if len(meds) == 0 {
		return apperr.Validation("at least one medicine is required")
	}
	for i := range meds {
		meds[i].Name = strings.TrimSpace(meds[i].Name)
		if meds[i].Name == "" {
			return apperr.Validation("medicine %d: name is required", i+1)
		}
		meds[i].Frequency = strings.TrimSpace(meds[i].Frequency)
	}
	return nil
}

// DispenseResult is a dispensed prescription and the medicines the pharmacy
// could not take from stock.
type DispenseResult struct {
	Prescription Prescription `json:"prescription"`
	Unavailable  []string     `json:"unavailable"`
}

// Template is a doctor's reusable prescription body.
type Template struct {
	ID        string     `json:"id"`
	DoctorID  string     `json:"doctorId"`
	Name      string     `json:"name"`
	Diagnosis string     `json:"diagnosis,omitempty"`
	Medicines []Medicine `json:"medicines"`
	Advice    string     `json:"advice,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}
