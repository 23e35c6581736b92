package identity

import (
	"time"

	"github.com/devxworld/erx/internal/platform/apperr"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/store"
)

// Verification statuses.
const (
	StatusPending    = "PENDING"
	StatusVerified   = "VERIFIED"
	StatusTerminated = "TERMINATED"
)

// Users and Patients are the typed handles other domains stage inside a unit of work.
var (
	Users    = store.NewCollection[User](store.Users)
	Patients = store.NewCollection[Patient](store.Patients)
)

type User struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Email               string           `json:"email"`
	PasswordHash        string           `json:"passwordHash,omitempty"`
	Role                string           `json:"role"`
	VerificationStatus  string           `json:"verificationStatus"`
	Phone               string           `json:"phone,omitempty"`
	RegistrationDate    time.Time        `json:"registrationDate"`
	ForcePasswordChange bool             `json:"forcePasswordChange,omitempty"`
	TerminatedAt        *time.Time       `json:"terminatedAt,omitempty"`
	TerminatedBy        string           `json:"terminatedBy,omitempty"`
	TerminationReason   string           `json:"terminationReason,omitempty"`
	DoctorProfile       *DoctorProfile   `json:"doctorProfile,omitempty"`
	PharmacyProfile     *PharmacyProfile `json:"pharmacyProfile,omitempty"`
}

// Public returns a copy safe to send to clients.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

func (u User) IsVerified(role string) bool {
	return u.Role == role && u.VerificationStatus == StatusVerified
}

// DoctorProfile is what a doctor submits for verification.
type DoctorProfile struct {
	MemberID           string    `json:"devxId,omitempty"`
	RegistrationNumber string    `json:"registrationNumber"`
	MedicalDegree      string    `json:"medicalDegree"`
	Qualifications     string    `json:"qualifications,omitempty"`
	Specialty          string    `json:"specialty,omitempty"`
	NMRUID             string    `json:"nmrUid,omitempty"`
	StateCouncil       string    `json:"stateCouncil"`
	ClinicName         string    `json:"clinicName"`
	ClinicAddress      string    `json:"clinicAddress"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	Pincode            string    `json:"pincode"`
	Phone              string    `json:"phone"`
	Fax                string    `json:"fax,omitempty"`
	Documents          []string  `json:"documents,omitempty"`
	SubmittedAt        time.Time `json:"submittedAt"`
}

func (p DoctorProfile) validate() error {
	required := []struct{ field, value string }{
		{"registrationNumber", p.RegistrationNumber},
		{"medicalDegree", p.MedicalDegree},
		{"stateCouncil", p.StateCouncil},
		{"clinicName", p.ClinicName},
		{"clinicAddress", p.ClinicAddress},
		{"city", p.City},
		{"state", p.State},
		{"pincode", p.Pincode},
		{"phone", p.Phone},
	}
	for _, r := range required {
		if r.value == "" {
			return apperr.Validation("%s is required", r.field)
		}
	}
	return nil
}

type PharmacyProfile struct {
	LicenseNumber string `json:"licenseNumber,omitempty"`
	GSTIN         string `json:"gstin,omitempty"`
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	Pincode       string `json:"pincode,omitempty"`
}

type Patient struct {
	ID                string    `json:"id"`
	DoctorID          string    `json:"doctorId"`
	FullName          string    `json:"fullName"`
	DateOfBirth       string    `json:"dateOfBirth"`
	Gender            string    `json:"gender"`
	Phone             string    `json:"phone"`
	Address           string    `json:"address,omitempty"`
	EmergencyContact  string    `json:"emergencyContact,omitempty"`
	BloodGroup        string    `json:"bloodGroup,omitempty"`
	Height            string    `json:"height,omitempty"`
	Weight            string    `json:"weight,omitempty"`
	Allergies         []string  `json:"allergies"`
	ChronicConditions []string  `json:"chronicConditions"`
	Notes             string    `json:"notes,omitempty"`
	RegisteredAt      time.Time `json:"registeredAt"`
}

// RegisterRequest is the self-registration payload.
type RegisterRequest struct {
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Role     string           `json:"role"`
	Phone    string           `json:"phone"`
	Pharmacy *PharmacyProfile `json:"pharmacyProfile,omitempty"`
}

func registrableRole(role string) bool {
	return role == auth.RoleDoctor || role == auth.RolePharmacy
}
