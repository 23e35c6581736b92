package prescription

import (
	"context"
	"strings"
)

// DocumentLine is a medicine with its frequency spelled out.
type DocumentLine struct {
	Medicine
	FrequencyText string `json:"frequencyText"`
}

// Document is the print-ready form of a prescription.
type Document struct {
	ID                    string         `json:"id"`
	Date                  string         `json:"date"`
	Status                string         `json:"status"`
	Doctor                DoctorDetails  `json:"doctor"`
	Patient               PatientDetails `json:"patient"`
	Diagnosis             string         `json:"diagnosis"`
	Lines                 []DocumentLine `json:"lines"`
	Advice                string         `json:"advice,omitempty"`
	PharmacyName          string         `json:"pharmacyName"`
	DigitalSignatureToken string         `json:"digitalSignatureToken"`
}

var frequencies = map[string]string{
	"OD":    "Once daily (Morning)",
	"1-0-0": "Once daily (Morning)",
	"0-1-0": "Once daily (Afternoon)",
	"HS":    "Once daily (Night)",
	"0-0-1": "Once daily (Night)",
	"BD":    "Twice daily",
	"BID":   "Twice daily",
	"1-0-1": "Twice daily",
	"TDS":   "Thrice daily",
	"TID":   "Thrice daily",
	"1-1-1": "Thrice daily",
}

// DecodeFrequency spells out a dosing code. Unknown codes are returned as given.
func DecodeFrequency(code string) string {
	if text, ok := frequencies[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return text
	}
	return code
}

// NewDocument renders rx for printing.
func NewDocument(rx Prescription) Document {
	lines := make([]DocumentLine, len(rx.Medicines))
	for i, m := range rx.Medicines {
		lines[i] = DocumentLine{Medicine: m, FrequencyText: DecodeFrequency(m.Frequency)}
	}
	diagnosis := rx.Diagnosis
	if diagnosis == "" {
		diagnosis = "No diagnosis recorded."
	}
	return Document{
		ID:                    rx.ID,
		Date:                  rx.Date.Format("02 Jan 2006"),
		Status:                rx.Status,
		Doctor:                rx.DoctorDetails,
		Patient:               rx.PatientDetails,
		Diagnosis:             diagnosis,
		Lines:                 lines,
		Advice:                rx.Advice,
		PharmacyName:          rx.PharmacyName,
		DigitalSignatureToken: rx.DigitalSignatureToken,
	}
}

func (s *Service) Document(ctx context.Context, rxID string) (Document, error) {
	rx, err := s.Get(ctx, rxID)
	if err != nil {
		return Document{}, err
	}
	return NewDocument(rx), nil
}
