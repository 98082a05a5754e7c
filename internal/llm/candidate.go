// Appointment candidate acceptance and field validation.
//
// A candidate is the transient booking payload produced by the extraction
// call. It is only promoted to a persisted appointment when the model
// self-reports both booking intent and data sufficiency AND the name/phone
// pass local validation. The two-gate design prevents premature extraction
// from a single mention of a name or number with no booking intent.
package llm

import (
	"regexp"
	"strings"
)

// AppointmentCandidate is an accepted, validated booking payload. Optional
// fields are nil when the model reported them as null (or the literal string
// "null", which some models emit despite instructions).
type AppointmentCandidate struct {
	PatientName   string
	Phone         string
	ServiceType   *string
	PreferredTime *string
	Notes         *string
}

// extractionResult mirrors the JSON object the extraction prompt demands.
// String fields arrive either as real values, JSON null, or the literal
// string "null"; optionalField normalizes the latter two to absence.
type extractionResult struct {
	WantsAppointment bool    `json:"wantsAppointment"`
	HasEnoughInfo    bool    `json:"hasEnoughInfo"`
	PatientName      *string `json:"patientName"`
	Phone            *string `json:"phone"`
	PreferredTime    *string `json:"preferredTime"`
	ServiceType      *string `json:"serviceType"`
	Notes            *string `json:"notes"`
}

// accept applies the acceptance policy and returns the promoted candidate,
// or nil when any gate fails.
func (r *extractionResult) accept() *AppointmentCandidate {
	if !r.WantsAppointment || !r.HasEnoughInfo {
		return nil
	}
	name := requiredField(r.PatientName)
	phone := requiredField(r.Phone)
	if name == "" || phone == "" {
		return nil
	}
	if !IsValidName(name) || !IsValidPhone(phone) {
		return nil
	}
	return &AppointmentCandidate{
		PatientName:   name,
		Phone:         phone,
		ServiceType:   optionalField(r.ServiceType),
		PreferredTime: optionalField(r.PreferredTime),
		Notes:         optionalField(r.Notes),
	}
}

// requiredField trims a mandatory string field, treating JSON null and the
// literal "null" as missing.
func requiredField(v *string) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(*v)
	if s == "null" {
		return ""
	}
	return s
}

// optionalField maps JSON null and the literal "null" to true absence.
func optionalField(v *string) *string {
	s := requiredField(v)
	if s == "" {
		return nil
	}
	return &s
}

var nonDigitRE = regexp.MustCompile(`\D`)
var letterRE = regexp.MustCompile(`[a-zA-Z]`)

// IsValidPhone reports whether phone contains at least 10 digits once all
// formatting characters are stripped.
func IsValidPhone(phone string) bool {
	return len(nonDigitRE.ReplaceAllString(phone, "")) >= 10
}

// IsValidName reports whether name is at least 2 characters and contains at
// least one letter.
func IsValidName(name string) bool {
	return len(strings.TrimSpace(name)) >= 2 && letterRE.MatchString(name)
}
