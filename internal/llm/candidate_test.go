package llm

import (
	"strings"
	"testing"
)

func TestIsValidPhone(t *testing.T) {
	valid := []string{
		"+1234567890",
		"(123) 456-7890",
		"123-456-7890",
		"+971 50 123 4567",
		"12345678901234",
	}
	for _, p := range valid {
		if !IsValidPhone(p) {
			t.Fatalf("expected %q to be valid", p)
		}
	}

	invalid := []string{
		"",
		"123456789", // nine digits
		"call me",
		"+12 34",
	}
	for _, p := range invalid {
		if IsValidPhone(p) {
			t.Fatalf("expected %q to be invalid", p)
		}
	}
}

func TestIsValidName(t *testing.T) {
	valid := []string{"Jo", "Jane Doe", "  Anna  ", "O'Neil", "x1"}
	for _, n := range valid {
		if !IsValidName(n) {
			t.Fatalf("expected %q to be valid", n)
		}
	}

	invalid := []string{"", "J", "42", "  ", "--"}
	for _, n := range invalid {
		if IsValidName(n) {
			t.Fatalf("expected %q to be invalid", n)
		}
	}
}

func TestAccept_OptionalFieldsNormalized(t *testing.T) {
	name := "Jane Doe"
	phone := "5551234567"
	svc := "  botox  "
	lit := "null"
	empty := "   "

	r := &extractionResult{
		WantsAppointment: true,
		HasEnoughInfo:    true,
		PatientName:      &name,
		Phone:            &phone,
		ServiceType:      &svc,
		PreferredTime:    &lit,
		Notes:            &empty,
	}
	cand := r.accept()
	if cand == nil {
		t.Fatalf("expected acceptance")
	}
	if cand.ServiceType == nil || *cand.ServiceType != "botox" {
		t.Fatalf("service type not trimmed: %+v", cand.ServiceType)
	}
	if cand.PreferredTime != nil {
		t.Fatalf(`literal "null" must become absence`)
	}
	if cand.Notes != nil {
		t.Fatalf("whitespace-only value must become absence")
	}
}

func TestAccept_RequiresNameAndPhone(t *testing.T) {
	phone := "5551234567"
	r := &extractionResult{
		WantsAppointment: true,
		HasEnoughInfo:    true,
		PatientName:      nil,
		Phone:            &phone,
	}
	if cand := r.accept(); cand != nil {
		t.Fatalf("nil name must be rejected, got %+v", cand)
	}
}

func TestTranscript_SpeakerLabels(t *testing.T) {
	ctx := testCtx(
		Turn{Role: "USER", Content: "I want lip fillers"},
		Turn{Role: "ASSISTANT", Content: "Happy to help"},
	)
	got := transcript(ctx)
	want := "Patient: I want lip fillers\n\nDoctor: Happy to help"
	if got != want {
		t.Fatalf("transcript mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestBuildExtractionPrompt_EmbedsInputs(t *testing.T) {
	p := buildExtractionPrompt("Patient: hello", "Doctor reply text")
	if !strings.Contains(p, "Patient: hello") || !strings.Contains(p, "Doctor reply text") {
		t.Fatalf("prompt does not embed inputs:\n%s", p)
	}
	if !strings.Contains(p, `"hasEnoughInfo"`) || !strings.Contains(p, "at least 10 digits") {
		t.Fatalf("prompt missing acceptance instructions:\n%s", p)
	}
}
