package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/hipaa"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/llm"
)

var (
	// ErrLLMUnavailable means no completion client is configured.
	ErrLLMUnavailable = errors.New("assistant: language model not configured")
	ErrEmptyQuestion  = errors.New("assistant: question is required")
)

const (
	defaultSummary = "Please follow all instructions carefully and contact your healthcare provider with any questions."
	defaultAnswer  = "I recommend contacting your healthcare provider for this question."
	apologyAnswer  = "I'm sorry, I couldn't process your question. Please contact your healthcare provider for assistance."

	InstructionTypePersonalized = "personalized"
)

// Completer sends one chat exchange to the language model. *llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// PatientReader is the read side of the patient service used here.
type PatientReader interface {
	GetPatient(ctx context.Context, patientID string) (*patient.Patient, error)
	GetPatientRecord(ctx context.Context, patientID string, id int64) (*patient.MedicalRecord, error)
	ListMedicalRecords(ctx context.Context, patientID string) ([]*patient.MedicalRecord, error)
	ListDischargeNotes(ctx context.Context, patientID string) ([]*patient.DischargeNote, error)
	ListDischargeNotesByRecord(ctx context.Context, recordID int64) ([]*patient.DischargeNote, error)
}

// ActivityLogger records assistant usage on the patient's audit trail.
type ActivityLogger interface {
	LogInstructionGeneration(ctx context.Context, patientID, instructionType, performedBy string) error
	LogQuestionAsked(ctx context.Context, patientID, question, performedBy string) error
}

type Service struct {
	patients PatientReader
	activity ActivityLogger
	llm      Completer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService builds the assistant. completer may be nil, in which case every
// operation that needs the model reports ErrLLMUnavailable.
func NewService(patients PatientReader, activity ActivityLogger, completer Completer, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		activity: activity,
		llm:      completer,
		logger:   logger.With().Str("component", "assistant").Logger(),
		now:      time.Now,
	}
}

// Available reports whether a completion client is configured.
func (s *Service) Available() bool { return s.llm != nil }

// dischargeContext loads the patient, one of its medical records and the most
// recent discharge note written for that record.
func (s *Service) dischargeContext(ctx context.Context, patientID string, recordID int64) (*patient.Patient, *patient.MedicalRecord, *patient.DischargeNote, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, nil, nil, err
	}
	r, err := s.patients.GetPatientRecord(ctx, patientID, recordID)
	if err != nil {
		return nil, nil, nil, err
	}
	notes, err := s.patients.ListDischargeNotesByRecord(ctx, recordID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list discharge notes: %w", err)
	}
	if len(notes) == 0 {
		return nil, nil, nil, patient.ErrNoteNotFound
	}
	return p, r, notes[0], nil
}

// GenerateInstructions produces personalized discharge instructions for one
// admission. Model or decoding failures degrade to FallbackInstructions.
func (s *Service) GenerateInstructions(ctx context.Context, patientID string, recordID int64) (*Instructions, error) {
	p, r, n, err := s.dischargeContext(ctx, patientID, recordID)
	if err != nil {
		return nil, err
	}
	if s.llm == nil {
		return nil, ErrLLMUnavailable
	}

	instr := s.generate(ctx, p, r, n)
	s.logActivity(patientID, "instruction_generated",
		s.activity.LogInstructionGeneration(ctx, patientID, InstructionTypePersonalized, auth.UserIDFromContext(ctx)))
	return instr, nil
}

func (s *Service) generate(ctx context.Context, p *patient.Patient, r *patient.MedicalRecord, n *patient.DischargeNote) *Instructions {
	reply, err := s.llm.Complete(ctx, instructionsRequest(instructionContext(p, r, n, s.now())))
	if err != nil {
		s.logger.Error().Err(err).Str("patient_hash", hipaa.HashPatientID(p.PatientID)).Msg("instruction generation failed")
		return FallbackInstructions()
	}
	return s.parseInstructions(ctx, reply)
}

// parseInstructions decodes a model reply. A reply that is not a JSON object
// gets one re-prompt asking for the structured form.
func (s *Service) parseInstructions(ctx context.Context, reply string) *Instructions {
	raw := strings.TrimSpace(reply)
	if !strings.HasPrefix(raw, "{") {
		raw = s.restructure(ctx, raw)
	}

	var instr Instructions
	if err := json.Unmarshal([]byte(raw), &instr); err != nil {
		s.logger.Warn().Err(err).Msg("instructions reply not decodable, using fallback")
		return FallbackInstructions()
	}
	finalizeInstructions(&instr)
	return &instr
}

func (s *Service) restructure(ctx context.Context, text string) string {
	reply, err := s.llm.Complete(ctx, structureRequest(text))
	if err != nil {
		s.logger.Warn().Err(err).Msg("structured re-prompt failed")
		return "{}"
	}
	reply = strings.TrimSpace(reply)
	if !json.Valid([]byte(reply)) {
		return "{}"
	}
	return reply
}

func finalizeInstructions(instr *Instructions) {
	instr.MedicationSchedule = nonNil(instr.MedicationSchedule)
	instr.LifestyleRecommendations = nonNil(instr.LifestyleRecommendations)
	instr.FollowUpReminders = nonNil(instr.FollowUpReminders)
	instr.WarningSigns = nonNil(instr.WarningSigns)
	instr.ActivityGuidelines = nonNil(instr.ActivityGuidelines)
	instr.DietRecommendations = nonNil(instr.DietRecommendations)

	hasHospital := false
	for _, c := range instr.EmergencyContacts {
		if c["type"] == "hospital" {
			hasHospital = true
			break
		}
	}
	if !hasHospital {
		instr.EmergencyContacts = append(instr.EmergencyContacts, map[string]interface{}{
			"name":         "Hospital Emergency Department",
			"phone":        "911",
			"type":         "emergency",
			"when_to_call": "Life-threatening emergencies",
		})
	}
	if strings.TrimSpace(instr.Summary) == "" {
		instr.Summary = defaultSummary
	}
}

// FallbackInstructions is the generic guidance returned when the model
// cannot produce usable instructions.
func FallbackInstructions() *Instructions {
	return &Instructions{
		MedicationSchedule: []map[string]interface{}{{
			"name":         "Please consult your discharge paperwork",
			"instructions": "Take medications as prescribed by your doctor",
		}},
		LifestyleRecommendations: []string{
			"Get adequate rest and sleep",
			"Stay hydrated by drinking plenty of water",
			"Follow up with your healthcare provider as scheduled",
		},
		FollowUpReminders: []map[string]interface{}{{
			"type":      "Primary Care",
			"timeframe": "1-2 weeks",
			"purpose":   "Post-discharge check-up",
		}},
		WarningSigns: []string{
			"Severe pain that doesn't improve with medication",
			"High fever (over 101°F)",
			"Difficulty breathing",
			"Signs of infection at surgical site",
		},
		ActivityGuidelines: []string{
			"Gradually increase activity as tolerated",
			"Avoid heavy lifting until cleared by doctor",
		},
		DietRecommendations: []string{
			"Eat a balanced, nutritious diet",
			"Stay hydrated",
		},
		EmergencyContacts: []map[string]interface{}{{
			"name":  "Emergency Services",
			"phone": "911",
			"type":  "emergency",
		}},
		Summary: "Please follow all discharge instructions and contact your healthcare provider with any questions or concerns.",
	}
}

// AskQuestion answers a question about one admission's discharge
// instructions. Any model or decoding failure yields the apology answer with
// zero confidence.
func (s *Service) AskQuestion(ctx context.Context, patientID, question string, recordID int64) (*QAResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	p, r, n, err := s.dischargeContext(ctx, patientID, recordID)
	if err != nil {
		return nil, err
	}
	if s.llm == nil {
		return nil, ErrLLMUnavailable
	}

	instr := s.generate(ctx, p, r, n)
	qc := questionContext{
		Diagnosis:   r.PrimaryDiagnosis,
		Medications: nonNil(n.MedicationsAtDischarge),
		Allergies:   nonNil(p.Allergies),
	}
	resp := s.answer(ctx, question, instr, qc)
	s.logActivity(patientID, "question_asked",
		s.activity.LogQuestionAsked(ctx, patientID, hipaa.Redact(question), auth.UserIDFromContext(ctx)))
	return resp, nil
}

func (s *Service) answer(ctx context.Context, question string, instr *Instructions, qc questionContext) *QAResponse {
	apology := &QAResponse{Question: question, Answer: apologyAnswer, Confidence: 0, RelatedTopics: []string{}}

	reply, err := s.llm.Complete(ctx, questionRequest(question, instr, qc))
	if err != nil {
		s.logger.Error().Err(err).Msg("question answering failed")
		return apology
	}
	var out struct {
		Answer        *string  `json:"answer"`
		Confidence    *float64 `json:"confidence"`
		RelatedTopics []string `json:"related_topics"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &out); err != nil {
		s.logger.Warn().Err(err).Msg("answer reply not decodable")
		return apology
	}

	resp := &QAResponse{
		Question:      question,
		Answer:        defaultAnswer,
		Confidence:    0.5,
		RelatedTopics: nonNil(out.RelatedTopics),
	}
	if out.Answer != nil {
		resp.Answer = *out.Answer
	}
	if out.Confidence != nil {
		resp.Confidence = *out.Confidence
	}
	return resp
}

// AskQuestionEnhanced answers a free-form question from a de-identified view
// of the patient's chart, then screens the answer for unsafe advice.
func (s *Service) AskQuestionEnhanced(ctx context.Context, patientID, question string) (*SafeQAResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if s.llm == nil {
		return nil, ErrLLMUnavailable
	}
	records, err := s.patients.ListMedicalRecords(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	notes, err := s.patients.ListDischargeNotes(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list discharge notes: %w", err)
	}

	safeQuestion := hipaa.Redact(question)
	if hipaa.ContainsPII(question) {
		s.logger.Info().Str("patient_hash", hipaa.HashPatientID(patientID)).Msg("identifiers redacted from question")
	}
	sc := newSafeContext(p, records, notes, s.now())
	resp := s.safeAnswer(ctx, safeQuestion, sc)

	s.logActivity(patientID, "question_asked",
		s.activity.LogQuestionAsked(ctx, patientID, safeQuestion, auth.UserIDFromContext(ctx)))
	return resp, nil
}

func (s *Service) safeAnswer(ctx context.Context, question string, sc safeContext) *SafeQAResponse {
	reply, err := s.llm.Complete(ctx, safeQuestionRequest(question, sc))
	if err != nil {
		s.logger.Error().Err(err).Msg("enhanced question answering failed")
		return &SafeQAResponse{
			Question:    question,
			Answer:      "I apologize, but I'm unable to provide a response at this time. Please consult your healthcare provider for assistance with your question.",
			Confidence:  0,
			SafetyFlags: []string{"ai_service_error"},
			Sources:     []string{"Error fallback"},
			Disclaimer:  "AI service temporarily unavailable. Please contact your healthcare provider.",
		}
	}

	answer, flags := ValidateAnswer(reply)
	sources := []string{"Patient discharge instructions", "General medical education"}
	if len(sc.Records) > 0 {
		sources = append(sources, "Patient medical history")
	}
	return &SafeQAResponse{
		Question:    question,
		Answer:      answer,
		Confidence:  Confidence(answer, flags),
		SafetyFlags: flags,
		Sources:     sources,
		Disclaimer:  StandardDisclaimer,
	}
}

// UnavailableResponse is the body served with a 503 by the enhanced Q&A
// endpoint when no model is configured.
func UnavailableResponse(question string) *SafeQAResponse {
	return &SafeQAResponse{
		Question:    hipaa.Redact(question),
		Answer:      "LLM not available. Please try again later or contact your healthcare provider.",
		Confidence:  0,
		SafetyFlags: []string{"llm_unavailable"},
		Sources:     []string{"System status"},
		Disclaimer:  "AI language model is currently unavailable.",
	}
}

// QuickDischargeSummary renders a plain-text discharge summary from stored
// data. It never calls the model.
func (s *Service) QuickDischargeSummary(ctx context.Context, patientID string, recordID int64) (*QuickDischarge, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	r, err := s.patients.GetPatientRecord(ctx, patientID, recordID)
	if err != nil {
		return nil, err
	}
	return &QuickDischarge{
		PatientID:        patientID,
		MedicalRecordID:  recordID,
		DischargeSummary: quickSummaryText(p, r),
		GeneratedAt:      s.now().UTC(),
	}, nil
}

func quickSummaryText(p *patient.Patient, r *patient.MedicalRecord) string {
	const day = "2006-01-02"
	var b strings.Builder

	b.WriteString("DISCHARGE SUMMARY\n\n")
	fmt.Fprintf(&b, "Patient: %s\n", p.FullName())
	fmt.Fprintf(&b, "Patient ID: %s\n", p.PatientID)
	fmt.Fprintf(&b, "Date of Birth: %s\n", p.DateOfBirth.Format(day))
	fmt.Fprintf(&b, "Gender: %s\n\n", titleCase(p.Gender))

	discharged := "Not discharged"
	if r.DischargeDate != nil {
		discharged = r.DischargeDate.Format(day)
	}
	b.WriteString("ADMISSION INFORMATION:\n")
	fmt.Fprintf(&b, "Admission Date: %s\n", r.AdmissionDate.Format(day))
	fmt.Fprintf(&b, "Discharge Date: %s\n", discharged)
	fmt.Fprintf(&b, "Primary Diagnosis: %s\n", r.PrimaryDiagnosis)
	fmt.Fprintf(&b, "Secondary Diagnoses: %s\n\n", strings.Join(r.SecondaryDiagnoses, ", "))

	fmt.Fprintf(&b, "TREATMENT SUMMARY:\n%s\n\n", r.TreatmentSummary)
	fmt.Fprintf(&b, "PROCEDURES PERFORMED:\n%s\n\n", strings.Join(r.ProceduresPerformed, ", "))

	b.WriteString("CURRENT MEDICATIONS:\n")
	for _, m := range p.CurrentMedications {
		fmt.Fprintf(&b, "- %s %s %s\n", m.Name, m.Dosage, m.Frequency)
	}
	b.WriteString("\nALLERGIES:\n")
	if len(p.Allergies) == 0 {
		b.WriteString("No known allergies\n")
	}
	for _, a := range p.Allergies {
		fmt.Fprintf(&b, "- %s: %s (%s severity)\n", a.Allergen, a.Reaction, a.Severity)
	}

	b.WriteString(`
DISCHARGE INSTRUCTIONS:
1. Continue prescribed medications as directed
2. Follow up with primary care physician within 1-2 weeks
3. Return to emergency department if symptoms worsen
4. Maintain regular diet and increase fluid intake
5. Light activity for the first week, gradually increase as tolerated

EMERGENCY CONTACT:
`)
	if ec := p.EmergencyContact; ec != nil {
		fmt.Fprintf(&b, "%s\n%s\n", ec.Name, ec.Phone)
	} else {
		b.WriteString("Not provided\n")
	}
	return strings.TrimSpace(b.String())
}

// SafeSummary renders a de-identified overview of the patient: age group,
// gender, history, medications, allergies and the latest diagnosis.
func (s *Service) SafeSummary(ctx context.Context, patientID string) (*SafeSummary, error) {
	p, err := s.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	records, err := s.patients.ListMedicalRecords(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medical records: %w", err)
	}
	sc := newSafeContext(p, records, nil, s.now())
	return &SafeSummary{
		PatientID:        patientID,
		SafeSummary:      hipaa.Redact(safeSummaryText(sc)),
		GeneratedAt:      s.now().UTC(),
		PrivacyProtected: true,
	}, nil
}

func safeSummaryText(sc safeContext) string {
	lines := []string{fmt.Sprintf("Patient: %s %s", titleCase(sc.AgeGroup), sc.Gender)}

	if len(sc.MedicalHistory) > 0 {
		lines = append(lines, "Medical History: "+strings.Join(sc.MedicalHistory, ", "))
	}
	if len(sc.Medications) > 0 {
		meds := make([]string, len(sc.Medications))
		for i, m := range sc.Medications {
			meds[i] = strings.TrimSpace(fmt.Sprintf("%s %s %s", m.Name, m.Dosage, m.Frequency))
		}
		lines = append(lines, "Current Medications: "+strings.Join(meds, ", "))
	}
	if len(sc.Allergies) > 0 {
		allergies := make([]string, len(sc.Allergies))
		for i, a := range sc.Allergies {
			allergies[i] = fmt.Sprintf("%s (%s)", a.Allergen, a.Reaction)
		}
		lines = append(lines, "Allergies: "+strings.Join(allergies, ", "))
	}
	if len(sc.Records) > 0 {
		latest := sc.Records[0]
		diagnosis := latest.PrimaryDiagnosis
		if diagnosis == "" {
			diagnosis = "Not specified"
		}
		lines = append(lines, "Recent Diagnosis: "+diagnosis)
		if len(latest.ProceduresPerformed) > 0 {
			lines = append(lines, "Recent Procedures: "+strings.Join(latest.ProceduresPerformed, ", "))
		}
	}
	return strings.Join(lines, "\n")
}

// titleCase upper-cases the first letter of every alphabetic run, so
// "young_adult" becomes "Young_Adult".
func titleCase(s string) string {
	out := []rune(s)
	start := true
	for i, r := range out {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		switch {
		case isLetter && start:
			out[i] = []rune(strings.ToUpper(string(r)))[0]
			start = false
		case isLetter:
			out[i] = []rune(strings.ToLower(string(r)))[0]
		default:
			start = true
		}
	}
	return string(out)
}

func (s *Service) logActivity(patientID, kind string, err error) {
	if err != nil {
		s.logger.Warn().Err(err).
			Str("patient_hash", hipaa.HashPatientID(patientID)).
			Str("activity_type", kind).
			Msg("assistant activity not recorded")
	}
}
