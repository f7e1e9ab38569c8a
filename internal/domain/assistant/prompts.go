package assistant

import (
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/hipaa"
	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/llm"
)

const instructionsSystemPrompt = `You are a specialized healthcare AI assistant that generates personalized, easy-to-understand discharge instructions for patients. Your goal is to create clear, actionable, and patient-friendly instructions that reduce confusion and prevent readmissions.

GUIDELINES:
1. Use simple, non-medical language that patients and caregivers can easily understand
2. Be specific about medication schedules, including exact times and dosages
3. Provide clear lifestyle recommendations based on the patient's condition
4. Include specific warning signs that require immediate medical attention
5. Create a realistic follow-up schedule with reminders
6. Consider the patient's age, gender, medical history, and current condition
7. Address potential complications or concerns specific to their diagnosis
8. Include emergency contact information and when to use it

FORMAT YOUR RESPONSE AS A STRUCTURED JSON with the following sections:
- medication_schedule: Array of medication objects with name, dosage, timing, and special instructions
- lifestyle_recommendations: Array of specific lifestyle changes and recommendations
- follow_up_reminders: Array of follow-up appointments and reminders with dates and purposes
- warning_signs: Array of specific symptoms that require immediate medical attention
- activity_guidelines: Array of activity restrictions and recommendations
- diet_recommendations: Array of dietary guidelines and restrictions
- wound_care_instructions: Array of wound care steps (if applicable)
- emergency_contacts: Array of emergency contact information
- summary: A brief, encouraging summary of the key points`

const structurePromptTemplate = `Convert the following discharge instructions into a structured JSON format:

%s

Return only valid JSON with these keys:
- medication_schedule
- lifestyle_recommendations
- follow_up_reminders
- warning_signs
- activity_guidelines
- diet_recommendations
- wound_care_instructions
- emergency_contacts
- summary`

const questionSystemPrompt = `You are a helpful healthcare assistant answering patient questions about their discharge instructions.
Provide clear, accurate, and reassuring answers based on the patient's specific discharge instructions.

GUIDELINES:
1. Only answer based on the provided discharge instructions and patient context
2. Use simple, non-medical language
3. If the question is about serious symptoms or emergencies, advise contacting healthcare provider
4. Be empathetic and supportive
5. If you don't have enough information, recommend contacting their healthcare provider
6. Provide confidence level (0.0 to 1.0) for your answer
7. Suggest related topics the patient might want to know about`

const safeQuestionSystemPrompt = `You are a healthcare AI assistant providing educational information about patient discharge instructions and medical care.

CRITICAL SAFETY GUIDELINES:
1. NEVER provide specific medical diagnoses or treatment recommendations
2. ALWAYS emphasize consulting healthcare providers for medical decisions
3. NEVER suggest stopping or changing medications without medical supervision
4. NEVER provide emergency medical advice - direct to emergency services
5. Focus on general education and clarification of existing discharge instructions
6. If unsure about any medical information, state uncertainty clearly
7. NEVER make definitive statements about medical outcomes
8. Protect patient privacy - do not repeat specific personal information

RESPONSE FORMAT:
- Provide helpful, educational information
- Include appropriate medical disclaimers
- Suggest consulting healthcare providers when appropriate
- Be empathetic but professionally cautious
- Focus on supporting existing medical care, not replacing it

Remember: You are providing educational support, not medical advice.`

// redacted returns req with both messages passed through the PII redactor.
// Every request handed to the completer is built through it.
func redacted(req llm.Request) llm.Request {
	req.System = hipaa.Redact(req.System)
	req.User = hipaa.Redact(req.User)
	return req
}

func indentJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

// instructionContext describes the patient, the admission and the discharge
// note. Names and identifiers are left out.
func instructionContext(p *patient.Patient, r *patient.MedicalRecord, n *patient.DischargeNote, now time.Time) string {
	var b strings.Builder
	b.WriteString("PATIENT INFORMATION:\n")
	fmt.Fprintf(&b, "- Age: %d years\n", p.AgeAt(now))
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- Medical History: %s\n", strings.Join(p.MedicalHistory, ", "))
	fmt.Fprintf(&b, "- Known Allergies: %s\n", indentJSON(nonNil(p.Allergies)))
	fmt.Fprintf(&b, "- Current Medications: %s\n", indentJSON(nonNil(p.CurrentMedications)))

	b.WriteString("\nMEDICAL RECORD:\n")
	fmt.Fprintf(&b, "- Primary Diagnosis: %s\n", r.PrimaryDiagnosis)
	fmt.Fprintf(&b, "- Secondary Diagnoses: %s\n", strings.Join(r.SecondaryDiagnoses, ", "))
	fmt.Fprintf(&b, "- Procedures Performed: %s\n", strings.Join(r.ProceduresPerformed, ", "))
	fmt.Fprintf(&b, "- Treatment Summary: %s\n", r.TreatmentSummary)
	fmt.Fprintf(&b, "- Physician Notes: %s\n", derefOr(r.PhysicianNotes, ""))
	fmt.Fprintf(&b, "- Severity Level: %s\n", r.SeverityLevel)
	fmt.Fprintf(&b, "- Lab Results: %s\n", indentJSON(nonNil(r.LabResults)))
	fmt.Fprintf(&b, "- Vital Signs: %s\n", indentJSON(nonNil(r.VitalSigns)))

	b.WriteString("\nDISCHARGE INFORMATION:\n")
	fmt.Fprintf(&b, "- Discharge Summary: %s\n", n.DischargeSummary)
	fmt.Fprintf(&b, "- Medications at Discharge: %s\n", indentJSON(nonNil(n.MedicationsAtDischarge)))
	fmt.Fprintf(&b, "- Follow-up Instructions: %s\n", derefOr(n.FollowUpInstructions, ""))
	fmt.Fprintf(&b, "- Activity Restrictions: %s\n", derefOr(n.ActivityRestrictions, ""))
	fmt.Fprintf(&b, "- Diet Instructions: %s\n", derefOr(n.DietInstructions, ""))
	fmt.Fprintf(&b, "- Warning Signs: %s\n", derefOr(n.WarningSigns, ""))
	fmt.Fprintf(&b, "- Discharge Physician: %s\n", derefOr(n.DischargePhysician, ""))
	return b.String()
}

func instructionsRequest(patientContext string) llm.Request {
	return redacted(llm.Request{
		System: instructionsSystemPrompt,
		User: "Based on the following patient information, generate comprehensive, personalized discharge instructions:\n\n" +
			patientContext +
			"\nPlease create detailed, patient-friendly discharge instructions that address all aspects of their care and recovery.",
		Temperature: 0.3,
		MaxTokens:   2000,
	})
}

func structureRequest(text string) llm.Request {
	return redacted(llm.Request{
		User:        fmt.Sprintf(structurePromptTemplate, text),
		Temperature: 0.1,
		MaxTokens:   1500,
	})
}

// questionContext is the patient-facing context for the legacy Q&A flow.
type questionContext struct {
	Diagnosis   string               `json:"diagnosis"`
	Medications []patient.Medication `json:"medications"`
	Allergies   []patient.Allergy    `json:"allergies"`
}

func questionRequest(question string, instr *Instructions, qc questionContext) llm.Request {
	user := fmt.Sprintf(`Patient Question: %s

Context:
PATIENT DISCHARGE INSTRUCTIONS:
%s

PATIENT CONTEXT:
%s

Please provide a helpful answer with confidence level and related topics.
Format as JSON with keys: answer, confidence, related_topics`, question, indentJSON(instr), indentJSON(qc))
	return redacted(llm.Request{
		System:      questionSystemPrompt,
		User:        user,
		Temperature: 0.2,
		MaxTokens:   500,
	})
}

// safeContext is the de-identified view of a patient used by the enhanced
// Q&A flow and the safe summary.
type safeContext struct {
	AgeGroup       string
	Gender         string
	MedicalHistory []string
	Allergies      []patient.Allergy
	Medications    []patient.Medication
	Records        []*patient.MedicalRecord
	LatestNote     *patient.DischargeNote
}

func newSafeContext(p *patient.Patient, records []*patient.MedicalRecord, notes []*patient.DischargeNote, now time.Time) safeContext {
	sc := safeContext{
		AgeGroup:       AgeGroup(p, now),
		Gender:         p.Gender,
		MedicalHistory: p.MedicalHistory,
		Allergies:      p.Allergies,
		Medications:    p.CurrentMedications,
		Records:        records,
	}
	if len(notes) > 0 {
		sc.LatestNote = notes[0]
	}
	return sc
}

// AgeGroup buckets a patient's age so prompts never carry the exact value.
func AgeGroup(p *patient.Patient, now time.Time) string {
	if p.DateOfBirth.IsZero() {
		return "unknown"
	}
	switch age := p.AgeAt(now); {
	case age < 18:
		return "pediatric"
	case age < 35:
		return "young_adult"
	case age < 55:
		return "middle_aged"
	case age < 75:
		return "senior"
	default:
		return "elderly"
	}
}

func safeQuestionRequest(question string, sc safeContext) llm.Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following patient's specific medical information, please answer this question: %q\n\n", question)
	b.WriteString("PATIENT'S SPECIFIC INFORMATION:\n")
	fmt.Fprintf(&b, "Age Group: %s\nGender: %s\n\n", sc.AgeGroup, sc.Gender)

	if len(sc.Medications) > 0 {
		b.WriteString("Current Medications:\n")
		for _, m := range sc.Medications {
			fmt.Fprintf(&b, "- %s %s %s\n", m.Name, m.Dosage, m.Frequency)
		}
		b.WriteString("\n")
	}
	if len(sc.Records) > 0 {
		b.WriteString("Recent Diagnoses:\n")
		for _, r := range sc.Records {
			if r.PrimaryDiagnosis != "" {
				fmt.Fprintf(&b, "- %s\n", r.PrimaryDiagnosis)
			}
		}
		b.WriteString("\n")
	}

	history := "None recorded"
	if len(sc.MedicalHistory) > 0 {
		history = strings.Join(sc.MedicalHistory, ", ")
	}
	fmt.Fprintf(&b, "Medical History: %s\n\n", history)

	allergies := "No known allergies"
	if len(sc.Allergies) > 0 {
		names := make([]string, len(sc.Allergies))
		for i, a := range sc.Allergies {
			names[i] = a.Allergen
		}
		allergies = strings.Join(names, ", ")
	}
	fmt.Fprintf(&b, "Allergies: %s\n\n", allergies)

	if n := sc.LatestNote; n != nil {
		for _, f := range []struct{ label, value string }{
			{"Follow-up Instructions", derefOr(n.FollowUpInstructions, "")},
			{"Activity Restrictions", derefOr(n.ActivityRestrictions, "")},
			{"Diet Instructions", derefOr(n.DietInstructions, "")},
			{"Warning Signs", derefOr(n.WarningSigns, "")},
		} {
			if f.value != "" {
				fmt.Fprintf(&b, "%s: %s\n", f.label, f.value)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(`INSTRUCTIONS:
- Provide specific, personalized information based on this patient's actual medications and conditions
- Reference their specific medications by name when relevant
- Address their specific medical conditions and diagnoses
- Include relevant discharge instructions if applicable
- Always emphasize following their healthcare provider's specific instructions
- Be helpful and informative while maintaining medical safety`)

	return redacted(llm.Request{
		System:      safeQuestionSystemPrompt,
		User:        b.String(),
		Temperature: 0.2,
		MaxTokens:   1000,
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
