package assistant

import "time"

// Instructions is the structured discharge guidance returned to the caller.
// The object-valued lists keep whatever keys the model chose to emit.
type Instructions struct {
	MedicationSchedule       []map[string]interface{} `json:"medication_schedule"`
	LifestyleRecommendations []string                 `json:"lifestyle_recommendations"`
	FollowUpReminders        []map[string]interface{} `json:"follow_up_reminders"`
	WarningSigns             []string                 `json:"warning_signs"`
	ActivityGuidelines       []string                 `json:"activity_guidelines"`
	DietRecommendations      []string                 `json:"diet_recommendations"`
	WoundCareInstructions    []string                 `json:"wound_care_instructions"`
	EmergencyContacts        []map[string]interface{} `json:"emergency_contacts"`
	Summary                  string                   `json:"summary"`
}

type QAResponse struct {
	Question      string   `json:"question"`
	Answer        string   `json:"answer"`
	Confidence    float64  `json:"confidence"`
	RelatedTopics []string `json:"related_topics"`
}

type SafeQAResponse struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Confidence  float64  `json:"confidence"`
	SafetyFlags []string `json:"safety_flags"`
	Sources     []string `json:"sources"`
	Disclaimer  string   `json:"disclaimer"`
}

type QuickDischarge struct {
	PatientID        string    `json:"patient_id"`
	MedicalRecordID  int64     `json:"medical_record_id"`
	DischargeSummary string    `json:"discharge_summary"`
	GeneratedAt      time.Time `json:"generated_at"`
}

type SafeSummary struct {
	PatientID        string    `json:"patient_id"`
	SafeSummary      string    `json:"safe_summary"`
	GeneratedAt      time.Time `json:"generated_at"`
	PrivacyProtected bool      `json:"privacy_protected"`
}

// QuestionRequest is the body of the enhanced Q&A endpoint.
type QuestionRequest struct {
	Question string `json:"question"`
}
