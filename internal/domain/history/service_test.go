package history

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/domain/patient"
)

// -- Mock Repositories --

type mockActivityRepo struct {
	items  []*Activity
	nextID int64
}

func (m *mockActivityRepo) Create(_ context.Context, a *Activity) error {
	m.nextID++
	a.ID = m.nextID
	m.items = append(m.items, a)
	return nil
}

func (m *mockActivityRepo) ListByPatient(_ context.Context, patientID string, limit int) ([]*Activity, error) {
	var out []*Activity
	for i := len(m.items) - 1; i >= 0 && len(out) < limit; i-- {
		if m.items[i].PatientID == patientID {
			out = append(out, m.items[i])
		}
	}
	return out, nil
}

func (m *mockActivityRepo) ofType(kind string) []*Activity {
	var out []*Activity
	for _, a := range m.items {
		if a.ActivityType == kind {
			out = append(out, a)
		}
	}
	return out
}

type mockVisitRepo struct {
	visits  map[int64]*Visit
	nextID  int64
	numbers map[string]bool
}

func newMockVisitRepo() *mockVisitRepo {
	return &mockVisitRepo{visits: make(map[int64]*Visit), numbers: make(map[string]bool)}
}

func (m *mockVisitRepo) Create(_ context.Context, v *Visit) error {
	if m.numbers[v.VisitNumber] {
		return ErrDuplicateVisit
	}
	m.nextID++
	v.ID = m.nextID
	v.CreatedAt, v.UpdatedAt = time.Now(), time.Now()
	cp := *v
	m.visits[v.ID] = &cp
	m.numbers[v.VisitNumber] = true
	return nil
}

func (m *mockVisitRepo) GetByID(_ context.Context, id int64) (*Visit, error) {
	v, ok := m.visits[id]
	if !ok {
		return nil, ErrVisitNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisitRepo) Update(_ context.Context, v *Visit) error {
	if _, ok := m.visits[v.ID]; !ok {
		return ErrVisitNotFound
	}
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockVisitRepo) ListByPatient(_ context.Context, patientID string) ([]*Visit, error) {
	var out []*Visit
	for _, v := range m.visits {
		if v.PatientID == patientID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionDate.After(out[j].AdmissionDate) })
	return out, nil
}

type mockTimelineRepo struct {
	events []*TimelineEvent
}

func (m *mockTimelineRepo) Create(_ context.Context, e *TimelineEvent) error {
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return nil
}

func (m *mockTimelineRepo) ListByPatient(_ context.Context, patientID string, limit int) ([]*TimelineEvent, error) {
	var out []*TimelineEvent
	for _, e := range m.events {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.After(out[j].EventDate) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockPatients implements the three patient repositories over fixed data.
type mockPatients struct {
	patients map[string]*patient.Patient
	records  []*patient.MedicalRecord
	notes    []*patient.DischargeNote
}

func (m *mockPatients) Create(context.Context, *patient.Patient) error { return nil }
func (m *mockPatients) Update(context.Context, *patient.Patient) error { return nil }
func (m *mockPatients) Delete(context.Context, string) error { return nil }

func (m *mockPatients) GetByPatientID(_ context.Context, id string) (*patient.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (m *mockPatients) List(context.Context, int, int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

func (m *mockPatients) Search(context.Context, string, int, int) ([]*patient.Patient, int, error) {
	return nil, 0, nil
}

type mockRecords struct{ *mockPatients }

func (m mockRecords) Create(context.Context, *patient.MedicalRecord) error { return nil }
func (m mockRecords) GetByID(context.Context, int64) (*patient.MedicalRecord, error) {
	return nil, patient.ErrRecordNotFound
}
func (m mockRecords) ListByPatient(_ context.Context, id string) ([]*patient.MedicalRecord, error) {
	var out []*patient.MedicalRecord
	for _, r := range m.records {
		if r.PatientID == id {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m mockRecords) DeleteByPatient(context.Context, string) (int64, error) { return 0, nil }

type mockNotes struct{ *mockPatients }

func (m mockNotes) Create(context.Context, *patient.DischargeNote) error { return nil }
func (m mockNotes) ListByPatient(_ context.Context, id string) ([]*patient.DischargeNote, error) {
	var out []*patient.DischargeNote
	for _, n := range m.notes {
		if n.PatientID == id {
			out = append(out, n)
		}
	}
	return out, nil
}
func (m mockNotes) ListByRecord(context.Context, int64) ([]*patient.DischargeNote, error) {
	return nil, nil
}
func (m mockNotes) LatestByPatient(context.Context, string) (*patient.DischargeNote, error) {
	return nil, patient.ErrNoteNotFound
}
func (m mockNotes) DeleteByPatient(context.Context, string) (int64, error) { return 0, nil }

type passthroughTx struct{ calls int }

func (t *passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type testDeps struct {
	activities *mockActivityRepo
	visits     *mockVisitRepo
	timeline   *mockTimelineRepo
	patients   *mockPatients
	tx         *passthroughTx
}

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		activities: &mockActivityRepo{},
		visits:     newMockVisitRepo(),
		timeline:   &mockTimelineRepo{},
		patients: &mockPatients{patients: map[string]*patient.Patient{
			"P001": {ID: 1, PatientID: "P001", FirstName: "Ada", LastName: "Lovelace"},
		}},
		tx: &passthroughTx{},
	}
	svc := NewService(d.activities, d.visits, d.timeline,
		d.patients, mockRecords{d.patients}, mockNotes{d.patients}, d.tx, zerolog.Nop())
	return svc, d
}

func strPtr(s string) *string { return &s }

// -- Activity Tests --

func TestService_LogActivity_InvalidType(t *testing.T) {
	svc, d := newTestService()
	err := svc.LogActivity(context.Background(), &Activity{PatientID: "P001", ActivityType: "teleport", Description: "x"})
	if !errors.Is(err, ErrInvalidActivityType) {
		t.Fatalf("expected ErrInvalidActivityType, got %v", err)
	}
	if len(d.activities.items) != 0 {
		t.Error("expected nothing stored")
	}
}

func TestService_LogActivity_UnknownPatient(t *testing.T) {
	svc, _ := newTestService()
	err := svc.LogActivity(context.Background(), &Activity{PatientID: "nobody", ActivityType: ActivityUpdate, Description: "x"})
	if !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestService_LogQuestionAsked_TruncatesPreview(t *testing.T) {
	svc, d := newTestService()
	question := strings.Repeat("a", 150)
	if err := svc.LogQuestionAsked(context.Background(), "P001", question, "nurse-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := d.activities.items[0]
	if a.ActivityType != ActivityQuestionAsked {
		t.Errorf("expected question_asked, got %s", a.ActivityType)
	}
	preview, _ := a.Details["question_preview"].(string)
	if preview != strings.Repeat("a", 100)+"..." {
		t.Errorf("expected 100 chars plus ellipsis, got %d chars", len(preview))
	}
	if a.PerformedBy == nil || *a.PerformedBy != "nurse-1" {
		t.Errorf("expected performed_by nurse-1, got %v", a.PerformedBy)
	}
}

func TestQuestionPreview_Short(t *testing.T) {
	if got := QuestionPreview("When can I shower?"); got != "When can I shower?" {
		t.Errorf("expected unchanged question, got %q", got)
	}
	exact := strings.Repeat("b", 100)
	if got := QuestionPreview(exact); got != exact {
		t.Error("expected a 100 character question to be kept whole")
	}
}

func TestService_LogMedicationChange(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.LogMedicationChange(ctx, "P001", "added", "Warfarin", "")
	_ = svc.LogMedicationChange(ctx, "P001", "removed", "Aspirin", "")

	if len(d.activities.ofType(ActivityMedicationAdded)) != 1 || len(d.activities.ofType(ActivityMedicationRemoved)) != 1 {
		t.Fatalf("expected one added and one removed, got %+v", d.activities.items)
	}
	if got := d.activities.items[1].Description; got != "Medication removed: Aspirin" {
		t.Errorf("unexpected description %q", got)
	}
	if d.activities.items[0].PerformedBy != nil {
		t.Error("expected nil performed_by when empty")
	}
}

// -- Visit Tests --

func TestService_CreateVisit(t *testing.T) {
	svc, d := newTestService()
	v := &Visit{
		PatientID:      "P001",
		VisitNumber:    "V-100",
		AdmissionDate:  time.Now(),
		VisitType:      "emergency",
		Status:         VisitDischarged,
		Department:     strPtr("Cardiology"),
		ChiefComplaint: strPtr("Chest pain"),
	}
	if err := svc.CreateVisit(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != VisitActive {
		t.Errorf("expected status forced to active, got %s", v.Status)
	}

	admissions := d.activities.ofType(ActivityAdmission)
	if len(admissions) != 1 {
		t.Fatalf("expected 1 admission activity, got %d", len(admissions))
	}
	if admissions[0].Description != "Patient admitted for emergency visit" {
		t.Errorf("unexpected description %q", admissions[0].Description)
	}
	if admissions[0].Details["visit_number"] != "V-100" {
		t.Errorf("expected visit_number in details, got %v", admissions[0].Details)
	}
}

func TestService_CreateVisit_UnknownPatient(t *testing.T) {
	svc, d := newTestService()
	err := svc.CreateVisit(context.Background(), &Visit{PatientID: "ghost", VisitNumber: "V1", AdmissionDate: time.Now(), VisitType: "routine"})
	if !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if len(d.visits.visits) != 0 {
		t.Error("expected no visit stored")
	}
}

func createVisit(t *testing.T, svc *Service) *Visit {
	t.Helper()
	v := &Visit{PatientID: "P001", VisitNumber: "V-1", AdmissionDate: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), VisitType: "inpatient"}
	if err := svc.CreateVisit(context.Background(), v); err != nil {
		t.Fatalf("create visit: %v", err)
	}
	return v
}

func TestService_UpdateVisit_DischargeOnce(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	v := createVisit(t, svc)

	first := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	updated, err := svc.UpdateVisit(ctx, "P001", v.ID, &VisitUpdate{DischargeDate: &first, DischargeDisposition: strPtr("home")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != VisitDischarged {
		t.Errorf("expected discharged, got %s", updated.Status)
	}
	if updated.DischargeDate == nil || !updated.DischargeDate.Equal(first) {
		t.Errorf("expected discharge date %s, got %v", first, updated.DischargeDate)
	}

	second := first.AddDate(0, 0, 5)
	updated, err = svc.UpdateVisit(ctx, "P001", v.ID, &VisitUpdate{DischargeDate: &second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !updated.DischargeDate.Equal(first) {
		t.Errorf("expected discharge date to stay %s, got %s", first, updated.DischargeDate)
	}
	if n := len(d.activities.ofType(ActivityDischarge)); n != 1 {
		t.Errorf("expected exactly 1 discharge activity, got %d", n)
	}
	if n := len(d.activities.ofType(ActivityUpdate)); n != 1 {
		t.Errorf("expected 1 update activity (from the first call), got %d", n)
	}
}

func TestService_UpdateVisit_FieldsLogged(t *testing.T) {
	svc, d := newTestService()
	v := createVisit(t, svc)

	_, err := svc.UpdateVisit(context.Background(), "P001", v.ID, &VisitUpdate{
		Status:             strPtr(VisitTransferred),
		VisitSummary:       strPtr("Transferred to rehab"),
		AttendingPhysician: strPtr("Dr. Grey"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updates := d.activities.ofType(ActivityUpdate)
	if len(updates) != 1 {
		t.Fatalf("expected 1 update activity, got %d", len(updates))
	}
	details := updates[0].Details
	if details["status"] != VisitTransferred || details["visit_summary"] != "Updated" || details["attending_physician"] != "Dr. Grey" {
		t.Errorf("unexpected details %v", details)
	}
	if updates[0].PerformedBy == nil || *updates[0].PerformedBy != "Dr. Grey" {
		t.Errorf("expected performed_by Dr. Grey, got %v", updates[0].PerformedBy)
	}
}

func TestService_UpdateVisit_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.UpdateVisit(context.Background(), "P001", 99, &VisitUpdate{}); !errors.Is(err, ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestService_UpdateVisit_OtherPatient(t *testing.T) {
	svc, _ := newTestService()
	v := createVisit(t, svc)
	if _, err := svc.UpdateVisit(context.Background(), "P999", v.ID, &VisitUpdate{Status: strPtr("discharged")}); !errors.Is(err, ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound for a visit of another patient, got %v", err)
	}
}

// -- Timeline Tests --

func TestService_AddTimelineEvent_VisitMustBelongToPatient(t *testing.T) {
	svc, d := newTestService()
	d.patients.patients["P002"] = &patient.Patient{PatientID: "P002"}
	v := createVisit(t, svc)

	err := svc.AddTimelineEvent(context.Background(), &TimelineEvent{
		PatientID: "P002", VisitID: &v.ID, EventType: "lab", EventTitle: "CBC", EventDate: time.Now(),
	})
	if !errors.Is(err, ErrVisitNotFound) {
		t.Fatalf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestService_ListTimeline_DefaultLimit(t *testing.T) {
	svc, d := newTestService()
	base := time.Now()
	for i := 0; i < DefaultTimelineLimit+5; i++ {
		d.timeline.events = append(d.timeline.events, &TimelineEvent{PatientID: "P001", EventDate: base.Add(time.Duration(i) * time.Minute)})
	}
	got, err := svc.ListTimeline(context.Background(), "P001", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != DefaultTimelineLimit {
		t.Errorf("expected %d events, got %d", DefaultTimelineLimit, len(got))
	}
	if !got[0].EventDate.After(got[1].EventDate) {
		t.Error("expected newest first")
	}
}

// -- Comprehensive History Tests --

func TestDaysInHospital(t *testing.T) {
	adm := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	sameDay := adm.Add(5 * time.Hour)
	threeDays := adm.AddDate(0, 0, 3)
	visits := []*Visit{
		{AdmissionDate: adm, DischargeDate: &sameDay},
		{AdmissionDate: adm, DischargeDate: &threeDays},
		{AdmissionDate: adm},
	}
	if got := DaysInHospital(visits); got != 4 {
		t.Errorf("expected 4 days (1 + 3, open visit ignored), got %d", got)
	}
}

func TestCurrentStatus(t *testing.T) {
	if got := CurrentStatus(nil); got != StatusOutpatient {
		t.Errorf("expected outpatient with no visits, got %s", got)
	}
	visits := []*Visit{{Status: VisitDischarged}, {Status: VisitActive}}
	if got := CurrentStatus(visits); got != StatusInpatient {
		t.Errorf("expected inpatient, got %s", got)
	}
}

func TestService_ComprehensiveHistory(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	d.patients.records = []*patient.MedicalRecord{{ID: 1, PatientID: "P001", PrimaryDiagnosis: "Flu"}}

	v := createVisit(t, svc)
	discharge := v.AdmissionDate.AddDate(0, 0, 2)
	if _, err := svc.UpdateVisit(ctx, "P001", v.ID, &VisitUpdate{DischargeDate: &discharge}); err != nil {
		t.Fatalf("update visit: %v", err)
	}

	h, err := svc.ComprehensiveHistory(ctx, "P001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.TotalVisits != 1 || h.TotalDaysInHospital != 2 {
		t.Errorf("expected 1 visit / 2 days, got %d / %d", h.TotalVisits, h.TotalDaysInHospital)
	}
	if h.CurrentStatus != StatusOutpatient {
		t.Errorf("expected outpatient after discharge, got %s", h.CurrentStatus)
	}
	if h.LastVisitDate == nil || !h.LastVisitDate.Equal(v.AdmissionDate) {
		t.Errorf("expected last visit date %s, got %v", v.AdmissionDate, h.LastVisitDate)
	}
	if len(h.MedicalRecords) != 1 || h.DischargeNotes == nil {
		t.Errorf("expected 1 record and non-nil notes, got %+v", h)
	}
	if len(h.Activities) == 0 {
		t.Error("expected admission/discharge activities in history")
	}
}

func TestService_ComprehensiveHistory_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.ComprehensiveHistory(context.Background(), "ghost"); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

// The history service is the patient service's activity recorder.
var _ patient.ActivityRecorder = (*Service)(nil)

func TestService_UpdateVisit_DischargeStoredAsUTC(t *testing.T) {
	svc, d := newTestService()
	v := createVisit(t, svc)

	discharged := time.Date(2024, 3, 4, 7, 0, 0, 0, time.FixedZone("EST", -5*3600))
	if _, err := svc.UpdateVisit(context.Background(), "P001", v.ID, &VisitUpdate{DischargeDate: &discharged}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := d.visits.visits[v.ID].DischargeDate
	if got == nil || !got.Equal(discharged) || got.Location() != time.UTC {
		t.Errorf("expected %v in UTC, got %v", discharged.UTC(), got)
	}
}
