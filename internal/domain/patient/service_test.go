package patient

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/AbhaySingh31/ai-discharge-instructions/internal/platform/auth"
)

// -- Mock Patient Repository --

type mockPatientRepo struct {
	patients map[string]*Patient
	nextID   int64
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[string]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.PatientID]; ok {
		return ErrDuplicatePatient
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	cp := *p
	m.patients[p.PatientID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	p, ok := m.patients[patientID]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.PatientID]; !ok {
		return ErrPatientNotFound
	}
	now := time.Now()
	p.UpdatedAt = &now
	cp := *p
	m.patients[p.PatientID] = &cp
	return nil
}

func (m *mockPatientRepo) Delete(_ context.Context, patientID string) error {
	if _, ok := m.patients[patientID]; !ok {
		return ErrPatientNotFound
	}
	delete(m.patients, patientID)
	return nil
}

func (m *mockPatientRepo) sorted() []*Patient {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(items []*Patient, limit, offset int) []*Patient {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	all := m.sorted()
	return page(all, limit, offset), len(all), nil
}

func (m *mockPatientRepo) Search(_ context.Context, query string, limit, offset int) ([]*Patient, int, error) {
	q := strings.ToLower(query)
	var matched []*Patient
	for _, p := range m.sorted() {
		if strings.Contains(strings.ToLower(p.FirstName), q) ||
			strings.Contains(strings.ToLower(p.LastName), q) ||
			strings.Contains(strings.ToLower(p.PatientID), q) {
			matched = append(matched, p)
		}
	}
	return page(matched, limit, offset), len(matched), nil
}

// -- Mock Medical Record Repository --

type mockRecordRepo struct {
	records map[int64]*MedicalRecord
	nextID  int64
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[int64]*MedicalRecord)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *MedicalRecord) error {
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	m.records[r.ID] = r
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id int64) (*MedicalRecord, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r, nil
}

func (m *mockRecordRepo) ListByPatient(_ context.Context, patientID string) ([]*MedicalRecord, error) {
	var out []*MedicalRecord
	for _, r := range m.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AdmissionDate.After(out[j].AdmissionDate) })
	return out, nil
}

func (m *mockRecordRepo) DeleteByPatient(_ context.Context, patientID string) (int64, error) {
	var n int64
	for id, r := range m.records {
		if r.PatientID == patientID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// -- Mock Discharge Note Repository --

type mockNoteRepo struct {
	notes     map[int64]*DischargeNote
	nextID    int64
	deleteErr error
}

func newMockNoteRepo() *mockNoteRepo {
	return &mockNoteRepo{notes: make(map[int64]*DischargeNote)}
}

func (m *mockNoteRepo) Create(_ context.Context, n *DischargeNote) error {
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now()
	m.notes[n.ID] = n
	return nil
}

func (m *mockNoteRepo) filter(keep func(*DischargeNote) bool) []*DischargeNote {
	var out []*DischargeNote
	for _, n := range m.notes {
		if keep(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DischargeDate.After(out[j].DischargeDate) })
	return out
}

func (m *mockNoteRepo) ListByPatient(_ context.Context, patientID string) ([]*DischargeNote, error) {
	return m.filter(func(n *DischargeNote) bool { return n.PatientID == patientID }), nil
}

func (m *mockNoteRepo) ListByRecord(_ context.Context, recordID int64) ([]*DischargeNote, error) {
	return m.filter(func(n *DischargeNote) bool { return n.MedicalRecordID == recordID }), nil
}

func (m *mockNoteRepo) LatestByPatient(ctx context.Context, patientID string) (*DischargeNote, error) {
	notes, _ := m.ListByPatient(ctx, patientID)
	if len(notes) == 0 {
		return nil, ErrNoteNotFound
	}
	return notes[0], nil
}

func (m *mockNoteRepo) DeleteByPatient(_ context.Context, patientID string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var n int64
	for id, note := range m.notes {
		if note.PatientID == patientID {
			delete(m.notes, id)
			n++
		}
	}
	return n, nil
}

// -- Mock Tx Runner and Activity Recorder --

type passthroughTx struct {
	calls int
}

func (t *passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type recordedActivity struct {
	kind    string
	subject string
	by      string
	details map[string]interface{}
}

type mockActivity struct {
	events []recordedActivity
	err    error
}

func (m *mockActivity) add(a recordedActivity) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, a)
	return nil
}

func (m *mockActivity) LogMedicationChange(_ context.Context, _, action, medication, by string) error {
	return m.add(recordedActivity{kind: "medication_" + action, subject: medication, by: by})
}

func (m *mockActivity) LogDiagnosisUpdate(_ context.Context, _, diagnosis, by string) error {
	return m.add(recordedActivity{kind: "diagnosis_updated", subject: diagnosis, by: by})
}

func (m *mockActivity) LogProcedure(_ context.Context, _, procedure, by string) error {
	return m.add(recordedActivity{kind: "procedure_performed", subject: procedure, by: by})
}

func (m *mockActivity) LogPatientUpdate(_ context.Context, _ string, changes map[string]interface{}, by string) error {
	return m.add(recordedActivity{kind: "update", details: changes, by: by})
}

func (m *mockActivity) kinds() []string {
	var out []string
	for _, e := range m.events {
		out = append(out, e.kind)
	}
	return out
}

type testDeps struct {
	patients *mockPatientRepo
	records  *mockRecordRepo
	notes    *mockNoteRepo
	tx       *passthroughTx
	activity *mockActivity
}

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		patients: newMockPatientRepo(),
		records:  newMockRecordRepo(),
		notes:    newMockNoteRepo(),
		tx:       &passthroughTx{},
		activity: &mockActivity{},
	}
	return NewService(d.patients, d.records, d.notes, d.tx, d.activity, zerolog.Nop()), d
}

func testPatient(id string) *Patient {
	return &Patient{
		PatientID:   id,
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1960, 5, 20, 0, 0, 0, 0, time.UTC),
		Gender:      GenderFemale,
		CurrentMedications: []Medication{
			{Name: "Lisinopril", Dosage: "10mg", Frequency: "daily", Route: "oral"},
		},
	}
}

// -- Patient Tests --

func TestService_CreatePatient(t *testing.T) {
	svc, _ := newTestService()
	p := testPatient("P001")
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == 0 {
		t.Error("expected ID to be set")
	}
}

func TestService_CreatePatient_Duplicate(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	if err := svc.CreatePatient(ctx, testPatient("P001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dup := testPatient("P001")
	dup.FirstName = "Grace"
	err := svc.CreatePatient(ctx, dup)
	if !errors.Is(err, ErrDuplicatePatient) {
		t.Fatalf("expected ErrDuplicatePatient, got %v", err)
	}
	if got := d.patients.patients["P001"].FirstName; got != "Ada" {
		t.Errorf("expected existing patient untouched, got first_name %s", got)
	}
}

func TestService_CreatePatient_MissingDOB(t *testing.T) {
	svc, _ := newTestService()
	p := testPatient("P001")
	p.DateOfBirth = time.Time{}
	if err := svc.CreatePatient(context.Background(), p); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestService_GetPatient_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.GetPatient(context.Background(), "missing"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestService_SearchPatients(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	for _, p := range []*Patient{
		{PatientID: "P001", FirstName: "John", LastName: "Doe"},
		{PatientID: "P002", FirstName: "Jane", LastName: "Johnson"},
		{PatientID: "X003", FirstName: "Ann", LastName: "Smith"},
	} {
		p.DateOfBirth = time.Now().AddDate(-40, 0, 0)
		if err := svc.CreatePatient(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.PatientID, err)
		}
	}

	got, total, err := svc.SearchPatients(ctx, "JOHN", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d (total %d)", len(got), total)
	}

	got, _, _ = svc.SearchPatients(ctx, "p00", 10, 0)
	if len(got) != 2 {
		t.Errorf("expected patient_id substring to match 2, got %d", len(got))
	}

	got, total, _ = svc.SearchPatients(ctx, "  ", 10, 0)
	if total != 3 || len(got) != 3 {
		t.Errorf("expected blank query to list all 3, got %d", len(got))
	}
}

func TestService_UpdatePatient_LogsMedicationDiff(t *testing.T) {
	svc, d := newTestService()
	ctx := auth.WithUser(context.Background(), "dr-house", []string{auth.RoleClinician})
	if err := svc.CreatePatient(ctx, testPatient("P001")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	meds := []Medication{{Name: "Metformin", Dosage: "500mg", Frequency: "twice daily", Route: "oral"}}
	history := []string{"Type 2 diabetes"}
	phone := "555-0100"
	p, err := svc.UpdatePatient(ctx, "P001", &PatientUpdate{
		CurrentMedications: &meds,
		MedicalHistory:     &history,
		Phone:              &phone,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.CurrentMedications) != 1 || p.CurrentMedications[0].Name != "Metformin" {
		t.Errorf("expected medications replaced, got %+v", p.CurrentMedications)
	}
	if p.UpdatedAt == nil {
		t.Error("expected updated_at to be set")
	}

	want := []string{"medication_added", "medication_removed", "update"}
	got := d.activity.kinds()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected activities %v, got %v", want, got)
	}
	if d.activity.events[0].subject != "Metformin" || d.activity.events[1].subject != "Lisinopril" {
		t.Errorf("unexpected medication subjects: %+v", d.activity.events[:2])
	}
	if d.activity.events[0].by != "dr-house" {
		t.Errorf("expected performed_by dr-house, got %q", d.activity.events[0].by)
	}
	update := d.activity.events[2].details
	if added, _ := update["medical_history_added"].([]string); len(added) != 1 || added[0] != "Type 2 diabetes" {
		t.Errorf("expected medical history addition recorded, got %v", update)
	}
	if d.tx.calls == 0 {
		t.Error("expected update to run in a transaction")
	}
}

func TestService_UpdatePatient_NoChanges(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))

	same := "Ada"
	if _, err := svc.UpdatePatient(ctx, "P001", &PatientUpdate{FirstName: &same}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.activity.events) != 0 {
		t.Errorf("expected no activity for a no-op update, got %v", d.activity.kinds())
	}
}

func TestService_UpdatePatient_NotFound(t *testing.T) {
	svc, _ := newTestService()
	name := "X"
	if _, err := svc.UpdatePatient(context.Background(), "missing", &PatientUpdate{FirstName: &name}); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestService_UpdatePatient_ActivityFailure(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))
	d.activity.err = errors.New("activity store down")

	name := "Grace"
	if _, err := svc.UpdatePatient(ctx, "P001", &PatientUpdate{FirstName: &name}); err == nil {
		t.Fatal("expected activity failure to fail the update")
	}
}

func TestService_DeletePatient_Cascades(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))
	_ = svc.CreatePatient(ctx, testPatient("P002"))

	rec := &MedicalRecord{PatientID: "P001", AdmissionDate: time.Now(), PrimaryDiagnosis: "Pneumonia", TreatmentSummary: "Antibiotics"}
	if err := svc.CreateMedicalRecord(ctx, rec); err != nil {
		t.Fatalf("create record: %v", err)
	}
	note := &DischargeNote{PatientID: "P001", MedicalRecordID: rec.ID, DischargeSummary: "Stable", DischargeDate: time.Now()}
	if err := svc.CreateDischargeNote(ctx, note); err != nil {
		t.Fatalf("create note: %v", err)
	}

	if err := svc.DeletePatient(ctx, "P001"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := d.patients.patients["P001"]; ok {
		t.Error("expected patient removed")
	}
	if len(d.records.records) != 0 || len(d.notes.notes) != 0 {
		t.Errorf("expected records and notes removed, got %d records %d notes", len(d.records.records), len(d.notes.notes))
	}
	if _, ok := d.patients.patients["P002"]; !ok {
		t.Error("expected other patient untouched")
	}
}

func TestService_DeletePatient_StopsOnFailure(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))
	d.notes.deleteErr = errors.New("connection reset")

	if err := svc.DeletePatient(ctx, "P001"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := d.patients.patients["P001"]; !ok {
		t.Error("expected patient kept when cascade fails")
	}
}

func TestService_DeletePatient_NotFound(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.DeletePatient(context.Background(), "missing"); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

// -- Medical Record / Discharge Note Tests --

func TestService_CreateMedicalRecord(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))

	rec := &MedicalRecord{
		PatientID:           "P001",
		AdmissionDate:       time.Now(),
		PrimaryDiagnosis:    "Appendicitis",
		ProceduresPerformed: []string{"Appendectomy", "CT scan"},
		TreatmentSummary:    "Laparoscopic removal",
	}
	if err := svc.CreateMedicalRecord(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SeverityLevel != SeverityModerate {
		t.Errorf("expected default severity moderate, got %s", rec.SeverityLevel)
	}
	want := "diagnosis_updated,procedure_performed,procedure_performed"
	if got := strings.Join(d.activity.kinds(), ","); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestService_CreateMedicalRecord_UnknownPatient(t *testing.T) {
	svc, d := newTestService()
	rec := &MedicalRecord{PatientID: "ghost", AdmissionDate: time.Now(), PrimaryDiagnosis: "Flu"}
	if err := svc.CreateMedicalRecord(context.Background(), rec); !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
	if len(d.records.records) != 0 {
		t.Error("expected no record stored")
	}
}

func TestService_CreateDischargeNote_RecordOfOtherPatient(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))
	_ = svc.CreatePatient(ctx, testPatient("P002"))
	rec := &MedicalRecord{PatientID: "P002", AdmissionDate: time.Now(), PrimaryDiagnosis: "Flu"}
	_ = svc.CreateMedicalRecord(ctx, rec)

	note := &DischargeNote{PatientID: "P001", MedicalRecordID: rec.ID, DischargeSummary: "Home", DischargeDate: time.Now()}
	if err := svc.CreateDischargeNote(ctx, note); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	if len(d.notes.notes) != 0 {
		t.Error("expected no note stored")
	}
}

func TestService_PatientSummary(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreatePatient(ctx, testPatient("P001"))

	older := &MedicalRecord{PatientID: "P001", AdmissionDate: time.Now().AddDate(0, -2, 0), PrimaryDiagnosis: "Flu"}
	newer := &MedicalRecord{PatientID: "P001", AdmissionDate: time.Now().AddDate(0, 0, -3), PrimaryDiagnosis: "Fracture"}
	_ = svc.CreateMedicalRecord(ctx, older)
	_ = svc.CreateMedicalRecord(ctx, newer)
	_ = svc.CreateDischargeNote(ctx, &DischargeNote{PatientID: "P001", MedicalRecordID: newer.ID, DischargeSummary: "Cast", DischargeDate: time.Now()})

	sum, err := svc.PatientSummary(ctx, "P001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.TotalAdmissions != 2 {
		t.Errorf("expected 2 admissions, got %d", sum.TotalAdmissions)
	}
	if sum.LatestAdmission == nil || sum.LatestAdmission.PrimaryDiagnosis != "Fracture" {
		t.Errorf("expected latest admission Fracture, got %+v", sum.LatestAdmission)
	}
	if sum.LatestDischarge == nil || sum.LatestDischarge.DischargeSummary != "Cast" {
		t.Errorf("expected latest discharge Cast, got %+v", sum.LatestDischarge)
	}
}

func TestPatient_AgeAt(t *testing.T) {
	p := &Patient{DateOfBirth: time.Date(1980, 6, 15, 0, 0, 0, 0, time.UTC)}
	if got := p.AgeAt(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)); got != 43 {
		t.Errorf("expected 43 the day before the birthday, got %d", got)
	}
	if got := p.AgeAt(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)); got != 44 {
		t.Errorf("expected 44 on the birthday, got %d", got)
	}
}

func TestService_CreateMedicalRecord_NormalizesToUTC(t *testing.T) {
	svc, d := newTestService()
	ctx := context.Background()
	_ = d.patients.Create(ctx, testPatient("P001"))

	est := time.FixedZone("EST", -5*3600)
	admitted := time.Date(2024, 1, 15, 10, 0, 0, 0, est)
	discharged := admitted.Add(48 * time.Hour)
	rec := &MedicalRecord{PatientID: "P001", AdmissionDate: admitted, DischargeDate: &discharged, PrimaryDiagnosis: "Flu", TreatmentSummary: "Rest"}
	if err := svc.CreateMedicalRecord(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := d.records.records[rec.ID]
	if !stored.AdmissionDate.Equal(admitted) || stored.AdmissionDate.Location() != time.UTC {
		t.Errorf("expected same instant in UTC, got %v", stored.AdmissionDate)
	}
	if stored.AdmissionDate.Hour() != 15 {
		t.Errorf("expected 15:00 UTC, got %v", stored.AdmissionDate)
	}
	if !stored.DischargeDate.Equal(discharged) || stored.DischargeDate.Location() != time.UTC {
		t.Errorf("expected discharge in UTC, got %v", stored.DischargeDate)
	}
}
