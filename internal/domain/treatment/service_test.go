package treatment

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/domain/patient"
	"github.com/ehr/treatment-api/internal/platform/blobstore"
	"github.com/ehr/treatment-api/internal/platform/docstore"
)

// failingRecords injects errors into the treatment collection.
type failingRecords struct {
	docstore.Store
	insertErr error
	updateErr error
	updateRes *docstore.WriteResult

	beforeUpdate func(ctx context.Context, id string)
}

func (f *failingRecords) Insert(ctx context.Context, doc docstore.Document) (*docstore.WriteResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	return f.Store.Insert(ctx, doc)
}

func (f *failingRecords) Update(ctx context.Context, id string, doc docstore.Document) (*docstore.WriteResult, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.updateRes != nil {
		return f.updateRes, nil
	}
	if hook := f.beforeUpdate; hook != nil {
		f.beforeUpdate = nil
		hook(ctx, id)
	}
	return f.Store.Update(ctx, id, doc)
}

// failingObjects injects errors into the bucket.
type failingObjects struct {
	blobstore.Store
	listErr   error
	deleteErr error
}

func (f *failingObjects) GetObjects(ctx context.Context) ([]blobstore.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.GetObjects(ctx)
}

func (f *failingObjects) DeleteItem(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.Store.DeleteItem(ctx, key)
}

type fixture struct {
	svc      *Service
	query    *QueryService
	patients patient.Repository
	records  *failingRecords
	objects  *failingObjects
	bucket   *blobstore.MemoryStore
}

func newFixture() *fixture {
	backend := docstore.NewMemoryBackend()
	patients := patient.NewRepo(backend.Collection(patient.Collection))
	records := &failingRecords{Store: backend.Collection(Collection)}
	bucket := blobstore.NewMemoryStore()
	objects := &failingObjects{Store: bucket}

	repo := NewRepo(records)
	svc := NewService(repo, patients, objects, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{
		svc:      svc,
		query:    NewQueryService(repo, objects, zerolog.Nop()),
		patients: patients,
		records:  records,
		objects:  objects,
		bucket:   bucket,
	}
}

func (f *fixture) addPatient(t *testing.T, doctor string) string {
	t.Helper()
	res, err := f.patients.Insert(context.Background(), &patient.Patient{
		Name:      "A",
		Identity:  "X-" + doctor,
		Birth:     "2000-01-01",
		Gender:    "f",
		Symptoms:  "cough",
		DoctorUID: doctor,
	})
	if err != nil {
		t.Fatalf("insert patient: %v", err)
	}
	return res.ID
}

func upload(s string) Upload {
	return Upload{Data: []byte(s), Size: int64(len(s))}
}

func TestService_CreateWritesFileAndRecord(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")

	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("rest")); err != nil {
		t.Fatalf("create: %v", err)
	}

	obj, err := f.svc.GetFile(ctx, "D1", pid)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if string(obj.Body) != "rest" {
		t.Errorf("unexpected file body %q", obj.Body)
	}

	rec, err := NewRepo(f.records).FindByPatient(ctx, pid)
	if err != nil || rec == nil {
		t.Fatalf("find record: %v %v", rec, err)
	}
	if rec.DoctorUID != "D1" || rec.Cid != "J45" || rec.Cured != InTreatment {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Patient == nil || rec.Patient.ID != pid || rec.Patient.Symptoms != "cough" {
		t.Errorf("expected patient snapshot, got %+v", rec.Patient)
	}
	if rec.FileTreatment.Name != pid+".txt" || rec.FileTreatment.Size != 4 {
		t.Errorf("unexpected file treatment %+v", rec.FileTreatment)
	}
	if rec.CreatedAt != "Fri, 01 Mar 2024 12:00:00 GMT" {
		t.Errorf("unexpected created_at %q", rec.CreatedAt)
	}
}

func TestService_CreateTwice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")

	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("b")); !errors.Is(err, ErrAlreadyCreated) {
		t.Fatalf("expected ErrAlreadyCreated, got %v", err)
	}
	if err := f.svc.Create(ctx, "D2", pid, "J45", upload("b")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another doctor, got %v", err)
	}
}

func TestService_CreateForeignOrMissingPatient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")

	if err := f.svc.Create(ctx, "D2", pid, "J45", upload("a")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	objects, _ := f.bucket.GetObjects(ctx)
	if len(objects) != 0 {
		t.Errorf("no file should be written, got %v", objects)
	}

	err := f.svc.Create(ctx, "D1", "missing", "J45", upload("a"))
	if !docstore.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_CreateCompensatesFailedInsert(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")
	f.records.insertErr = errors.New("couch down")

	err := f.svc.Create(ctx, "D1", pid, "J45", upload("a"))
	if err == nil || err.Error() != "couch down" {
		t.Fatalf("expected insert error, got %v", err)
	}

	if _, err := f.bucket.GetItem(ctx, ObjectKey(pid, "D1")); !blobstore.IsNoSuchKey(err) {
		t.Fatalf("expected file to be removed, got %v", err)
	}
}

func TestService_CreateCompensationFailureKeepsInsertError(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")
	f.records.insertErr = errors.New("couch down")
	f.objects.deleteErr = errors.New("bucket down")

	err := f.svc.Create(ctx, "D1", pid, "J45", upload("a"))
	if err == nil || err.Error() != "couch down" {
		t.Fatalf("expected insert error, got %v", err)
	}
}

func TestService_GetFileMissing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.GetFile(context.Background(), "D1", "nope")
	if !blobstore.IsNoSuchKey(err) {
		t.Fatalf("expected NoSuchKey, got %v", err)
	}
}

func TestService_Update(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")
	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("rest")); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := f.svc.Update(ctx, "D1", pid, Cured, upload("done now"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Cured != Cured || rec.FileTreatment.Size != 8 || rec.UpdatedAt == "" {
		t.Errorf("unexpected record %+v", rec)
	}

	obj, _ := f.bucket.GetItem(ctx, ObjectKey(pid, "D1"))
	if string(obj.Body) != "done now" {
		t.Errorf("expected new file content, got %q", obj.Body)
	}

	stored, _ := NewRepo(f.records).FindByPatient(ctx, pid)
	if stored.Cured != Cured || stored.Rev != rec.Rev {
		t.Errorf("unexpected stored record %+v", stored)
	}
}

func TestService_UpdateErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")

	if _, err := f.svc.Update(ctx, "D1", pid, Cured, upload("x")); !errors.Is(err, ErrNoTreatmentFile) {
		t.Fatalf("expected ErrNoTreatmentFile, got %v", err)
	}

	// A file without a record.
	if err := f.bucket.CreateTextFile(ctx, ObjectKey(pid, "D1"), []byte("orphan")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Update(ctx, "D1", pid, Cured, upload("x")); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
	_ = f.bucket.DeleteItem(ctx, ObjectKey(pid, "D1"))

	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("rest")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// D2 has a file under its own key but does not own the record.
	if err := f.bucket.CreateTextFile(ctx, ObjectKey(pid, "D2"), []byte("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Update(ctx, "D2", pid, Cured, upload("x")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	f.objects.listErr = &blobstore.Error{Code: blobstore.CodeNoSuchBucket, StatusCode: http.StatusNotFound}
	_, err := f.svc.Update(ctx, "D1", pid, Cured, upload("x"))
	if !errors.Is(err, ErrListing) || !blobstore.IsNoSuchBucket(err) {
		t.Fatalf("expected tagged NoSuchBucket, got %v", err)
	}
}

func TestService_UpdateRestoresPreviousFile(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")
	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("first draft")); err != nil {
		t.Fatalf("create: %v", err)
	}

	f.records.updateErr = errors.New("couch down")
	if _, err := f.svc.Update(ctx, "D1", pid, Cured, upload("replacement")); err == nil {
		t.Fatal("expected update error")
	}

	obj, err := f.bucket.GetItem(ctx, ObjectKey(pid, "D1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(obj.Body) != "first draft" {
		t.Errorf("expected previous content restored, got %q", obj.Body)
	}
}

func TestService_UpdateUnexpectedStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	pid := f.addPatient(t, "D1")
	if err := f.svc.Create(ctx, "D1", pid, "J45", upload("first draft")); err != nil {
		t.Fatalf("create: %v", err)
	}

	f.records.updateRes = &docstore.WriteResult{Status: http.StatusAccepted, OK: true}
	if _, err := f.svc.Update(ctx, "D1", pid, Cured, upload("replacement")); !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
	}
	obj, _ := f.bucket.GetItem(ctx, ObjectKey(pid, "D1"))
	if string(obj.Body) != "first draft" {
		t.Errorf("expected previous content restored, got %q", obj.Body)
	}
}

func TestQueryService_JoinsFilesAndHidesPatientIDs(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	p1 := f.addPatient(t, "D1")
	p2 := f.addPatient(t, "D2")
	if err := f.svc.Create(ctx, "D1", p1, "J45", upload("inhaler")); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Create(ctx, "D2", p2, "A09", upload("fluids")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Update(ctx, "D2", p2, Cured, upload("fluids, recovered")); err != nil {
		t.Fatal(err)
	}

	docs, err := f.query.Query(ctx, QueryParams{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	for _, d := range docs {
		p := d["patient"].(map[string]interface{})
		if _, ok := p["_id"]; ok {
			t.Errorf("patient._id must be removed: %v", d)
		}
		if _, ok := p["name"]; ok {
			t.Errorf("patient.name must not be projected: %v", d)
		}
		if _, ok := d["doctorUid"]; ok {
			t.Errorf("doctorUid must not be projected: %v", d)
		}
		if p["symptoms"] != "cough" || p["gender"] != "f" || p["birth"] != "2000-01-01" {
			t.Errorf("unexpected patient projection %v", p)
		}
		switch d["cid"] {
		case "J45":
			if d["treatment"] != "inhaler" || d["cured"] != "in treatment" {
				t.Errorf("unexpected doc %v", d)
			}
		case "A09":
			if d["treatment"] != "fluids, recovered" || d["cured"] != "cured" {
				t.Errorf("unexpected doc %v", d)
			}
		default:
			t.Errorf("unexpected cid in %v", d)
		}
	}

	filtered, err := f.query.Query(ctx, QueryParams{Cured: "treatment"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(filtered) != 1 || filtered[0]["cid"] != "J45" {
		t.Errorf("expected only the in-treatment doc, got %v", filtered)
	}

	none, err := f.query.Query(ctx, QueryParams{Cid: "Z99"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v", none)
	}
}

func TestQueryService_ListingFailure(t *testing.T) {
	f := newFixture()
	f.objects.listErr = &blobstore.Error{Code: blobstore.CodeNoSuchBucket, StatusCode: http.StatusNotFound}
	_, err := f.query.Query(context.Background(), QueryParams{})
	if !blobstore.IsNoSuchBucket(err) {
		t.Fatalf("expected NoSuchBucket, got %v", err)
	}
}
