package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/treatment-api/internal/platform/auth"
	"github.com/ehr/treatment-api/internal/platform/httperr"
	"github.com/ehr/treatment-api/internal/platform/validation"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	svc, _ := newTestService()

	e := echo.New()
	e.Validator = validation.New()
	e.HTTPErrorHandler = httperr.Handler(zerolog.Nop())
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))
	return e
}

func do(e *echo.Echo, caller, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req = req.WithContext(auth.WithCaller(req.Context(), &auth.Claims{UID: caller}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return body
}

const patientA = `{"name":"A","gender":"f","symptoms":"s","identity":"X","birth":"2000-01-01"}`

func createPatient(t *testing.T, e *echo.Echo, caller string) string {
	t.Helper()
	rec := do(e, caller, http.MethodPost, "/api/v1/patient", patientA)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	return data["id"].(string)
}

func TestHandler_CreateThenGetByOwnerAndStranger(t *testing.T) {
	e := newTestServer(t)
	id := createPatient(t, e, "D1")

	rec := do(e, "D1", http.MethodGet, "/api/v1/patient/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	data := body["data"].(map[string]interface{})
	for k, want := range map[string]string{"name": "A", "gender": "f", "symptoms": "s", "identity": "X", "birth": "2000-01-01", "doctor_uid": "D1", "_id": id} {
		if data[k] != want {
			t.Errorf("%s: expected %q, got %v", k, want, data[k])
		}
	}

	rec = do(e, "D2", http.MethodGet, "/api/v1/patient/"+id, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if msg := decode(t, rec)["message"]; msg != "You are not authorized to access this patient" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestHandler_CreateMissingFields(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, "D1", http.MethodPost, "/api/v1/patient", `{"name":"A"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false || body["missing_data"] != "name, gender, symptoms, identity or birth" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_CreateDuplicate(t *testing.T) {
	e := newTestServer(t)
	id := createPatient(t, e, "D1")

	rec := do(e, "D2", http.MethodPost, "/api/v1/patient", patientA)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := decode(t, rec)["message"]; msg != "Patient already exists! ID: "+id {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestHandler_GetNotFound(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, "D1", http.MethodGet, "/api/v1/patient/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decode(t, rec)["response"]; got != "Patient not found with id of nope" {
		t.Errorf("unexpected response %v", got)
	}
}

func TestHandler_ListEmptyAndOwned(t *testing.T) {
	e := newTestServer(t)

	rec := do(e, "D1", http.MethodGet, "/api/v1/patient", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if data := decode(t, rec)["data"].([]interface{}); len(data) != 0 {
		t.Errorf("expected empty list, got %v", data)
	}

	createPatient(t, e, "D1")
	rec = do(e, "D1", http.MethodGet, "/api/v1/patient", "")
	if data := decode(t, rec)["data"].([]interface{}); len(data) != 1 {
		t.Errorf("expected one patient, got %v", data)
	}
	rec = do(e, "D2", http.MethodGet, "/api/v1/patient", "")
	if data := decode(t, rec)["data"].([]interface{}); len(data) != 0 {
		t.Errorf("expected none for D2, got %v", data)
	}
}

func TestHandler_Update(t *testing.T) {
	e := newTestServer(t)
	id := createPatient(t, e, "D1")

	rec := do(e, "D1", http.MethodPut, "/api/v1/patient/"+id, `{"symptoms":"cough"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode(t, rec)["data"].(map[string]interface{})
	if data["ok"] != true || data["id"] != id {
		t.Errorf("unexpected write result %v", data)
	}

	rec = do(e, "D2", http.MethodPut, "/api/v1/patient/"+id, `{"symptoms":"x"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	if msg := decode(t, rec)["message"]; msg != "You are not authorized to update this patient" {
		t.Errorf("unexpected message %v", msg)
	}

	rec = do(e, "D1", http.MethodPut, "/api/v1/patient/nope", `{"symptoms":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if msg := decode(t, rec)["message"]; msg != "Patient id nope not found" {
		t.Errorf("unexpected message %v", msg)
	}
}

func TestHandler_UpdateToTakenIdentity(t *testing.T) {
	e := newTestServer(t)
	first := createPatient(t, e, "D1")
	rec := do(e, "D1", http.MethodPost, "/api/v1/patient",
		`{"name":"B","gender":"m","symptoms":"s","identity":"Y","birth":"1990-01-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rec.Code)
	}
	second := decode(t, rec)["data"].(map[string]interface{})["id"].(string)

	rec = do(e, "D1", http.MethodPut, "/api/v1/patient/"+second, `{"identity":"X"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["success"] != false || body["message"] != "Patient already exists! ID: "+first {
		t.Errorf("unexpected body %v", body)
	}
}

func TestHandler_DeleteTwice(t *testing.T) {
	e := newTestServer(t)
	id := createPatient(t, e, "D1")

	rec := do(e, "D2", http.MethodDelete, "/api/v1/patient/"+id, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = do(e, "D1", http.MethodDelete, "/api/v1/patient/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(e, "D1", http.MethodDelete, "/api/v1/patient/"+id, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if msg := decode(t, rec)["message"]; msg != "Patient not found" {
		t.Errorf("unexpected message %v", msg)
	}
}
