package router_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medication-reminder/internal/domain/caregivers"
	"medication-reminder/internal/platform/metrics"
	"medication-reminder/internal/router"
)

type occurrence struct {
	MedicationID   string    `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	ScheduleRuleID string    `json:"schedule_rule_id"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	SlotFor        time.Time `json:"slot_for"`
	Postponed      bool      `json:"is_postponed"`
}

func TestHTTP_EndToEnd_DoseFlow(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{
		AuthVerifier: nil,
		Metrics:      metrics.New(),
	}))
	defer ts.Close()

	patientID := "patient-1"

	// 1) Paciente crea un medicamento diario dentro de 2h (UTC)
	tod := time.Now().UTC().Add(2 * time.Hour).Format("15:04")
	medID, ruleID := createMedication(t, ts.URL, patientID, tod)

	// 2) Aparece como ocurrencia pendiente
	occs := listOccurrences(t, ts.URL, patientID, patientID)
	if len(occs) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(occs))
	}
	occ := occs[0]
	if occ.MedicationID != medID || occ.ScheduleRuleID != ruleID || occ.Postponed {
		t.Fatalf("unexpected occurrence %+v", occ)
	}
	if occ.ScheduledAt.UTC().Format("15:04") != tod {
		t.Fatalf("expected scheduled at %s, got %s", tod, occ.ScheduledAt)
	}

	// 3) Registra TAKEN
	actionPath := "/patients/" + patientID + "/medications/" + medID + "/actions"
	var takenID string
	{
		st, body := doReq(t, ts.URL, "POST", actionPath, patientID, map[string]any{
			"schedule_rule_id": ruleID,
			"scheduled_for":    occ.SlotFor.Format(time.RFC3339),
			"action":           "TAKEN",
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 record taken, got %d body=%s", st, string(body))
		}
		var out struct {
			ID        string `json:"id"`
			ActorType string `json:"actor_type"`
		}
		_ = json.Unmarshal(body, &out)
		if out.ID == "" || out.ActorType != "PATIENT" {
			t.Fatalf("unexpected entry %s", string(body))
		}
		takenID = out.ID
	}

	// 4) El mismo slot no se puede volver a resolver
	{
		st, body := doReq(t, ts.URL, "POST", actionPath, patientID, map[string]any{
			"scheduled_for": occ.SlotFor.Format(time.RFC3339),
			"action":        "SKIPPED",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on resolved slot, got %d body=%s", st, string(body))
		}
	}

	// 5) Ya no hay nada pendiente
	if occs := listOccurrences(t, ts.URL, patientID, patientID); len(occs) != 0 {
		t.Fatalf("expected no occurrences after TAKEN, got %d", len(occs))
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences/next", patientID, nil)
		if st != http.StatusOK || !strings.Contains(string(body), `"occurrence":null`) {
			t.Fatalf("expected null next occurrence, got %d body=%s", st, string(body))
		}
	}

	// 6) Corrección: reemplaza la última entrada del slot
	{
		st, body := doReq(t, ts.URL, "POST", actionPath, patientID, map[string]any{
			"scheduled_for": occ.SlotFor.Format(time.RFC3339),
			"action":        "SKIPPED",
			"supersedes_id": takenID,
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 correction, got %d body=%s", st, string(body))
		}
	}

	// 7) Historial: la corrección primero
	{
		st, body := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/logs", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 logs, got %d body=%s", st, string(body))
		}
		var entries []map[string]any
		_ = json.Unmarshal(body, &entries)
		if len(entries) != 2 {
			t.Fatalf("expected 2 log entries, got %d", len(entries))
		}
	}

	// 8) Soft delete: no más acciones sobre el medicamento
	{
		st, body := doReq(t, ts.URL, "DELETE", "/patients/"+patientID+"/medications/"+medID, patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 delete, got %d body=%s", st, string(body))
		}
		st, body = doReq(t, ts.URL, "POST", actionPath, patientID, map[string]any{
			"scheduled_for": occ.SlotFor.Add(24 * time.Hour).Format(time.RFC3339),
			"action":        "TAKEN",
		})
		if st != http.StatusConflict {
			t.Fatalf("expected 409 on inactive medication, got %d body=%s", st, string(body))
		}
	}
}

func TestHTTP_EndToEnd_CaregiverScopes(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{AuthVerifier: nil}))
	defer ts.Close()

	patientID := "patient-1"
	caregiverID := "caregiver-1"

	tod := time.Now().UTC().Add(3 * time.Hour).Format("15:04")
	medID, _ := createMedication(t, ts.URL, patientID, tod)

	// 1) Sin grant, el cuidador no ve nada
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences", caregiverID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 before grant, got %d", st)
		}
	}

	// 2) Paciente invita con doses:read y doses:record
	var grantID string
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/caregivers", patientID, map[string]any{
			"caregiver_user_id": caregiverID,
			"scopes": []string{
				string(caregivers.ScopeDosesRead),
				string(caregivers.ScopeDosesRecord),
			},
		})
		if st != http.StatusCreated {
			t.Fatalf("expected 201 invite, got %d body=%s", st, string(body))
		}
		var out struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(body, &out)
		grantID = out.ID
	}

	// 3) Invitado todavía no alcanza
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences", caregiverID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 with pending invite, got %d", st)
		}
	}

	// 4) Cuidador acepta y ve sus pacientes
	{
		st, body := doReq(t, ts.URL, "POST", "/caregiver-grants/"+grantID+"/accept", caregiverID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 accept, got %d body=%s", st, string(body))
		}
		st, body = doReq(t, ts.URL, "GET", "/me/caregiving", caregiverID, nil)
		if st != http.StatusOK || !strings.Contains(string(body), patientID) {
			t.Fatalf("expected caregiving list with patient, got %d body=%s", st, string(body))
		}
	}

	// 5) Ve ocurrencias y registra en nombre del paciente
	occs := listOccurrences(t, ts.URL, patientID, caregiverID)
	if len(occs) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(occs))
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/medications/"+medID+"/actions", caregiverID, map[string]any{
			"scheduled_for": occs[0].SlotFor.Format(time.RFC3339),
			"action":        "POSTPONED",
		})
		if st != http.StatusCreated || !strings.Contains(string(body), `"actor_type":"CAREGIVER"`) {
			t.Fatalf("expected 201 by caregiver, got %d body=%s", st, string(body))
		}
	}

	// 6) Sin medications:manage no puede crear medicamentos
	{
		st, _ := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/medications", caregiverID, map[string]any{
			"name":      "Otro",
			"schedules": []map[string]any{{"time_of_day": "09:00", "frequency": "DAILY"}},
		})
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 creating medication without scope, got %d", st)
		}
	}

	// 7) Revocado, pierde acceso
	{
		st, body := doReq(t, ts.URL, "POST", "/caregiver-grants/"+grantID+"/revoke", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 revoke, got %d body=%s", st, string(body))
		}
		st, _ = doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences", caregiverID, nil)
		if st != http.StatusForbidden {
			t.Fatalf("expected 403 after revoke, got %d", st)
		}
	}
}

func TestHTTP_Validation(t *testing.T) {
	ts := httptest.NewServer(router.NewRouter(router.Options{}))
	defer ts.Close()

	patientID := "patient-1"

	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences", "", nil)
		if st != http.StatusUnauthorized {
			t.Fatalf("expected 401 without user, got %d", st)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/occurrences?tz_offset_minutes=abc", patientID, nil)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 bad offset, got %d", st)
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/medications", patientID, map[string]any{
			"name":      "Ibuprofeno",
			"schedules": []map[string]any{{"time_of_day": "09:00", "frequency": "HOURLY"}},
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 hourly without interval, got %d body=%s", st, string(body))
		}
	}
	{
		st, body := doReq(t, ts.URL, "POST", "/patients/"+patientID+"/medications", patientID, map[string]any{
			"name":      "Ibuprofeno",
			"schedules": []map[string]any{{"time_of_day": "9:5", "frequency": "DAILY"}},
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 single-digit time, got %d body=%s", st, string(body))
		}
	}
	for _, q := range []string{"limit=abc", "limit=0", "limit=9999", "from=ayer"} {
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/logs?"+q, patientID, nil)
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", q, st)
		}
	}
	{
		st, _ := doReq(t, ts.URL, "GET", "/patients/"+patientID+"/logs?limit=5", patientID, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 with valid limit, got %d", st)
		}
	}
	{
		st, body := doReq(t, ts.URL, "GET", "/health", "", nil)
		if st != http.StatusOK || string(body) != "ok" {
			t.Fatalf("expected health ok, got %d %s", st, string(body))
		}
		st, _ = doReq(t, ts.URL, "GET", "/ready", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected ready 200, got %d", st)
		}
	}
}

func createMedication(t *testing.T, baseURL, patientID, tod string) (string, string) {
	t.Helper()

	st, body := doReq(t, baseURL, "POST", "/patients/"+patientID+"/medications", patientID, map[string]any{
		"name":   "Amoxicilina",
		"dosage": "500 mg",
		"schedules": []map[string]any{
			{"time_of_day": tod, "frequency": "DAILY"},
		},
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 create medication, got %d body=%s", st, string(body))
	}

	var out struct {
		ID        string `json:"id"`
		Schedules []struct {
			ID string `json:"id"`
		} `json:"schedules"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid medication response: %v", err)
	}
	if out.ID == "" || len(out.Schedules) != 1 {
		t.Fatalf("unexpected medication response %s", string(body))
	}
	return out.ID, out.Schedules[0].ID
}

func listOccurrences(t *testing.T, baseURL, patientID, userID string) []occurrence {
	t.Helper()

	st, body := doReq(t, baseURL, "GET", "/patients/"+patientID+"/occurrences?tz_offset_minutes=0", userID, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 occurrences, got %d body=%s", st, string(body))
	}
	var out []occurrence
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("invalid occurrences response: %v", err)
	}
	return out
}

func doReq(t *testing.T, baseURL, method, path, userID string, payload any) (int, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-Debug-User-ID", userID)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}
