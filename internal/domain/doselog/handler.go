package doselog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medication-reminder/internal/domain/caregivers"
	"medication-reminder/internal/domain/medications"
	"medication-reminder/internal/middleware"
	"medication-reminder/pkg/schedule"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes monta las rutas del registro de tomas. recordMW se aplica
// solo al POST de acciones (rate limit por usuario).
func RegisterRoutes(r chi.Router, svc *Service, medsSvc *medications.Service, grantsSvc *caregivers.Service, recordMW ...func(http.Handler) http.Handler) {
	r.With(recordMW...).Post("/patients/{patientID}/medications/{medicationID}/actions", recordActionHandler(svc, medsSvc, grantsSvc))
	r.Get("/patients/{patientID}/logs", listLogsHandler(svc, grantsSvc))
}

// recordActionRequest es la acción sobre una ocurrencia concreta.
type recordActionRequest struct {
	ScheduleRuleID string          `json:"schedule_rule_id"`
	ScheduledFor   string          `json:"scheduled_for"` // RFC3339, el slot_for de la ocurrencia
	Action         schedule.Action `json:"action" enums:"TAKEN,SKIPPED,POSTPONED"`
	Note           string          `json:"note"`
	SupersedesID   string          `json:"supersedes_id"` // corrección de una entrada previa del mismo slot
}

// entryResponse representa una entrada del registro de tomas.
type entryResponse struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patient_id"`
	MedicationID   string          `json:"medication_id"`
	ScheduleRuleID string          `json:"schedule_rule_id,omitempty"`
	ScheduledFor   time.Time       `json:"scheduled_for"`
	Action         schedule.Action `json:"action"`
	ActionAt       time.Time       `json:"action_at"`
	Note           string          `json:"note,omitempty"`
	ActorType      ActorType       `json:"actor_type"`
	ActorID        string          `json:"actor_id"`
	SupersedesID   string          `json:"supersedes_id,omitempty"`
}

// recordActionHandler godoc
// @Summary Registrar acción sobre una dosis
// @Description Agrega TAKEN, SKIPPED o POSTPONED para el slot (medicamento, scheduled_for). El registro es append-only: si el slot ya está resuelto responde 409, salvo que se envíe `supersedes_id` apuntando a la última entrada del slot (corrección). El paciente siempre puede; un cuidador necesita `doses:record`.
// @Tags doses
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param medicationID path string true "ID del medicamento"
// @Param payload body recordActionRequest true "Acción; scheduled_for en RFC3339"
// @Success 201 {object} entryResponse
// @Failure 400 {string} string "invalid json / scheduled_for inválido / action inválida"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Failure 409 {string} string "dose slot already resolved"
// @Failure 429 {string} string "too many requests"
// @Router /patients/{patientID}/medications/{medicationID}/actions [post]
func recordActionHandler(svc *Service, medsSvc *medications.Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		actorType, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeDosesRecord)
		if err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		m, err := medsSvc.GetByID(r.Context(), chi.URLParam(r, "medicationID"))
		if err != nil || m.PatientID != patientID {
			if err != nil && !errors.Is(err, medications.ErrNotFound) && !errors.Is(err, medications.ErrInvalidInput) {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			http.Error(w, "medication not found", http.StatusNotFound)
			return
		}
		if !m.Active {
			http.Error(w, medications.ErrMedicationInactive.Error(), http.StatusConflict)
			return
		}

		var req recordActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		scheduledFor, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledFor))
		if err != nil {
			http.Error(w, "scheduled_for must be RFC3339", http.StatusBadRequest)
			return
		}

		ruleID := strings.TrimSpace(req.ScheduleRuleID)
		if ruleID != "" && !hasRule(m, ruleID) {
			http.Error(w, "schedule_rule_id does not belong to medication", http.StatusBadRequest)
			return
		}

		e, err := svc.Record(r.Context(), patientID, Actor{
			Type: toActorType(actorType),
			ID:   claims.UserID,
		}, RecordInput{
			MedicationID:   m.ID,
			ScheduleRuleID: ruleID,
			ScheduledFor:   scheduledFor,
			Action:         schedule.Action(strings.ToUpper(strings.TrimSpace(string(req.Action)))),
			Note:           req.Note,
			SupersedesID:   req.SupersedesID,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSupersedeMismatch):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, ErrSlotResolved):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(e))
	}
}

// listLogsHandler godoc
// @Summary Historial de tomas
// @Description Lista entradas del registro por action_at descendente. Cuidador necesita `doses:read`.
// @Tags doses
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Param from query string false "action_at mínimo (RFC3339, inclusivo)"
// @Param to query string false "action_at máximo (RFC3339, exclusivo)"
// @Param medication_id query string false "Filtrar por medicamento"
// @Param limit query int false "1-500, por defecto 100"
// @Success 200 {array} entryResponse
// @Failure 400 {string} string "Parámetros de filtro inválidos"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/logs [get]
func listLogsHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeDosesRead); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		filter, err := parseListFilter(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		items, err := svc.ListByPatient(r.Context(), patientID, filter)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]entryResponse, 0, len(items))
		for _, e := range items {
			out = append(out, toEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()

	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			return ListFilter{}, errors.New("limit must be an integer between 1 and 500")
		}
		limit = n
	}
	filter := ListFilter{
		Limit:        limit,
		MedicationID: strings.TrimSpace(q.Get("medication_id")),
	}

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("from must be RFC3339")
		}
		filter.From = &t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return ListFilter{}, errors.New("to must be RFC3339")
		}
		filter.To = &t
	}
	return filter, nil
}

func hasRule(m medications.Medication, ruleID string) bool {
	for _, s := range m.Schedules {
		if s.ID == ruleID {
			return true
		}
	}
	return false
}

func toActorType(a caregivers.ActorType) ActorType {
	if a == caregivers.ActorCaregiver {
		return ActorTypeCaregiver
	}
	return ActorTypePatient
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:             e.ID,
		PatientID:      e.PatientID,
		MedicationID:   e.MedicationID,
		ScheduleRuleID: e.ScheduleRuleID,
		ScheduledFor:   e.ScheduledFor,
		Action:         e.Action,
		ActionAt:       e.ActionAt,
		Note:           e.Note,
		ActorType:      e.Actor.Type,
		ActorID:        e.Actor.ID,
		SupersedesID:   e.SupersedesID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
