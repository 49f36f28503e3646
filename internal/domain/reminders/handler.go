package reminders

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"medication-reminder/internal/domain/caregivers"
	"medication-reminder/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, grantsSvc *caregivers.Service, defaultTZOffsetMinutes int) {
	r.Get("/patients/{patientID}/occurrences", listOccurrencesHandler(svc, grantsSvc, defaultTZOffsetMinutes))
	r.Get("/patients/{patientID}/occurrences/next", nextOccurrenceHandler(svc, grantsSvc, defaultTZOffsetMinutes))
}

// occurrenceResponse es una dosis pendiente o próxima.
type occurrenceResponse struct {
	MedicationID   string    `json:"medication_id"`
	MedicationName string    `json:"medication_name"`
	Dosage         string    `json:"dosage,omitempty"`
	ScheduleRuleID string    `json:"schedule_rule_id"`
	TimeOfDay      string    `json:"time_of_day,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	// SlotFor es el scheduled_for a enviar al registrar la acción.
	SlotFor   time.Time `json:"slot_for"`
	Postponed bool      `json:"is_postponed"`
}

type nextResponse struct {
	Occurrence *occurrenceResponse `json:"occurrence"`
}

// listOccurrencesHandler godoc
// @Summary Dosis pendientes
// @Description Concilia los horarios activos con el registro de hoy y devuelve las ocurrencias ordenadas por instante. "Hoy" se calcula con `tz_offset_minutes` (minutos al este de UTC, ej. -180 para UTC-3). Cuidador necesita `doses:read`.
// @Tags occurrences
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param tz_offset_minutes query int false "Offset fijo del dispositivo en minutos al este de UTC"
// @Success 200 {array} occurrenceResponse
// @Failure 400 {string} string "tz_offset_minutes inválido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Failure 503 {string} string "couldn't determine next dose"
// @Router /patients/{patientID}/occurrences [get]
func listOccurrencesHandler(svc *Service, grantsSvc *caregivers.Service, defaultOffset int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, offset, ok := authorizeAndParse(w, r, grantsSvc, defaultOffset)
		if !ok {
			return
		}

		items, err := svc.Pending(r.Context(), patientID, svc.Now(), offset)
		if err != nil {
			writeReminderError(w, err)
			return
		}

		out := make([]occurrenceResponse, 0, len(items))
		for _, o := range items {
			out = append(out, toOccurrenceResponse(o))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// nextOccurrenceHandler godoc
// @Summary Próxima dosis
// @Description Primera ocurrencia de la lista de pendientes, o `occurrence: null` si no hay ninguna.
// @Tags occurrences
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Param tz_offset_minutes query int false "Offset fijo del dispositivo en minutos al este de UTC"
// @Success 200 {object} nextResponse
// @Failure 400 {string} string "tz_offset_minutes inválido"
// @Failure 403 {string} string "forbidden"
// @Failure 503 {string} string "couldn't determine next dose"
// @Router /patients/{patientID}/occurrences/next [get]
func nextOccurrenceHandler(svc *Service, grantsSvc *caregivers.Service, defaultOffset int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, offset, ok := authorizeAndParse(w, r, grantsSvc, defaultOffset)
		if !ok {
			return
		}

		o, found, err := svc.Next(r.Context(), patientID, svc.Now(), offset)
		if err != nil {
			writeReminderError(w, err)
			return
		}

		resp := nextResponse{}
		if found {
			or := toOccurrenceResponse(o)
			resp.Occurrence = &or
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func authorizeAndParse(w http.ResponseWriter, r *http.Request, grantsSvc *caregivers.Service, defaultOffset int) (string, int, bool) {
	claims, ok := middleware.RequireUser(w, r)
	if !ok {
		return "", 0, false
	}

	patientID := chi.URLParam(r, "patientID")
	if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeDosesRead); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", 0, false
	}

	offset := defaultOffset
	if v := strings.TrimSpace(r.URL.Query().Get("tz_offset_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !ValidTZOffset(n) {
			http.Error(w, "tz_offset_minutes must be an integer between -720 and 840", http.StatusBadRequest)
			return "", 0, false
		}
		offset = n
	}
	return patientID, offset, true
}

func writeReminderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUnavailable):
		http.Error(w, ErrUnavailable.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toOccurrenceResponse(o PendingOccurrence) occurrenceResponse {
	return occurrenceResponse{
		MedicationID:   o.MedicationID,
		MedicationName: o.MedicationName,
		Dosage:         o.Dosage,
		ScheduleRuleID: o.ScheduleRuleID,
		TimeOfDay:      o.TimeOfDay,
		ScheduledAt:    o.ScheduledAt,
		SlotFor:        o.SlotFor,
		Postponed:      o.Postponed,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
