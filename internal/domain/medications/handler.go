package medications

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/domain/caregivers"
	"medication-reminder/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, grantsSvc *caregivers.Service) {
	r.Post("/patients/{patientID}/medications", createMedicationHandler(svc, grantsSvc))
	r.Get("/patients/{patientID}/medications", listMedicationsHandler(svc, grantsSvc))
	r.Get("/patients/{patientID}/medications/{medicationID}", getMedicationHandler(svc, grantsSvc))
	r.Patch("/patients/{patientID}/medications/{medicationID}", updateMedicationHandler(svc, grantsSvc))
	r.Delete("/patients/{patientID}/medications/{medicationID}", deleteMedicationHandler(svc, grantsSvc))
}

type scheduleRequest struct {
	TimeOfDay     string `json:"time_of_day"` // HH:MM en UTC
	Frequency     string `json:"frequency" enums:"DAILY,HOURLY,WEEKLY"`
	IntervalHours int    `json:"interval_hours,omitempty"`
	DaysOfWeek    []int  `json:"days_of_week,omitempty"` // 0=domingo
}

type createMedicationRequest struct {
	Name         string            `json:"name"`
	Dosage       string            `json:"dosage"`
	Presentation string            `json:"presentation"`
	Instructions string            `json:"instructions"`
	Color        string            `json:"color"`
	Schedules    []scheduleRequest `json:"schedules"`
}

type updateMedicationRequest struct {
	Name         *string            `json:"name"`
	Dosage       *string            `json:"dosage"`
	Presentation *string            `json:"presentation"`
	Instructions *string            `json:"instructions"`
	Color        *string            `json:"color"`
	Schedules    *[]scheduleRequest `json:"schedules"`
}

type scheduleResponse struct {
	ID            string    `json:"id"`
	TimeOfDay     string    `json:"time_of_day"`
	Frequency     string    `json:"frequency"`
	IntervalHours int       `json:"interval_hours,omitempty"`
	DaysOfWeek    []int     `json:"days_of_week,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

// medicationResponse representa un medicamento con sus reglas de horario.
type medicationResponse struct {
	ID           string             `json:"id"`
	PatientID    string             `json:"patient_id"`
	Name         string             `json:"name"`
	Dosage       string             `json:"dosage"`
	Presentation string             `json:"presentation,omitempty"`
	Instructions string             `json:"instructions,omitempty"`
	Color        string             `json:"color,omitempty"`
	Active       bool               `json:"active"`
	Schedules    []scheduleResponse `json:"schedules"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	DeletedAt    *time.Time         `json:"deleted_at,omitempty"`
}

// createMedicationHandler godoc
// @Summary Registrar medicamento
// @Description Crea un medicamento con una o más reglas de horario (DAILY, HOURLY o WEEKLY). `time_of_day` se interpreta en UTC. El paciente siempre puede; un cuidador necesita `medications:manage`.
// @Tags medications
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param payload body createMedicationRequest true "Medicamento y horarios"
// @Success 201 {object} medicationResponse
// @Failure 400 {string} string "invalid json / reglas inválidas"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/medications [post]
func createMedicationHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeMedicationsManage); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req createMedicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		m, err := svc.Create(r.Context(), patientID, CreateInput{
			Name:         req.Name,
			Dosage:       req.Dosage,
			Presentation: req.Presentation,
			Instructions: req.Instructions,
			Color:        req.Color,
			Schedules:    toScheduleInputs(req.Schedules),
		})
		if err != nil {
			writeMedicationError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toMedicationResponse(m))
	}
}

// listMedicationsHandler godoc
// @Summary Listar medicamentos del paciente
// @Description Por defecto solo activos; `include_inactive=true` incluye los dados de baja. Cuidador necesita `medications:read`.
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Param include_inactive query bool false "Incluir medicamentos dados de baja"
// @Success 200 {array} medicationResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/medications [get]
func listMedicationsHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeMedicationsRead); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		includeInactive := strings.EqualFold(r.URL.Query().Get("include_inactive"), "true")

		items, err := svc.ListByPatient(r.Context(), patientID, includeInactive)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]medicationResponse, 0, len(items))
		for _, m := range items {
			out = append(out, toMedicationResponse(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getMedicationHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeMedicationsRead); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		m, ok := loadPatientMedication(w, r, svc, patientID)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toMedicationResponse(m))
	}
}

// updateMedicationHandler godoc
// @Summary Editar medicamento
// @Description PATCH: solo se tocan los campos enviados. Si viene `schedules`, las reglas actuales quedan inactivas y se crean las nuevas (el historial sigue apuntando a las viejas).
// @Tags medications
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Param medicationID path string true "ID del medicamento"
// @Param payload body updateMedicationRequest true "Campos a modificar"
// @Success 200 {object} medicationResponse
// @Failure 400 {string} string "invalid json / reglas inválidas"
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Failure 409 {string} string "medication is inactive"
// @Router /patients/{patientID}/medications/{medicationID} [patch]
func updateMedicationHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeMedicationsManage); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		current, ok := loadPatientMedication(w, r, svc, patientID)
		if !ok {
			return
		}

		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()

		var req updateMedicationRequest
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		in := UpdateInput{
			Name:         req.Name,
			Dosage:       req.Dosage,
			Presentation: req.Presentation,
			Instructions: req.Instructions,
			Color:        req.Color,
		}
		if req.Schedules != nil {
			schedules := toScheduleInputs(*req.Schedules)
			in.Schedules = &schedules
		}

		updated, err := svc.Update(r.Context(), current.ID, in)
		if err != nil {
			writeMedicationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toMedicationResponse(updated))
	}
}

// deleteMedicationHandler godoc
// @Summary Dar de baja medicamento
// @Description Soft delete: queda inactivo y deja de generar ocurrencias; el historial de tomas se conserva.
// @Tags medications
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Param medicationID path string true "ID del medicamento"
// @Success 200 {object} medicationResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "medication not found"
// @Router /patients/{patientID}/medications/{medicationID} [delete]
func deleteMedicationHandler(svc *Service, grantsSvc *caregivers.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if _, err := grantsSvc.Authorize(r.Context(), patientID, claims.UserID, caregivers.ScopeMedicationsManage); err != nil {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		current, ok := loadPatientMedication(w, r, svc, patientID)
		if !ok {
			return
		}

		deleted, err := svc.SoftDelete(r.Context(), current.ID)
		if err != nil {
			writeMedicationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMedicationResponse(deleted))
	}
}

// loadPatientMedication responde 404 si no existe o es de otro paciente.
func loadPatientMedication(w http.ResponseWriter, r *http.Request, svc *Service, patientID string) (Medication, bool) {
	m, err := svc.GetByID(r.Context(), chi.URLParam(r, "medicationID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
			http.Error(w, "medication not found", http.StatusNotFound)
			return Medication{}, false
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return Medication{}, false
	}
	if m.PatientID != patientID {
		http.Error(w, "medication not found", http.StatusNotFound)
		return Medication{}, false
	}
	return m, true
}

func writeMedicationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "medication not found", http.StatusNotFound)
	case errors.Is(err, ErrMedicationInactive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toScheduleInputs(in []scheduleRequest) []ScheduleInput {
	out := make([]ScheduleInput, 0, len(in))
	for _, s := range in {
		out = append(out, ScheduleInput{
			TimeOfDay:     s.TimeOfDay,
			Frequency:     s.Frequency,
			IntervalHours: s.IntervalHours,
			DaysOfWeek:    s.DaysOfWeek,
		})
	}
	return out
}

func toMedicationResponse(m Medication) medicationResponse {
	schedules := make([]scheduleResponse, 0, len(m.Schedules))
	for _, s := range m.Schedules {
		schedules = append(schedules, scheduleResponse{
			ID:            s.ID,
			TimeOfDay:     s.TimeOfDay.String(),
			Frequency:     string(s.Frequency),
			IntervalHours: s.IntervalHours,
			DaysOfWeek:    s.DaysOfWeek,
			Active:        s.Active,
			CreatedAt:     s.CreatedAt,
		})
	}

	return medicationResponse{
		ID:           m.ID,
		PatientID:    m.PatientID,
		Name:         m.Name,
		Dosage:       m.Dosage,
		Presentation: m.Presentation,
		Instructions: m.Instructions,
		Color:        m.Color,
		Active:       m.Active,
		Schedules:    schedules,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		DeletedAt:    m.DeletedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
