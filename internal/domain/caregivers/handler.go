package caregivers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"medication-reminder/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Acciones del paciente sobre sus cuidadores
	r.Post("/patients/{patientID}/caregivers", inviteCaregiverHandler(svc))
	r.Get("/patients/{patientID}/caregivers", listCaregiversHandler(svc))

	// Cuidador acepta / paciente revoca
	r.Post("/caregiver-grants/{grantID}/accept", acceptGrantHandler(svc))
	r.Post("/caregiver-grants/{grantID}/revoke", revokeGrantHandler(svc))

	// Cuidador: pacientes que tiene a cargo (invitaciones incluidas)
	r.Get("/me/caregiving", listMyCaregivingHandler(svc))
}

type inviteCaregiverRequest struct {
	CaregiverUserID string  `json:"caregiver_user_id"`
	Scopes          []Scope `json:"scopes"`
}

// grantResponse representa un permiso de cuidador.
type grantResponse struct {
	ID              string     `json:"id"`
	PatientID       string     `json:"patient_id"`
	CaregiverUserID string     `json:"caregiver_user_id"`
	Scopes          []Scope    `json:"scopes"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
}

// inviteCaregiverHandler godoc
// @Summary Invitar cuidador
// @Description Solo el propio paciente puede invitar. Sin scopes se aplican `medications:read` y `doses:read`. Re-invitar al mismo cuidador actualiza los scopes del grant vigente.
// @Tags caregivers
// @Accept json
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param Authorization header string false "Bearer token en producción"
// @Param patientID path string true "ID del paciente"
// @Param payload body inviteCaregiverRequest true "Cuidador y scopes"
// @Success 201 {object} grantResponse
// @Failure 400 {string} string "invalid json / scope desconocido"
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/caregivers [post]
func inviteCaregiverHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if patientID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var req inviteCaregiverRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.CaregiverUserID) == "" {
			http.Error(w, "caregiver_user_id required", http.StatusBadRequest)
			return
		}

		g, err := svc.Invite(r.Context(), InviteInput{
			PatientID:       patientID,
			CaregiverUserID: req.CaregiverUserID,
			Scopes:          req.Scopes,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toGrantResponse(g))
	}
}

// listCaregiversHandler godoc
// @Summary Listar cuidadores del paciente
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param patientID path string true "ID del paciente"
// @Success 200 {array} grantResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 403 {string} string "forbidden"
// @Router /patients/{patientID}/caregivers [get]
func listCaregiversHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		patientID := chi.URLParam(r, "patientID")
		if patientID != claims.UserID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		items, err := svc.ListByPatient(r.Context(), patientID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			out = append(out, toGrantResponse(g))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// listMyCaregivingHandler godoc
// @Summary Pacientes a mi cargo
// @Description Grants donde el usuario autenticado es el cuidador. Filtro opcional `status` (CSV).
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param status query string false "invited,active,revoked"
// @Success 200 {array} grantResponse
// @Failure 401 {string} string "unauthorized"
// @Router /me/caregiving [get]
func listMyCaregivingHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		allowed := parseStatusFilter(r.URL.Query().Get("status"))

		items, err := svc.ListByCaregiver(r.Context(), claims.UserID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]grantResponse, 0, len(items))
		for _, g := range items {
			if len(allowed) > 0 {
				if _, ok := allowed[g.Status]; !ok {
					continue
				}
			}
			out = append(out, toGrantResponse(g))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// acceptGrantHandler godoc
// @Summary Aceptar invitación de cuidador
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param grantID path string true "ID del grant"
// @Success 200 {object} grantResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Failure 409 {string} string "invalid state"
// @Router /caregiver-grants/{grantID}/accept [post]
func acceptGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		g, err := svc.Accept(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toGrantResponse(g))
	}
}

// revokeGrantHandler godoc
// @Summary Revocar cuidador
// @Description Solo el paciente que otorgó el grant. El cuidador pierde acceso de inmediato.
// @Tags caregivers
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev, ID de usuario para depuración"
// @Param grantID path string true "ID del grant"
// @Success 200 {object} grantResponse
// @Failure 403 {string} string "forbidden"
// @Failure 404 {string} string "not found"
// @Router /caregiver-grants/{grantID}/revoke [post]
func revokeGrantHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.RequireUser(w, r)
		if !ok {
			return
		}

		g, err := svc.Revoke(r.Context(), chi.URLParam(r, "grantID"), claims.UserID)
		if err != nil {
			writeGrantError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toGrantResponse(g))
	}
}

func writeGrantError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrBadState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toGrantResponse(g Grant) grantResponse {
	return grantResponse{
		ID:              g.ID,
		PatientID:       g.PatientID,
		CaregiverUserID: g.CaregiverUserID,
		Scopes:          g.Scopes,
		Status:          g.Status,
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
		RevokedAt:       g.RevokedAt,
	}
}

func parseStatusFilter(raw string) map[Status]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[Status]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		s := Status(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}

// writeJSON está duplicado en los handlers de cada módulo a propósito;
// si aparece en más lugares conviene extraerlo.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
