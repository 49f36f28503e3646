package caregivers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadState     = errors.New("invalid state")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type InviteInput struct {
	PatientID       string
	CaregiverUserID string
	Scopes          []Scope
}

func (s *Service) Invite(ctx context.Context, in InviteInput) (Grant, error) {
	patientID := strings.TrimSpace(in.PatientID)
	caregiverID := strings.TrimSpace(in.CaregiverUserID)

	if patientID == "" || caregiverID == "" {
		return Grant{}, ErrInvalidInput
	}
	if patientID == caregiverID {
		return Grant{}, ErrInvalidInput
	}

	// Sin scopes: solo lectura (medicamentos + historial de tomas).
	var scopes []Scope
	var err error
	if len(in.Scopes) == 0 {
		scopes = []Scope{ScopeMedicationsRead, ScopeDosesRead}
	} else {
		scopes, err = normalizeScopesStrict(in.Scopes)
		if err != nil {
			return Grant{}, err
		}
		if len(scopes) == 0 {
			return Grant{}, ErrInvalidInput
		}
	}

	now := s.now()

	existing, allMatches, err := s.findLatestMatch(ctx, patientID, caregiverID)
	if err == nil && existing.ID != "" && existing.Status != StatusRevoked {
		// Re-invitar: el más reciente gana, los demás se revocan y se
		// actualizan los scopes del ganador.
		s.revokeOtherMatches(ctx, existing.ID, allMatches, now)

		existing.Scopes = scopes
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return Grant{}, err
		}
		return existing, nil
	}

	g := Grant{
		ID:              uuid.NewString(),
		PatientID:       patientID,
		CaregiverUserID: caregiverID,
		Scopes:          scopes,
		Status:          StatusInvited,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

func (s *Service) Accept(ctx context.Context, grantID, caregiverUserID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	caregiverUserID = strings.TrimSpace(caregiverUserID)

	if grantID == "" || caregiverUserID == "" {
		return Grant{}, ErrInvalidInput
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}

	if g.CaregiverUserID != caregiverUserID {
		return Grant{}, ErrForbidden
	}
	if g.Status == StatusRevoked {
		return Grant{}, ErrBadState
	}

	// Idempotente
	if g.Status == StatusActive {
		return g, nil
	}
	if g.Status != StatusInvited {
		return Grant{}, ErrBadState
	}

	g.Status = StatusActive
	g.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// Revoke lo puede hacer solo el paciente dueño del grant.
func (s *Service) Revoke(ctx context.Context, grantID, patientID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	patientID = strings.TrimSpace(patientID)

	if grantID == "" || patientID == "" {
		return Grant{}, ErrInvalidInput
	}

	g, err := s.repo.GetByID(ctx, grantID)
	if err != nil {
		return Grant{}, ErrNotFound
	}

	if g.PatientID != patientID {
		return Grant{}, ErrForbidden
	}

	// Idempotente
	if g.Status == StatusRevoked {
		return g, nil
	}

	now := s.now()
	g.Status = StatusRevoked
	g.UpdatedAt = now
	g.RevokedAt = &now

	if err := s.repo.Update(ctx, g); err != nil {
		return Grant{}, err
	}
	return g, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]Grant, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]Grant, error) {
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if caregiverUserID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByCaregiver(ctx, caregiverUserID)
}

func (s *Service) GetActiveGrant(ctx context.Context, patientID, caregiverUserID string) (Grant, error) {
	patientID = strings.TrimSpace(patientID)
	caregiverUserID = strings.TrimSpace(caregiverUserID)

	if patientID == "" || caregiverUserID == "" {
		return Grant{}, ErrInvalidInput
	}
	g, err := s.repo.GetActiveGrant(ctx, patientID, caregiverUserID)
	if err != nil {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

// Authorize decide si userID puede actuar sobre patientID con el scope dado.
// El propio paciente siempre puede; un cuidador necesita grant activo con el scope.
func (s *Service) Authorize(ctx context.Context, patientID, userID string, scope Scope) (ActorType, error) {
	patientID = strings.TrimSpace(patientID)
	userID = strings.TrimSpace(userID)
	if patientID == "" || userID == "" {
		return "", ErrForbidden
	}
	if patientID == userID {
		return ActorPatient, nil
	}

	g, err := s.GetActiveGrant(ctx, patientID, userID)
	if err != nil || !HasScope(g, scope) {
		return "", ErrForbidden
	}
	return ActorCaregiver, nil
}

// HasScope valida si el grant incluye un scope.
func HasScope(g Grant, scope Scope) bool {
	for _, s := range g.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (s *Service) findLatestMatch(ctx context.Context, patientID, caregiverID string) (Grant, []Grant, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return Grant{}, nil, err
	}

	matches := make([]Grant, 0)
	var winner Grant
	hasWinner := false

	for _, g := range items {
		if g.PatientID != patientID || g.CaregiverUserID != caregiverID {
			continue
		}
		matches = append(matches, g)

		if !hasWinner || g.UpdatedAt.After(winner.UpdatedAt) {
			winner = g
			hasWinner = true
		}
	}

	if !hasWinner {
		return Grant{}, matches, ErrNotFound
	}
	return winner, matches, nil
}

func (s *Service) revokeOtherMatches(ctx context.Context, winnerID string, matches []Grant, now time.Time) {
	for _, g := range matches {
		if g.ID == "" || g.ID == winnerID || g.Status == StatusRevoked {
			continue
		}
		g.Status = StatusRevoked
		g.UpdatedAt = now
		g.RevokedAt = &now
		_ = s.repo.Update(ctx, g) // best-effort
	}
}

func normalizeScopesStrict(in []Scope) ([]Scope, error) {
	allowed := map[Scope]struct{}{
		ScopeMedicationsRead:   {},
		ScopeMedicationsManage: {},
		ScopeDosesRead:         {},
		ScopeDosesRecord:       {},
	}

	seen := map[Scope]struct{}{}
	out := make([]Scope, 0, len(in))

	for _, raw := range in {
		s := Scope(strings.TrimSpace(string(raw)))
		if s == "" {
			continue
		}
		if _, ok := allowed[s]; !ok {
			return nil, ErrInvalidInput
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out, nil
}
