package caregivers

import (
	"context"
	"errors"
	"testing"
	"time"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

var errRepoNotFound = errors.New("repo: not found")

type testRepo struct {
	byID map[string]Grant
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Grant{}}
}

func (r *testRepo) Create(ctx context.Context, g Grant) error {
	if g.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[g.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[g.ID] = g
	return nil
}

func (r *testRepo) Update(ctx context.Context, g Grant) error {
	if _, ok := r.byID[g.ID]; !ok {
		return errRepoNotFound
	}
	r.byID[g.ID] = g
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Grant, error) {
	g, ok := r.byID[id]
	if !ok {
		return Grant{}, errRepoNotFound
	}
	return g, nil
}

func (r *testRepo) ListByPatient(ctx context.Context, patientID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.PatientID == patientID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *testRepo) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]Grant, error) {
	out := make([]Grant, 0)
	for _, g := range r.byID {
		if g.CaregiverUserID == caregiverUserID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *testRepo) GetActiveGrant(ctx context.Context, patientID, caregiverUserID string) (Grant, error) {
	var winner Grant
	has := false
	for _, g := range r.byID {
		if g.PatientID != patientID || g.CaregiverUserID != caregiverUserID || g.Status != StatusActive {
			continue
		}
		if !has || g.UpdatedAt.After(winner.UpdatedAt) {
			winner = g
			has = true
		}
	}
	if !has {
		return Grant{}, errRepoNotFound
	}
	return winner, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// -------------------------
// Tests
// -------------------------

func TestService_Invite_DefaultScopes_WhenEmpty(t *testing.T) {
	svc := NewService(newTestRepo())
	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	g, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
	})
	if err != nil {
		t.Fatalf("Invite returned error: %v", err)
	}
	if g.Status != StatusInvited {
		t.Fatalf("expected status invited, got %s", g.Status)
	}
	if !g.CreatedAt.Equal(now) || !g.UpdatedAt.Equal(now) {
		t.Fatalf("expected CreatedAt/UpdatedAt to be now")
	}
	if !HasScope(g, ScopeMedicationsRead) || !HasScope(g, ScopeDosesRead) {
		t.Fatalf("expected read-only default scopes, got %#v", g.Scopes)
	}
	if HasScope(g, ScopeDosesRecord) {
		t.Fatalf("default scopes must not allow recording doses")
	}
}

func TestService_Invite_RejectsSelfAndUnknownScope(t *testing.T) {
	svc := NewService(newTestRepo())

	if _, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "patient-1",
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self invite, got %v", err)
	}

	if _, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
		Scopes:          []Scope{ScopeDosesRead, Scope("doses:delete")},
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown scope, got %v", err)
	}
}

func TestService_Invite_Dedup_UpdatesSameGrant(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)

	now1 := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	now2 := now1.Add(5 * time.Minute)

	svc.now = fixedClock(now1)
	g1, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
		Scopes:          []Scope{ScopeDosesRead},
	})
	if err != nil {
		t.Fatalf("Invite #1 error: %v", err)
	}

	svc.now = fixedClock(now2)
	g2, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
		Scopes:          []Scope{ScopeDosesRead, ScopeDosesRecord, ScopeDosesRecord},
	})
	if err != nil {
		t.Fatalf("Invite #2 error: %v", err)
	}

	if g2.ID != g1.ID {
		t.Fatalf("expected same grant ID (dedup), got %s vs %s", g1.ID, g2.ID)
	}
	if !g2.UpdatedAt.Equal(now2) {
		t.Fatalf("expected UpdatedAt to change on reinvite")
	}
	if len(g2.Scopes) != 2 || !HasScope(g2, ScopeDosesRecord) {
		t.Fatalf("expected scopes updated and deduplicated, got %#v", g2.Scopes)
	}
	if len(repo.byID) != 1 {
		t.Fatalf("expected a single stored grant, got %d", len(repo.byID))
	}
}

func TestService_Invite_RevokesOlderDuplicates(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo)
	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	// data sucia: dos grants vivos para el mismo par
	_ = repo.Create(context.Background(), Grant{
		ID: "old", PatientID: "patient-1", CaregiverUserID: "carer-1",
		Scopes: []Scope{ScopeDosesRead}, Status: StatusActive,
		CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
	})
	_ = repo.Create(context.Background(), Grant{
		ID: "new", PatientID: "patient-1", CaregiverUserID: "carer-1",
		Scopes: []Scope{ScopeDosesRead}, Status: StatusActive,
		CreatedAt: now.Add(-time.Minute), UpdatedAt: now.Add(-time.Minute),
	})

	g, err := svc.Invite(context.Background(), InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
		Scopes:          []Scope{ScopeDosesRecord},
	})
	if err != nil {
		t.Fatalf("Invite error: %v", err)
	}
	if g.ID != "new" {
		t.Fatalf("expected latest grant to win, got %s", g.ID)
	}
	if repo.byID["old"].Status != StatusRevoked {
		t.Fatalf("expected older duplicate revoked, got %s", repo.byID["old"].Status)
	}
}

func TestService_Accept_SetsActive_AndIdempotent(t *testing.T) {
	svc := NewService(newTestRepo())
	now1 := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)

	svc.now = fixedClock(now1)
	g, err := svc.Invite(context.Background(), InviteInput{PatientID: "patient-1", CaregiverUserID: "carer-1"})
	if err != nil {
		t.Fatalf("Invite error: %v", err)
	}

	svc.now = fixedClock(now1.Add(2 * time.Minute))
	accepted, err := svc.Accept(context.Background(), g.ID, "carer-1")
	if err != nil {
		t.Fatalf("Accept error: %v", err)
	}
	if accepted.Status != StatusActive {
		t.Fatalf("expected active, got %s", accepted.Status)
	}

	accepted2, err := svc.Accept(context.Background(), g.ID, "carer-1")
	if err != nil {
		t.Fatalf("Accept #2 error: %v", err)
	}
	if accepted2.Status != StatusActive {
		t.Fatalf("expected active after idempotent accept, got %s", accepted2.Status)
	}
}

func TestService_Accept_WrongCaregiverOrRevoked(t *testing.T) {
	svc := NewService(newTestRepo())

	g, _ := svc.Invite(context.Background(), InviteInput{PatientID: "patient-1", CaregiverUserID: "carer-1"})

	if _, err := svc.Accept(context.Background(), g.ID, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Accept(context.Background(), "missing", "carer-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Revoke(context.Background(), g.ID, "patient-1"); err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if _, err := svc.Accept(context.Background(), g.ID, "carer-1"); !errors.Is(err, ErrBadState) {
		t.Fatalf("expected ErrBadState after revoke, got %v", err)
	}
}

func TestService_Revoke_OnlyPatient_AndIdempotent(t *testing.T) {
	svc := NewService(newTestRepo())
	now := time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	g, _ := svc.Invite(context.Background(), InviteInput{PatientID: "patient-1", CaregiverUserID: "carer-1"})

	if _, err := svc.Revoke(context.Background(), g.ID, "carer-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden when caregiver revokes, got %v", err)
	}

	revoked, err := svc.Revoke(context.Background(), g.ID, "patient-1")
	if err != nil {
		t.Fatalf("Revoke error: %v", err)
	}
	if revoked.Status != StatusRevoked || revoked.RevokedAt == nil || !revoked.RevokedAt.Equal(now) {
		t.Fatalf("expected revoked with RevokedAt=now, got %#v", revoked)
	}

	again, err := svc.Revoke(context.Background(), g.ID, "patient-1")
	if err != nil || again.Status != StatusRevoked {
		t.Fatalf("expected idempotent revoke, got %v %s", err, again.Status)
	}
}

func TestService_Authorize(t *testing.T) {
	svc := NewService(newTestRepo())
	ctx := context.Background()

	// el paciente siempre puede
	actor, err := svc.Authorize(ctx, "patient-1", "patient-1", ScopeDosesRecord)
	if err != nil || actor != ActorPatient {
		t.Fatalf("expected patient authorized, got %v %s", err, actor)
	}

	// sin grant
	if _, err := svc.Authorize(ctx, "patient-1", "carer-1", ScopeDosesRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without grant, got %v", err)
	}

	g, _ := svc.Invite(ctx, InviteInput{
		PatientID:       "patient-1",
		CaregiverUserID: "carer-1",
		Scopes:          []Scope{ScopeDosesRead},
	})

	// invitado pero no aceptado
	if _, err := svc.Authorize(ctx, "patient-1", "carer-1", ScopeDosesRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden before accept, got %v", err)
	}

	if _, err := svc.Accept(ctx, g.ID, "carer-1"); err != nil {
		t.Fatalf("Accept error: %v", err)
	}

	actor, err = svc.Authorize(ctx, "patient-1", "carer-1", ScopeDosesRead)
	if err != nil || actor != ActorCaregiver {
		t.Fatalf("expected caregiver authorized, got %v %s", err, actor)
	}

	// scope no otorgado
	if _, err := svc.Authorize(ctx, "patient-1", "carer-1", ScopeDosesRecord); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for missing scope, got %v", err)
	}

	// grant de otro paciente no sirve
	if _, err := svc.Authorize(ctx, "patient-2", "carer-1", ScopeDosesRead); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other patient, got %v", err)
	}
}
