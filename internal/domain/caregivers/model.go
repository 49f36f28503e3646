package caregivers

import "time"

type Scope string

const (
	ScopeMedicationsRead   Scope = "medications:read"
	ScopeMedicationsManage Scope = "medications:manage"
	ScopeDosesRead         Scope = "doses:read"
	ScopeDosesRecord       Scope = "doses:record"
)

type Status string

const (
	StatusInvited Status = "invited"
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// ActorType indica quién actúa sobre los datos del paciente.
type ActorType string

const (
	ActorPatient   ActorType = "PATIENT"
	ActorCaregiver ActorType = "CAREGIVER"
)

// Grant autoriza a un cuidador a actuar en nombre de un paciente.
type Grant struct {
	ID string

	PatientID       string // quien comparte
	CaregiverUserID string

	Scopes []Scope
	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
	RevokedAt *time.Time
}
