package projects

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrProjectNotFound is returned when a project does not exist or
	// the caller has no access to it
	ErrProjectNotFound = errors.New("project not found")

	// ErrMilestoneNotFound is returned when a milestone does not exist
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrInvalidStatus is returned for a status outside the closed set
	ErrInvalidStatus = errors.New("invalid status")
)

// ProjectStatus represents a project's lifecycle state
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
)

func (s ProjectStatus) IsValid() bool {
	return s == ProjectActive || s == ProjectPaused || s == ProjectCompleted
}

// MilestoneStatus represents a milestone's progress state
type MilestoneStatus string

const (
	MilestonePlanned    MilestoneStatus = "planned"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneDone       MilestoneStatus = "done"
)

func (s MilestoneStatus) IsValid() bool {
	return s == MilestonePlanned || s == MilestoneInProgress || s == MilestoneDone
}

// Project is a client engagement tracked in the portal
type Project struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	ClientUserID uuid.UUID     `db:"client_user_id" json:"client_user_id"`
	Title        string        `db:"title" json:"title"`
	Description  string        `db:"description" json:"description"`
	Status       ProjectStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// Milestone is a deliverable within a project
type Milestone struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ProjectID uuid.UUID       `db:"project_id" json:"project_id"`
	Title     string          `db:"title" json:"title"`
	Status    MilestoneStatus `db:"status" json:"status"`
	DueDate   *time.Time      `db:"due_date" json:"due_date,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
