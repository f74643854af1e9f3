package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atelierhq/portal/internal/accounts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const projectColumns = "id, client_user_id, title, description, status, created_at, updated_at"
const milestoneColumns = "id, project_id, title, status, due_date, created_at, updated_at"

// Service provides project and milestone operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new project service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// CreateParams contains the fields for a new project
type CreateParams struct {
	ClientUserID uuid.UUID
	Title        string
	Description  string
}

// Create creates a project for a client
func (s *Service) Create(ctx context.Context, params CreateParams) (*Project, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}

	var p Project

	query := `
		INSERT INTO projects (client_user_id, title, description)
		VALUES ($1, $2, $3)
		RETURNING ` + projectColumns

	err := s.pool.QueryRow(ctx, query, params.ClientUserID, title, strings.TrimSpace(params.Description)).Scan(
		&p.ID, &p.ClientUserID, &p.Title, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return &p, nil
}

// GetForIdentity retrieves a project, enforcing access: the OWNER sees
// every project, a CLIENT only their own. Missing and inaccessible
// collapse into the same not-found error.
func (s *Service) GetForIdentity(ctx context.Context, identity *accounts.Account, id uuid.UUID) (*Project, error) {
	var p Project

	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.ClientUserID, &p.Title, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if identity.Role != accounts.RoleOwner && p.ClientUserID != identity.ID {
		return nil, ErrProjectNotFound
	}

	return &p, nil
}

// ListForIdentity lists projects visible to the caller, newest first
func (s *Service) ListForIdentity(ctx context.Context, identity *accounts.Account) ([]Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE $1 OR client_user_id = $2
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, identity.Role == accounts.RoleOwner, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var items []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.ClientUserID, &p.Title, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}

	return items, nil
}

// UpdateParams contains the mutable project fields
type UpdateParams struct {
	Title       string
	Description string
	Status      ProjectStatus
}

// Update mutates a project's title, description, and status
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Project, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if !params.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var p Project

	query := `
		UPDATE projects
		SET title = $2, description = $3, status = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + projectColumns

	err := s.pool.QueryRow(ctx, query, id, title, strings.TrimSpace(params.Description), params.Status).Scan(
		&p.ID, &p.ClientUserID, &p.Title, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return &p, nil
}

// MilestoneParams contains the fields for creating or updating a milestone
type MilestoneParams struct {
	Title   string
	Status  MilestoneStatus
	DueDate *time.Time
}

// CreateMilestone adds a milestone to a project
func (s *Service) CreateMilestone(ctx context.Context, projectID uuid.UUID, params MilestoneParams) (*Milestone, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if params.Status == "" {
		params.Status = MilestonePlanned
	}
	if !params.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, projectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return nil, ErrProjectNotFound
	}

	var m Milestone

	query := `
		INSERT INTO milestones (project_id, title, status, due_date)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + milestoneColumns

	err := s.pool.QueryRow(ctx, query, projectID, title, params.Status, params.DueDate).Scan(
		&m.ID, &m.ProjectID, &m.Title, &m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milestone: %w", err)
	}

	return &m, nil
}

// ListMilestones lists a project's milestones in creation order
func (s *Service) ListMilestones(ctx context.Context, projectID uuid.UUID) ([]Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones WHERE project_id = $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var items []Milestone
	for rows.Next() {
		var m Milestone
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}

	return items, nil
}

// UpdateMilestone mutates a milestone's title, status, and due date
func (s *Service) UpdateMilestone(ctx context.Context, id uuid.UUID, params MilestoneParams) (*Milestone, error) {
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, errors.New("title is required")
	}
	if !params.Status.IsValid() {
		return nil, ErrInvalidStatus
	}

	var m Milestone

	query := `
		UPDATE milestones
		SET title = $2, status = $3, due_date = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + milestoneColumns

	err := s.pool.QueryRow(ctx, query, id, title, params.Status, params.DueDate).Scan(
		&m.ID, &m.ProjectID, &m.Title, &m.Status, &m.DueDate, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMilestoneNotFound
		}
		return nil, fmt.Errorf("failed to update milestone: %w", err)
	}

	return &m, nil
}
