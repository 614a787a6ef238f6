package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"project-tracker/backend/internal/membership/domain"
	projectdomain "project-tracker/backend/internal/project/domain"
	taskdomain "project-tracker/backend/internal/task/domain"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

const (
	uniqueViolation = "23505"

	constraintMembershipTeamUser = "memberships_team_id_user_id_key"
	constraintTeamOwnerName      = "teams_owner_id_name_key"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresRepository struct {
	db *sql.DB
	queries
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Tx         = (*pgTx)(nil)
)

// NewPostgresRepository returns a membership repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, queries: queries{db: db}}
}

// WithinTx runs fn inside a read-committed transaction. Row locks taken through the Tx are held until commit.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	sqlTx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(ctx, &pgTx{queries{db: sqlTx}}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	queries
}

func (t *pgTx) LockTeam(ctx context.Context, teamID string) (*teamdomain.Team, error) {
	return t.getTeam(ctx, teamID, true)
}

func (t *pgTx) LockTask(ctx context.Context, taskID string) (*taskdomain.Task, error) {
	return t.getTask(ctx, taskID, true)
}

// queries holds the SQL shared by the pooled repository and transactions.
type queries struct {
	db dbtx
}

// GetMembership returns the membership for the given team and user, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (q queries) GetMembership(ctx context.Context, teamID, userID string) (*domain.Membership, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, role, created_by, joined_at
		FROM memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// ListMemberships returns all memberships of the team ordered by role rank then join time.
func (q queries) ListMemberships(ctx context.Context, teamID string) ([]*domain.Membership, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, team_id, user_id, role, created_by, joined_at
		FROM memberships WHERE team_id = $1
		ORDER BY CASE role WHEN 'owner' THEN 0 WHEN 'manager' THEN 1 ELSE 2 END, joined_at`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMembership persists the membership. The membership must have ID set.
// A duplicate (team, user) pair returns domain.ErrAlreadyMember.
func (q queries) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO memberships (id, team_id, user_id, role, created_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.TeamID, m.UserID, string(m.Role), nullString(m.CreatedBy), m.JoinedAt)
	if isUniqueViolation(err, constraintMembershipTeamUser) {
		return fmt.Errorf("%w: user %s in team %s", domain.ErrAlreadyMember, m.UserID, m.TeamID)
	}
	return err
}

func (q queries) UpdateRole(ctx context.Context, teamID, userID string, role domain.Role) (*domain.Membership, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE memberships SET role = $3 WHERE team_id = $1 AND user_id = $2
		RETURNING id, team_id, user_id, role, created_by, joined_at`, teamID, userID, string(role))
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (q queries) DeleteMembership(ctx context.Context, teamID, userID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM memberships WHERE team_id = $1 AND user_id = $2`, teamID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q queries) HasAssignedTaskInProject(ctx context.Context, projectID, userID string) (bool, error) {
	var ok bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM tasks WHERE project_id = $1 AND assigned_to = $2)`, projectID, userID).Scan(&ok)
	return ok, err
}

// GetUser returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (q queries) GetUser(ctx context.Context, id string) (*userdomain.User, error) {
	var (
		u    userdomain.User
		name sql.NullString
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, email, username, name, is_project_manager, status, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.Username, &name, &u.IsProjectManager, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	return &u, nil
}

// CreateUser persists the user. The user must have ID set; it is not assigned by this method.
// A duplicate email or username returns domain.ErrUserExists.
func (q queries) CreateUser(ctx context.Context, u *userdomain.User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, name, is_project_manager, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.Username, sql.NullString{String: u.Name, Valid: u.Name != ""},
		u.IsProjectManager, string(u.Status), u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("%w: %s", domain.ErrUserExists, u.Email)
	}
	return err
}

// GetTeam returns the team for id, or nil if not found.
func (q queries) GetTeam(ctx context.Context, id string) (*teamdomain.Team, error) {
	return q.getTeam(ctx, id, false)
}

func (q queries) getTeam(ctx context.Context, id string, forUpdate bool) (*teamdomain.Team, error) {
	query := `SELECT id, name, description, owner_id, created_at, updated_at FROM teams WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var t teamdomain.Team
	err := q.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTeam persists the team. A duplicate name for the same owner returns domain.ErrTeamNameTaken.
func (q queries) CreateTeam(ctx context.Context, t *teamdomain.Team) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, t.OwnerID, t.CreatedAt, t.UpdatedAt)
	if isUniqueViolation(err, constraintTeamOwnerName) {
		return fmt.Errorf("%w: %q", domain.ErrTeamNameTaken, t.Name)
	}
	return err
}

func (q queries) DeleteTeam(ctx context.Context, teamID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	return err
}

// GetProject returns the project for id, or nil if not found.
func (q queries) GetProject(ctx context.Context, id string) (*projectdomain.Project, error) {
	var (
		p          projectdomain.Project
		manager    sql.NullString
		start, end sql.NullTime
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, description, manager_id, status, start_date, end_date, created_at
		FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &manager, &p.Status, &start, &end, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.ManagerID = stringPtr(manager)
	p.StartDate = timePtr(start)
	p.EndDate = timePtr(end)
	return &p, nil
}

func (q queries) CreateProject(ctx context.Context, p *projectdomain.Project) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO projects (id, team_id, name, description, manager_id, status, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.TeamID, p.Name, p.Description, nullString(p.ManagerID), string(p.Status),
		nullTime(p.StartDate), nullTime(p.EndDate), p.CreatedAt)
	return err
}

// GetTask returns the task for id, or nil if not found.
func (q queries) GetTask(ctx context.Context, id string) (*taskdomain.Task, error) {
	return q.getTask(ctx, id, false)
}

func (q queries) getTask(ctx context.Context, id string, forUpdate bool) (*taskdomain.Task, error) {
	query := `
		SELECT id, project_id, title, description, assigned_to, created_by, status, due_date, completed_at, created_at, updated_at
		FROM tasks WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		t                   taskdomain.Task
		assigned, createdBy sql.NullString
		due, completed      sql.NullTime
	)
	err := q.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description,
		&assigned, &createdBy, &t.Status, &due, &completed, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.AssignedTo = stringPtr(assigned)
	t.CreatedBy = stringPtr(createdBy)
	t.DueDate = timePtr(due)
	t.CompletedAt = timePtr(completed)
	return &t, nil
}

func (q queries) CreateTask(ctx context.Context, t *taskdomain.Task) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, assigned_to, created_by, status, due_date, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.ID, t.ProjectID, t.Title, t.Description, nullString(t.AssignedTo), nullString(t.CreatedBy),
		string(t.Status), nullTime(t.DueDate), nullTime(t.CompletedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

func (q queries) UpdateTaskStatus(ctx context.Context, t *taskdomain.Task) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, completed_at = $3, updated_at = $4 WHERE id = $1`,
		t.ID, string(t.Status), nullTime(t.CompletedAt), t.UpdatedAt)
	return err
}

func (q queries) UnassignTasks(ctx context.Context, teamID, userID string, at time.Time) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		UPDATE tasks AS t
		SET assigned_to = NULL, status = 'unassigned', completed_at = NULL, updated_at = $3
		FROM projects AS p
		WHERE t.project_id = p.id AND p.team_id = $1 AND t.assigned_to = $2
		RETURNING t.id`, teamID, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(s scanner) (*domain.Membership, error) {
	var (
		m         domain.Membership
		role      string
		createdBy sql.NullString
	)
	if err := s.Scan(&m.ID, &m.TeamID, &m.UserID, &role, &createdBy, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	m.CreatedBy = stringPtr(createdBy)
	return &m, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
