package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"project-tracker/backend/internal/audit"
	auditdomain "project-tracker/backend/internal/audit/domain"
	"project-tracker/backend/internal/email"
	"project-tracker/backend/internal/membership/domain"
	"project-tracker/backend/internal/membership/repository"
	"project-tracker/backend/internal/notification"
	"project-tracker/backend/internal/platform/rbac"
	teamdomain "project-tracker/backend/internal/team/domain"
	userdomain "project-tracker/backend/internal/user/domain"
)

const tracerName = "project-tracker/backend/membership"

// Metrics receives one call per finished lifecycle operation.
type Metrics interface {
	Operation(ctx context.Context, op, outcome string)
	InvariantViolation(ctx context.Context, op string)
}

type nopMetrics struct{}

func (nopMetrics) Operation(context.Context, string, string) {}
func (nopMetrics) InvariantViolation(context.Context, string) {}

// Deps are the collaborators of a Lifecycle. Nil fields get logging or no-op defaults.
type Deps struct {
	Notifier notification.Sink
	Mailer   email.Sink
	Audit    audit.AuditLogger
	Metrics  Metrics
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// Lifecycle adds, promotes and removes team members. Every mutation runs in one transaction
// that locks the team row first; notifications, email and audit records go out after commit
// and never fail the operation.
type Lifecycle struct {
	repo     repository.Repository
	resolver *rbac.Resolver
	notifier notification.Sink
	mailer   email.Sink
	audit    audit.AuditLogger
	metrics  Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewLifecycle returns a Lifecycle persisting through repo and checking permissions with resolver.
// The resolver is rebound to each transaction so checks see the locked state.
func NewLifecycle(repo repository.Repository, resolver *rbac.Resolver, deps Deps) *Lifecycle {
	l := &Lifecycle{
		repo:     repo,
		resolver: resolver,
		notifier: deps.Notifier,
		mailer:   deps.Mailer,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.resolver == nil {
		l.resolver = rbac.NewResolver(repo, rbac.WithLogger(l.logger))
	}
	if l.notifier == nil {
		l.notifier = notification.LogSink{Logger: l.logger}
	}
	if l.mailer == nil {
		l.mailer = email.LogSink{Logger: l.logger}
	}
	if l.audit == nil {
		l.audit = audit.Nop{}
	}
	if l.metrics == nil {
		l.metrics = nopMetrics{}
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	return l
}

// NewUser is the input to CreateUser.
type NewUser struct {
	Email            string
	Username         string
	Name             string
	IsProjectManager bool
}

// RemoveOptions controls the side effects of RemoveMember.
type RemoveOptions struct {
	// Notify sends the removal email in addition to the in-app notification.
	Notify bool
	Reason string
}

// RemovalResult describes a completed removal.
type RemovalResult struct {
	Membership        *domain.Membership
	UnassignedTaskIDs []string
	// EmailSent is false when Notify was not set or delivery failed.
	EmailSent bool
}

// DefaultTeamName is the name of the team provisioned for a new project manager.
func DefaultTeamName(u *userdomain.User) string {
	return fmt.Sprintf("%s's Team", u.DisplayName())
}

// CreateUser creates the user. A user flagged IsProjectManager also gets a default team with an
// owner membership in the same transaction.
func (l *Lifecycle) CreateUser(ctx context.Context, in NewUser) (*userdomain.User, *teamdomain.Team, error) {
	now := l.now()
	u := &userdomain.User{
		ID:               l.newID(),
		Email:            strings.TrimSpace(strings.ToLower(in.Email)),
		Username:         strings.TrimSpace(in.Username),
		Name:             strings.TrimSpace(in.Name),
		IsProjectManager: in.IsProjectManager,
		Status:           userdomain.UserStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := u.Validate(); err != nil {
		return nil, nil, err
	}
	var team *teamdomain.Team
	err := l.run(ctx, "create_user", "", func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		if err := tx.CreateUser(ctx, u); err != nil {
			return err
		}
		ob.audit("", u.ID, auditdomain.ActionUserCreated, "user:"+u.ID, "")
		if !u.IsProjectManager {
			return nil
		}
		t, err := l.createTeam(ctx, tx, ob, u, DefaultTeamName(u), "Default team")
		if err != nil {
			return err
		}
		team = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return u, team, nil
}

// CreateTeam creates a team owned by actor together with actor's owner membership.
func (l *Lifecycle) CreateTeam(ctx context.Context, actor *userdomain.User, name, description string) (*teamdomain.Team, error) {
	if actor == nil || actor.ID == "" {
		return nil, fmt.Errorf("%w: no acting user", domain.ErrPermissionDenied)
	}
	var team *teamdomain.Team
	err := l.run(ctx, "create_team", "", func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		t, err := l.createTeam(ctx, tx, ob, actor, name, description)
		team = t
		return err
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

func (l *Lifecycle) createTeam(ctx context.Context, tx repository.Tx, ob *outbox, owner *userdomain.User, name, description string) (*teamdomain.Team, error) {
	now := l.now()
	t := &teamdomain.Team{
		ID:          l.newID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     owner.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := tx.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	createdBy := owner.ID
	m := &domain.Membership{
		ID:        l.newID(),
		TeamID:    t.ID,
		UserID:    owner.ID,
		Role:      domain.RoleOwner,
		CreatedBy: &createdBy,
		JoinedAt:  now,
	}
	if err := tx.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	if err := checkOwnership(ctx, tx, t); err != nil {
		return nil, err
	}
	ob.notify(owner.ID, fmt.Sprintf("Team '%s' created successfully", t.Name),
		notification.CategorySuccess, notification.ActionTeamCreated, t)
	ob.audit(t.ID, owner.ID, auditdomain.ActionTeamCreated, "team:"+t.ID, t.Name)
	return t, nil
}

// AddMember adds userID to the team with role. The actor needs CanCreateTeamMembers.
// Owner can only be requested for the team owner, who always holds it already; an actor who is
// neither the team owner nor a global manager may only add members with RoleMember.
func (l *Lifecycle) AddMember(ctx context.Context, actor *userdomain.User, teamID, userID string, role domain.Role) (*domain.Membership, error) {
	if role == "" {
		role = domain.RoleMember
	}
	var added *domain.Membership
	err := l.run(ctx, "add_member", teamID, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		team, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if err := l.resolver.WithReader(tx).Require(ctx, rbac.CanCreateTeamMembers, actor, rbac.Target{Team: team}); err != nil {
			return err
		}
		if !role.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
		}
		if role == domain.RoleOwner && userID != team.OwnerID {
			return fmt.Errorf("%w: owner role is reserved for the team owner", domain.ErrInvalidRole)
		}
		if role != domain.RoleMember && !team.IsOwner(actor.ID) && !actor.IsProjectManager {
			return fmt.Errorf("%w: delegated additions are always members", domain.ErrInvalidRole)
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
		}
		existing, err := tx.GetMembership(ctx, team.ID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyMember, user.Username)
		}
		createdBy := actor.ID
		m := &domain.Membership{
			ID:        l.newID(),
			TeamID:    team.ID,
			UserID:    userID,
			Role:      role,
			CreatedBy: &createdBy,
			JoinedAt:  l.now(),
		}
		if err := m.Validate(); err != nil {
			return err
		}
		if err := tx.CreateMembership(ctx, m); err != nil {
			return err
		}
		if err := checkOwnership(ctx, tx, team); err != nil {
			return err
		}
		added = m

		ob.notify(userID, fmt.Sprintf("You have been added to team '%s' by %s", team.Name, actor.Username),
			notification.CategorySuccess, notification.ActionTeamJoined, team)
		if !team.IsOwner(actor.ID) {
			ob.notify(team.OwnerID, fmt.Sprintf("%s has been added to %s by %s", user.Username, team.Name, actor.Username),
				notification.CategoryInfo, notification.ActionMemberAdded, team)
		}
		ob.audit(team.ID, actor.ID, auditdomain.ActionMemberAdded, "membership:"+m.ID, "user="+userID+" role="+string(role))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateRole sets the role of userID in the team. The owner's membership never changes and Owner
// is never granted; both fail with ErrOwnerRoleImmutable whoever asks. Otherwise the actor needs
// CanManageTeam, and granting or revoking Manager is reserved to the team owner and global
// managers. Setting the current role is a successful no-op.
func (l *Lifecycle) UpdateRole(ctx context.Context, actor *userdomain.User, teamID, userID string, role domain.Role) (*domain.Membership, error) {
	return l.changeRole(ctx, "update_role", actor, teamID, userID, role, false)
}

// Promote is UpdateRole restricted to raising privilege; a lower role fails with ErrInvalidRole.
func (l *Lifecycle) Promote(ctx context.Context, actor *userdomain.User, teamID, userID string, role domain.Role) (*domain.Membership, error) {
	return l.changeRole(ctx, "promote", actor, teamID, userID, role, true)
}

func (l *Lifecycle) changeRole(ctx context.Context, op string, actor *userdomain.User, teamID, userID string, role domain.Role, raiseOnly bool) (*domain.Membership, error) {
	var result *domain.Membership
	err := l.run(ctx, op, teamID, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		team, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if team.IsOwner(userID) {
			return fmt.Errorf("%w: the team owner's role is fixed", domain.ErrOwnerRoleImmutable)
		}
		if role == domain.RoleOwner {
			return fmt.Errorf("%w: owner is granted only by owning the team", domain.ErrOwnerRoleImmutable)
		}
		if err := l.resolver.WithReader(tx).Require(ctx, rbac.CanManageTeam, actor, rbac.Target{Team: team}); err != nil {
			return err
		}
		if !role.Valid() {
			return fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
		}
		current, err := tx.GetMembership(ctx, team.ID, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s", domain.ErrUserNotMember, userID)
		}
		if current.Role == role {
			result = current
			return nil
		}
		if raiseOnly && role.Rank() < current.Role.Rank() {
			return fmt.Errorf("%w: %s is below current role %s", domain.ErrInvalidRole, role, current.Role)
		}
		if (role == domain.RoleManager || current.Role == domain.RoleManager) && !team.IsOwner(actor.ID) && !actor.IsProjectManager {
			return fmt.Errorf("%w: only the team owner grants or revokes %s", domain.ErrInvalidRole, domain.RoleManager)
		}
		updated, err := tx.UpdateRole(ctx, team.ID, userID, role)
		if err != nil {
			return err
		}
		if updated == nil {
			return fmt.Errorf("%w: %s", domain.ErrUserNotMember, userID)
		}
		if err := checkOwnership(ctx, tx, team); err != nil {
			return err
		}
		result = updated

		ob.notify(userID, fmt.Sprintf("Your role in team '%s' changed from %s to %s", team.Name, current.Role, role),
			notification.CategoryInfo, notification.ActionRoleChanged, team)
		ob.audit(team.ID, actor.ID, auditdomain.ActionMemberRoleChanged, "membership:"+updated.ID,
			"from="+string(current.Role)+" to="+string(role))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveMember removes userID from the team. Removing the team owner always fails with
// ErrCannotRemoveOwner. Members may remove themselves; removing anyone else needs CanManageTeam.
// The user's tasks in the team's projects are unassigned in the same transaction.
func (l *Lifecycle) RemoveMember(ctx context.Context, actor *userdomain.User, teamID, userID string, opts RemoveOptions) (*RemovalResult, error) {
	result := &RemovalResult{}
	var removal *removalEmail
	err := l.run(ctx, "remove_member", teamID, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		team, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if team.IsOwner(userID) {
			return domain.ErrCannotRemoveOwner
		}
		if actor == nil || actor.ID != userID {
			if err := l.resolver.WithReader(tx).Require(ctx, rbac.CanManageTeam, actor, rbac.Target{Team: team}); err != nil {
				return err
			}
		}
		m, err := tx.GetMembership(ctx, team.ID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: %s", domain.ErrUserNotMember, userID)
		}
		user, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		taskIDs, err := tx.UnassignTasks(ctx, team.ID, userID, l.now())
		if err != nil {
			return fmt.Errorf("unassign tasks: %w", err)
		}
		deleted, err := tx.DeleteMembership(ctx, team.ID, userID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %s", domain.ErrUserNotMember, userID)
		}
		if err := checkOwnership(ctx, tx, team); err != nil {
			return err
		}
		result.Membership = m
		result.UnassignedTaskIDs = taskIDs

		text := fmt.Sprintf("You have been removed from team '%s'", team.Name)
		if opts.Reason != "" {
			text += ": " + opts.Reason
		}
		ob.notify(userID, text, notification.CategoryWarning, notification.ActionTeamRemoved, team)
		if len(taskIDs) > 0 {
			ob.notify(team.OwnerID, fmt.Sprintf("%d task(s) in %s were unassigned after a member left", len(taskIDs), team.Name),
				notification.CategoryInfo, notification.ActionTaskUnassigned, team)
		}
		if opts.Notify && user != nil {
			removal = &removalEmail{user: user, team: team, reason: opts.Reason}
		}
		actorID := userID
		if actor != nil {
			actorID = actor.ID
		}
		ob.audit(team.ID, actorID, auditdomain.ActionMemberRemoved, "membership:"+m.ID,
			fmt.Sprintf("user=%s unassigned_tasks=%d", userID, len(taskIDs)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removal != nil {
		result.EmailSent = l.mailer.SendRemovalNotice(ctx, removal.user, removal.team, removal.reason)
		if !result.EmailSent {
			l.logger.WarnContext(ctx, "removal email not delivered", "team_id", teamID, "user_id", userID)
		}
	}
	return result, nil
}

// ListMembers returns the team's memberships, owner first. The actor needs HasTeamAccess.
func (l *Lifecycle) ListMembers(ctx context.Context, actor *userdomain.User, teamID string) ([]*domain.Membership, error) {
	team, err := l.repo.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTeamNotFound, teamID)
	}
	if err := l.resolver.Require(ctx, rbac.HasTeamAccess, actor, rbac.Target{Team: team}); err != nil {
		return nil, err
	}
	return l.repo.ListMemberships(ctx, teamID)
}

// DeleteTeam deletes the team with its memberships and projects. Only the team owner may do this.
func (l *Lifecycle) DeleteTeam(ctx context.Context, actor *userdomain.User, teamID string) error {
	return l.run(ctx, "delete_team", teamID, func(ctx context.Context, tx repository.Tx, ob *outbox) error {
		team, err := lockTeam(ctx, tx, teamID)
		if err != nil {
			return err
		}
		if actor == nil || !team.IsOwner(actor.ID) {
			return fmt.Errorf("%w: only the team owner can delete the team", domain.ErrPermissionDenied)
		}
		members, err := tx.ListMemberships(ctx, team.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTeam(ctx, team.ID); err != nil {
			return err
		}
		for _, m := range members {
			if m.UserID == actor.ID {
				continue
			}
			ob.notify(m.UserID, fmt.Sprintf("Team '%s' has been deleted", team.Name),
				notification.CategoryWarning, notification.ActionTeamRemoved, nil)
		}
		ob.audit(team.ID, actor.ID, auditdomain.ActionTeamDeleted, "team:"+team.ID, team.Name)
		return nil
	})
}

func lockTeam(ctx context.Context, tx repository.Tx, teamID string) (*teamdomain.Team, error) {
	team, err := tx.LockTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTeamNotFound, teamID)
	}
	return team, nil
}

// checkOwnership re-reads the team's memberships inside tx and verifies the ownership invariant.
func checkOwnership(ctx context.Context, tx repository.Tx, team *teamdomain.Team) error {
	ms, err := tx.ListMemberships(ctx, team.ID)
	if err != nil {
		return err
	}
	return domain.CheckOwnership(team.ID, team.OwnerID, ms)
}

// run executes fn in one transaction, then dispatches what fn queued. Side effects are dropped
// when the transaction fails.
func (l *Lifecycle) run(ctx context.Context, op, teamID string, fn func(ctx context.Context, tx repository.Tx, ob *outbox) error) error {
	ctx, span := l.tracer.Start(ctx, "membership."+op, trace.WithAttributes(attribute.String("team_id", teamID)))
	defer span.End()

	ob := &outbox{}
	err := l.repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, tx, ob)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrInvariantViolation) {
			l.metrics.InvariantViolation(ctx, op)
			l.logger.ErrorContext(ctx, "team ownership invariant violated, transaction aborted",
				"operation", op, "team_id", teamID, "error", err)
		}
		l.metrics.Operation(ctx, op, outcome(err))
		return err
	}
	l.metrics.Operation(ctx, op, "ok")
	l.logger.InfoContext(ctx, "membership operation committed", "operation", op, "team_id", teamID)
	l.dispatch(ctx, ob)
	return nil
}

func (l *Lifecycle) dispatch(ctx context.Context, ob *outbox) {
	for _, msg := range ob.notes {
		l.notifier.Notify(ctx, msg)
	}
	for _, a := range ob.audits {
		l.audit.LogEvent(ctx, a.teamID, a.userID, a.action, a.resource, a.metadata)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	case domain.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// outbox collects side effects during a transaction for delivery after commit.
type outbox struct {
	notes  []notification.Message
	audits []auditEvent
}

type auditEvent struct {
	teamID, userID, action, resource, metadata string
}

type removalEmail struct {
	user   *userdomain.User
	team   *teamdomain.Team
	reason string
}

func (o *outbox) notify(userID, text string, category notification.Category, action notification.Action, team *teamdomain.Team) {
	msg := notification.Message{UserID: userID, Text: text, Category: category, Action: action}
	if team != nil {
		msg.Related = &notification.Entity{Type: "team", ID: team.ID}
	}
	o.notes = append(o.notes, msg)
}

func (o *outbox) audit(teamID, userID, action, resource, metadata string) {
	o.audits = append(o.audits, auditEvent{teamID, userID, action, resource, metadata})
}
