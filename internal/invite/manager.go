package invite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vkotov/planhub/internal/database"
	"github.com/vkotov/planhub/internal/email"
	"github.com/vkotov/planhub/internal/model"
	"github.com/vkotov/planhub/internal/repository"
)

var (
	ErrNotFound   = errors.New("invitation not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("invitation is not pending")
	ErrExpired    = errors.New("invitation expired")
	ErrDuplicate  = errors.New("duplicate invitation")
	ErrValidation = errors.New("invalid request")
)

// Manager owns the invitation lifecycle. Every transition is a conditional
// store update keyed on the current status, so concurrent actors and other
// processes race safely: exactly one wins, the rest see a conflict.
type Manager struct {
	logger *slog.Logger
	dbm    *database.DatabaseManager
	users  repository.UserRepository
	mail   email.Sender

	ttl     time.Duration
	sweep   time.Duration
	baseURL string
}

func New(dbm *database.DatabaseManager, users repository.UserRepository, mail email.Sender, ttl, sweep time.Duration, baseURL string) *Manager {
	return &Manager{
		logger:  slog.Default().With("logger", "invites"),
		dbm:     dbm,
		users:   users,
		mail:    mail,
		ttl:     ttl,
		sweep:   sweep,
		baseURL: baseURL,
	}
}

// Start runs the periodic expiry sweep. The sweep is an optimization only,
// expiry is also enforced lazily on every read and action.
func (m *Manager) Start(ctx context.Context) {
	if m.sweep <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(m.sweep)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.ExpireStale()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// ExpireStale flips every overdue pending invitation to expired and drops
// its token.
func (m *Manager) ExpireStale() {
	err := m.dbm.InvitationQuery().
		Status(model.InviteStatusPending).
		ExpiresBefore(time.Now()).
		Update(map[string]any{"status": model.InviteStatusExpired, "token": nil})

	if err != nil && !errors.Is(err, database.ErrNoRows) {
		m.logger.Error("sweep failed", slog.Any("error", err))
	}
}

type CreateRequest struct {
	ProjectID uint
	Email     string
	Role      string
	Message   string
}

// Create validates the request, dedups against existing pending invitations
// for the same project and email, resolves the invitee account when one
// exists and mails the invite link. Requires membership-management
// capability on the project.
func (m *Manager) Create(actorUID string, req *CreateRequest) (*model.Invitation, error) {
	if req == nil || req.ProjectID == 0 {
		return nil, fmt.Errorf("%w: no project", ErrValidation)
	}

	addr := model.NormalizeEmail(req.Email)

	if !model.ValidEmail(addr) {
		return nil, fmt.Errorf("%w: bad email", ErrValidation)
	}

	// ownership is not grantable by invitation
	if !model.ValidRole(req.Role) || req.Role == model.RoleOwner {
		return nil, fmt.Errorf("%w: bad role %q", ErrValidation, req.Role)
	}

	project := m.dbm.ProjectQuery().Id(req.ProjectID).One()

	if project == nil {
		return nil, fmt.Errorf("%w: no project %d", ErrNotFound, req.ProjectID)
	}

	if !m.canManage(req.ProjectID, actorUID) {
		return nil, ErrForbidden
	}

	invitee := m.users.ResolveEmail(addr)

	if invitee != nil && m.dbm.MemberQuery().Project(req.ProjectID).User(invitee.GetLogin()).One() != nil {
		return nil, fmt.Errorf("%w: already a member", ErrDuplicate)
	}

	if m.dbm.InvitationQuery().Project(req.ProjectID).Email(addr).Status(model.InviteStatusPending).Count() > 0 {
		return nil, fmt.Errorf("%w: pending invitation exists", ErrDuplicate)
	}

	token := uuid.NewString()

	inv := &model.Invitation{
		ProjectID:    req.ProjectID,
		Project:      project,
		InviterUID:   actorUID,
		InviteeEmail: addr,
		InviteeUID:   invitee.GetLogin(),
		Role:         req.Role,
		Status:       model.InviteStatusPending,
		Token:        &token,
		ExpiresAt:    time.Now().Add(m.ttl),
		Message:      req.Message,
	}

	// the partial unique index on pending (project, email) catches a
	// concurrent create that slipped past the count
	if err := m.dbm.Create(inv); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: pending invitation exists", ErrDuplicate)
		}

		return nil, err
	}

	// delivery failure does not undo the invitation, resend is the retry
	// path
	if err := m.sendMail(inv, project); err != nil {
		m.logger.Warn("invite mail failed", slog.Any("error", err))
	}

	return inv, nil
}

// Accept grants project membership at the invited role and resolves the
// invitation, atomically. Exactly one of several concurrent accepts wins.
func (m *Manager) Accept(id uint, actorUID, actorEmail string) (*model.Invitation, error) {
	inv, err := m.getActionable(id, actorUID, actorEmail)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	err = m.dbm.Transaction(func(tx *database.DatabaseManager) error {
		// the expiry guard closes the window between the lazy check and
		// this update
		err := tx.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).ExpiresAfter(now).Update(map[string]any{
			"status":       model.InviteStatusAccepted,
			"token":        nil,
			"invitee_uid":  actorUID,
			"responded_at": now,
		})

		if errors.Is(err, database.ErrNoRows) {
			return ErrConflict
		}

		if err != nil {
			return err
		}

		return tx.Create(&model.Member{
			ProjectID: inv.ProjectID,
			UserUID:   actorUID,
			Role:      inv.Role,
		})
	})

	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}

		return nil, fmt.Errorf("accept: %w", err)
	}

	inv.Status = model.InviteStatusAccepted
	inv.Token = nil
	inv.InviteeUID = actorUID
	inv.RespondedAt = &now

	return inv, nil
}

// AcceptByToken is the email-link flow. A cancelled or resent invitation's
// old token resolves to nothing.
func (m *Manager) AcceptByToken(token, actorUID, actorEmail string) (*model.Invitation, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: no token", ErrValidation)
	}

	inv := m.dbm.InvitationQuery().Token(token).One()

	if inv == nil {
		return nil, ErrNotFound
	}

	return m.Accept(inv.ID, actorUID, actorEmail)
}

// Reject resolves the invitation with no membership side effect.
func (m *Manager) Reject(id uint, actorUID, actorEmail string) (*model.Invitation, error) {
	inv, err := m.getActionable(id, actorUID, actorEmail)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	err = m.dbm.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).ExpiresAfter(now).Update(map[string]any{
		"status":       model.InviteStatusRejected,
		"token":        nil,
		"responded_at": now,
	})

	if errors.Is(err, database.ErrNoRows) {
		return nil, ErrConflict
	}

	if err != nil {
		return nil, fmt.Errorf("reject: %w", err)
	}

	inv.Status = model.InviteStatusRejected
	inv.Token = nil
	inv.RespondedAt = &now

	return inv, nil
}

// Resend regenerates the token, pushes the expiry out and mails the invite
// again. The old token becomes unusable.
func (m *Manager) Resend(id uint, actorUID string) (*model.Invitation, error) {
	inv, err := m.getPendingManaged(id, actorUID)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	now := time.Now()
	expires := now.Add(m.ttl)

	err = m.dbm.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).ExpiresAfter(now).Update(map[string]any{
		"token":      token,
		"expires_at": expires,
	})

	if errors.Is(err, database.ErrNoRows) {
		return nil, ErrConflict
	}

	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}

	inv.Token = &token
	inv.ExpiresAt = expires

	project := m.dbm.ProjectQuery().Id(inv.ProjectID).One()

	if err := m.sendMail(inv, project); err != nil {
		return nil, fmt.Errorf("resend mail: %w", err)
	}

	return inv, nil
}

// Cancel removes a pending invitation. The delete is conditional on the
// pending status, so a concurrently completed accept wins and cancel sees a
// conflict; a completed cancel takes the token with it, so an in-flight
// accept using the old token fails.
func (m *Manager) Cancel(id uint, actorUID string) error {
	inv, err := m.getPendingManaged(id, actorUID)
	if err != nil {
		return err
	}

	err = m.dbm.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).Delete()

	if errors.Is(err, database.ErrNoRows) {
		return ErrConflict
	}

	return err
}

func (m *Manager) Get(id uint) (*model.Invitation, error) {
	inv := m.dbm.InvitationQuery().Id(id).Full().One()

	if inv == nil {
		return nil, ErrNotFound
	}

	m.lazyExpire(inv)

	return inv, nil
}

// ForProject lists a project's invitations. Requires membership-management
// capability.
func (m *Manager) ForProject(projectID uint, actorUID string) ([]*model.Invitation, error) {
	if !m.canManage(projectID, actorUID) {
		return nil, ErrForbidden
	}

	res := m.dbm.InvitationQuery().Project(projectID).Get()

	for _, inv := range res {
		m.lazyExpire(inv)
	}

	return res, nil
}

// ForUser lists invitations targeting the caller, by resolved uid or, while
// unresolved, by the caller's own verified email.
func (m *Manager) ForUser(actorUID, actorEmail string) []*model.Invitation {
	res := m.dbm.InvitationQuery().Invitee(actorUID).Full().Get()

	if addr := model.NormalizeEmail(actorEmail); addr != "" {
		res = append(res, m.dbm.InvitationQuery().Email(addr).Unresolved().Full().Get()...)
	}

	for _, inv := range res {
		m.lazyExpire(inv)
	}

	return res
}

func (m *Manager) canManage(projectID uint, uid string) bool {
	member := m.dbm.MemberQuery().Project(projectID).User(uid).One()

	return member != nil && model.CanManageMembers(member.Role)
}

// getActionable loads an invitation for an invitee-side action and runs the
// shared guards: existence, lazy expiry, pending status, target identity.
func (m *Manager) getActionable(id uint, actorUID, actorEmail string) (*model.Invitation, error) {
	inv := m.dbm.InvitationQuery().Id(id).One()

	if inv == nil {
		return nil, ErrNotFound
	}

	if m.lazyExpire(inv) {
		return nil, ErrExpired
	}

	if !inv.IsPending() {
		return nil, ErrConflict
	}

	if !inv.IsFor(actorUID, actorEmail) {
		return nil, ErrForbidden
	}

	return inv, nil
}

// getPendingManaged loads an invitation for an inviter-side action.
func (m *Manager) getPendingManaged(id uint, actorUID string) (*model.Invitation, error) {
	inv := m.dbm.InvitationQuery().Id(id).One()

	if inv == nil {
		return nil, ErrNotFound
	}

	if !m.canManage(inv.ProjectID, actorUID) {
		return nil, ErrForbidden
	}

	if m.lazyExpire(inv) {
		return nil, ErrExpired
	}

	if !inv.IsPending() {
		return nil, ErrConflict
	}

	return inv, nil
}

// lazyExpire treats an overdue pending invitation as expired at use time,
// without waiting for the sweep. The store update is conditional, a
// concurrent resolution wins.
func (m *Manager) lazyExpire(inv *model.Invitation) bool {
	if !inv.IsPending() || !inv.IsExpired(time.Now()) {
		return false
	}

	err := m.dbm.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).Update(map[string]any{
		"status": model.InviteStatusExpired,
		"token":  nil,
	})

	if err != nil && !errors.Is(err, database.ErrNoRows) {
		m.logger.Error("expire failed", slog.Any("error", err))
	}

	inv.Status = model.InviteStatusExpired
	inv.Token = nil

	return true
}

func (m *Manager) sendMail(inv *model.Invitation, project *model.Project) error {
	if m.mail == nil || inv.Token == nil {
		return nil
	}

	name := "a project"
	if project != nil {
		name = fmt.Sprintf("project %q", project.Name)
	}

	body := fmt.Sprintf("%s invited you to join %s as %s.\n", inv.InviterUID, name, inv.Role)

	if inv.Message != "" {
		body += "\n" + inv.Message + "\n"
	}

	body += fmt.Sprintf("\nFollow %s/invitations/%s to respond. The invitation expires at %s.\n",
		m.baseURL, *inv.Token, inv.ExpiresAt.UTC().Format(time.RFC3339))

	return m.mail.Send(inv.InviteeEmail, "Invitation to "+name, body)
}
