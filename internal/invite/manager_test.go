package invite

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vkotov/planhub/internal/database"
	"github.com/vkotov/planhub/internal/model"
)

type fakeUsers struct {
	mx    sync.Mutex
	users map[string]*model.User
}

func newFakeUsers(users ...*model.User) *fakeUsers {
	f := &fakeUsers{users: make(map[string]*model.User)}

	for _, u := range users {
		f.users[u.Login] = u
	}

	return f
}

func (f *fakeUsers) Start() error { return nil }
func (f *fakeUsers) Stop()        {}

func (f *fakeUsers) GetUser(login string) *model.User {
	f.mx.Lock()
	defer f.mx.Unlock()

	return f.users[login]
}

func (f *fakeUsers) ResolveEmail(email string) *model.User {
	f.mx.Lock()
	defer f.mx.Unlock()

	for _, u := range f.users {
		if u.GetEmail() == model.NormalizeEmail(email) {
			return u
		}
	}

	return nil
}

func (f *fakeUsers) CheckUserAuth(login, password string) bool { return false }

type mailMsg struct {
	to      string
	subject string
	body    string
}

type fakeMail struct {
	mx   sync.Mutex
	msgs []mailMsg
	fail bool
}

func (f *fakeMail) Send(to, subject, body string) error {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.fail {
		return fmt.Errorf("relay down")
	}

	f.msgs = append(f.msgs, mailMsg{to: to, subject: subject, body: body})

	return nil
}

func (f *fakeMail) count() int {
	f.mx.Lock()
	defer f.mx.Unlock()

	return len(f.msgs)
}

func (f *fakeMail) last() mailMsg {
	f.mx.Lock()
	defer f.mx.Unlock()

	return f.msgs[len(f.msgs)-1]
}

type testEnv struct {
	mm    *Manager
	dbm   *database.DatabaseManager
	mail  *fakeMail
	users *fakeUsers
}

// newTestEnv builds a manager over an in-memory store with project 1 owned
// by "owner", "viewer" as a plain member and accounts for u1/u2.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)

	if d, err := db.DB(); err == nil {
		d.SetMaxOpenConns(1)
	}

	dbm := database.New(db)
	require.NoError(t, dbm.Migrate())

	require.NoError(t, dbm.Save(&model.Project{Name: "apollo", Status: model.StatusActive, CreatorUID: "owner"}))
	require.NoError(t, dbm.Create(&model.Member{ProjectID: 1, UserUID: "owner", Role: model.RoleOwner}))
	require.NoError(t, dbm.Create(&model.Member{ProjectID: 1, UserUID: "viewer", Role: model.RoleViewer}))

	users := newFakeUsers(
		&model.User{Login: "owner", Email: "owner@example.com"},
		&model.User{Login: "viewer", Email: "viewer@example.com"},
		&model.User{Login: "u1", Email: "u1@example.com"},
		&model.User{Login: "u2", Email: "u2@example.com"},
	)

	mail := &fakeMail{}

	return &testEnv{
		mm:    New(dbm, users, mail, time.Hour*24*7, 0, "http://test"),
		dbm:   dbm,
		mail:  mail,
		users: users,
	}
}

func (e *testEnv) create(t *testing.T, email, role string) *model.Invitation {
	t.Helper()

	inv, err := e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: email, Role: role, Message: "welcome"})
	require.NoError(t, err)

	return inv
}

// expire rewinds an invitation's deadline without touching its status.
func (e *testEnv) expire(t *testing.T, id uint) {
	t.Helper()

	err := e.dbm.InvitationQuery().Id(id).Status(model.InviteStatusPending).
		Update(map[string]any{"expires_at": time.Now().Add(-time.Minute)})
	require.NoError(t, err)
}

func TestCreate(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, " U1@Example.COM ", model.RoleEditor)

	require.Equal(t, model.InviteStatusPending, inv.Status)
	require.Equal(t, "u1@example.com", inv.InviteeEmail)
	require.Equal(t, "u1", inv.InviteeUID)
	require.NotNil(t, inv.Token)
	require.InDelta(t, time.Now().Add(time.Hour*24*7).Unix(), inv.ExpiresAt.Unix(), 5)

	require.Equal(t, 1, e.mail.count())
	require.Equal(t, "u1@example.com", e.mail.last().to)
	require.Contains(t, e.mail.last().body, *inv.Token)
	require.Contains(t, e.mail.last().body, "welcome")
}

func TestCreateUnknownEmail(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "stranger@example.com", model.RoleViewer)

	// no account yet, resolution happens on accept
	require.Empty(t, inv.InviteeUID)
}

func TestCreateValidation(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: "not-an-email", Role: model.RoleEditor})
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: "u1@example.com", Role: "root"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: "u1@example.com", Role: model.RoleOwner})
	require.ErrorIs(t, err, ErrValidation)

	_, err = e.mm.Create("owner", &CreateRequest{ProjectID: 99, Email: "u1@example.com", Role: model.RoleEditor})
	require.ErrorIs(t, err, ErrNotFound)

	require.Equal(t, 0, e.mail.count())
}

func TestCreateForbidden(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.mm.Create("stranger", &CreateRequest{ProjectID: 1, Email: "u1@example.com", Role: model.RoleEditor})
	require.ErrorIs(t, err, ErrForbidden)

	// plain membership is not enough to invite
	_, err = e.mm.Create("viewer", &CreateRequest{ProjectID: 1, Email: "u1@example.com", Role: model.RoleEditor})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateDuplicate(t *testing.T) {
	e := newTestEnv(t)

	e.create(t, "u1@example.com", model.RoleEditor)

	_, err := e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: "U1@example.com", Role: model.RoleViewer})
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = e.mm.Create("owner", &CreateRequest{ProjectID: 1, Email: "viewer@example.com", Role: model.RoleEditor})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestAcceptRoundTrip(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	res, err := e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.NoError(t, err)
	require.Equal(t, model.InviteStatusAccepted, res.Status)
	require.Nil(t, res.Token)
	require.NotNil(t, res.RespondedAt)

	member := e.dbm.MemberQuery().Project(1).User("u1").One()
	require.NotNil(t, member)
	require.Equal(t, model.RoleEditor, member.Role)

	// a retry observes the resolved state
	_, err = e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrConflict)

	require.EqualValues(t, 1, e.dbm.MemberQuery().Project(1).User("u1").Count())
}

func TestAcceptResolvesByActingUser(t *testing.T) {
	e := newTestEnv(t)

	// no account matched at create time
	inv := e.create(t, "u2@example.com", model.RoleViewer)
	require.Empty(t, inv.InviteeUID)

	res, err := e.mm.Accept(inv.ID, "u2", "u2@example.com")
	require.NoError(t, err)
	require.Equal(t, "u2", res.InviteeUID)
	require.NotNil(t, e.dbm.MemberQuery().Project(1).User("u2").One())
}

func TestAcceptForbidden(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	_, err := e.mm.Accept(inv.ID, "u2", "u2@example.com")
	require.ErrorIs(t, err, ErrForbidden)

	require.Nil(t, e.dbm.MemberQuery().Project(1).User("u2").One())
}

func TestAcceptExpired(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)
	e.expire(t, inv.ID)

	_, err := e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrExpired)

	// the lazy check resolved the stored record too
	stored := e.dbm.InvitationQuery().Id(inv.ID).One()
	require.Equal(t, model.InviteStatusExpired, stored.Status)
	require.Nil(t, stored.Token)
	require.Nil(t, e.dbm.MemberQuery().Project(1).User("u1").One())

	_, err = e.mm.Reject(inv.ID, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrConflict)
}

func TestAcceptConcurrent(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	var wg sync.WaitGroup

	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			_, errs[n] = e.mm.Accept(inv.ID, "u1", "u1@example.com")
		}(i)
	}

	wg.Wait()

	ok := 0

	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			require.ErrorIs(t, err, ErrConflict)
		}
	}

	require.Equal(t, 1, ok)
	require.EqualValues(t, 1, e.dbm.MemberQuery().Project(1).User("u1").Count())
}

func TestReject(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	res, err := e.mm.Reject(inv.ID, "u1", "u1@example.com")
	require.NoError(t, err)
	require.Equal(t, model.InviteStatusRejected, res.Status)
	require.Nil(t, res.Token)
	require.NotNil(t, res.RespondedAt)

	require.Nil(t, e.dbm.MemberQuery().Project(1).User("u1").One())

	_, err = e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrConflict)
}

func TestResend(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)
	oldToken := *inv.Token

	res, err := e.mm.Resend(inv.ID, "owner")
	require.NoError(t, err)
	require.NotEqual(t, oldToken, *res.Token)
	require.False(t, res.ExpiresAt.Before(inv.ExpiresAt))
	require.Equal(t, 2, e.mail.count())

	// the old token is no longer usable
	_, err = e.mm.AcceptByToken(oldToken, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.mm.AcceptByToken(*res.Token, "u1", "u1@example.com")
	require.NoError(t, err)

	// resending a resolved invitation fails
	_, err = e.mm.Resend(inv.ID, "owner")
	require.ErrorIs(t, err, ErrConflict)
}

func TestResendForbidden(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	_, err := e.mm.Resend(inv.ID, "viewer")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestResendExtendsExpiry(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	err := e.dbm.InvitationQuery().Id(inv.ID).Status(model.InviteStatusPending).
		Update(map[string]any{"expires_at": time.Now().Add(time.Minute)})
	require.NoError(t, err)

	res, err := e.mm.Resend(inv.ID, "owner")
	require.NoError(t, err)
	require.InDelta(t, time.Now().Add(time.Hour*24*7).Unix(), res.ExpiresAt.Unix(), 5)
}

func TestCancel(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)
	token := *inv.Token

	require.NoError(t, e.mm.Cancel(inv.ID, "owner"))

	_, err := e.mm.AcceptByToken(token, "u1", "u1@example.com")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.mm.Get(inv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelResolved(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	_, err := e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.NoError(t, err)

	require.ErrorIs(t, e.mm.Cancel(inv.ID, "owner"), ErrConflict)
	require.NotNil(t, e.dbm.MemberQuery().Project(1).User("u1").One())
}

func TestResendMailFailure(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	e.mail.fail = true

	_, err := e.mm.Resend(inv.ID, "owner")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrConflict)

	// still pending and still acceptable
	stored := e.dbm.InvitationQuery().Id(inv.ID).One()
	require.Equal(t, model.InviteStatusPending, stored.Status)
}

func TestCreateMailFailure(t *testing.T) {
	e := newTestEnv(t)

	e.mail.fail = true

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	// delivery failure does not undo the invitation
	_, err := e.mm.Accept(inv.ID, "u1", "u1@example.com")
	require.NoError(t, err)
}

func TestForUser(t *testing.T) {
	e := newTestEnv(t)

	e.create(t, "u1@example.com", model.RoleEditor)
	e.create(t, "stranger@example.com", model.RoleViewer)

	res := e.mm.ForUser("u1", "u1@example.com")
	require.Len(t, res, 1)
	require.Equal(t, "u1@example.com", res[0].InviteeEmail)

	// unresolved invitations match by the caller's email
	res = e.mm.ForUser("someone", "STRANGER@example.com")
	require.Len(t, res, 1)

	require.Empty(t, e.mm.ForUser("u2", "u2@example.com"))
}

func TestForProject(t *testing.T) {
	e := newTestEnv(t)

	e.create(t, "u1@example.com", model.RoleEditor)
	e.create(t, "u2@example.com", model.RoleViewer)

	res, err := e.mm.ForProject(1, "owner")
	require.NoError(t, err)
	require.Len(t, res, 2)

	_, err = e.mm.ForProject(1, "viewer")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestExpireStale(t *testing.T) {
	e := newTestEnv(t)

	inv1 := e.create(t, "u1@example.com", model.RoleEditor)
	inv2 := e.create(t, "u2@example.com", model.RoleViewer)

	e.expire(t, inv1.ID)

	e.mm.ExpireStale()

	require.Equal(t, model.InviteStatusExpired, e.dbm.InvitationQuery().Id(inv1.ID).One().Status)
	require.Equal(t, model.InviteStatusPending, e.dbm.InvitationQuery().Id(inv2.ID).One().Status)
}

func TestListLazyExpiry(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)
	e.expire(t, inv.ID)

	// no sweep ran, the list still reports it expired
	res := e.mm.ForUser("u1", "u1@example.com")
	require.Len(t, res, 1)
	require.Equal(t, model.InviteStatusExpired, res[0].Status)

	stored := e.dbm.InvitationQuery().Id(inv.ID).One()
	require.Equal(t, model.InviteStatusExpired, stored.Status)
}

func TestCreatePendingBackstop(t *testing.T) {
	e := newTestEnv(t)

	e.create(t, "u1@example.com", model.RoleEditor)

	// a concurrent create that slipped past the pending count stops at
	// the unique index
	err := e.dbm.Create(&model.Invitation{
		ProjectID:    1,
		InviterUID:   "owner",
		InviteeEmail: "u1@example.com",
		Role:         model.RoleViewer,
		Status:       model.InviteStatusPending,
		ExpiresAt:    time.Now().Add(time.Hour),
	})
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestCreateAfterResolved(t *testing.T) {
	e := newTestEnv(t)

	inv := e.create(t, "u1@example.com", model.RoleEditor)

	_, err := e.mm.Reject(inv.ID, "u1", "u1@example.com")
	require.NoError(t, err)

	// the index holds pending rows only, a resolved one does not block
	next := e.create(t, "u1@example.com", model.RoleViewer)
	require.NotEqual(t, inv.ID, next.ID)
}

func TestMailBodyMentionsProject(t *testing.T) {
	e := newTestEnv(t)

	e.create(t, "u1@example.com", model.RoleEditor)

	require.True(t, strings.Contains(e.mail.last().body, "apollo"))
	require.True(t, strings.Contains(e.mail.last().subject, "apollo"))
}
