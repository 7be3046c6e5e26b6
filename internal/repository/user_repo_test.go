package repository

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/vkotov/planhub/internal/model"
)

func writeUsers(t *testing.T, name string, users []*model.User) {
	t.Helper()

	dat, err := yaml.Marshal(users)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(name, dat, 0o644))
}

func TestLoadAndResolve(t *testing.T) {
	name := filepath.Join(t.TempDir(), "users.yml")

	u1 := &model.User{Login: "u1", Email: "U1@Example.com"}
	require.NoError(t, u1.SetPassword("pass1"))

	writeUsers(t, name, []*model.User{u1, {Login: "u2", Email: "u2@example.com"}})

	r := NewFileUserRepo(name)

	require.NotNil(t, r.GetUser("u1"))
	require.Nil(t, r.GetUser("u3"))

	require.Equal(t, "u1", r.ResolveEmail("u1@example.com").GetLogin())
	require.Equal(t, "u1", r.ResolveEmail(" U1@EXAMPLE.COM ").GetLogin())
	require.Nil(t, r.ResolveEmail("nobody@example.com"))

	require.True(t, r.CheckUserAuth("u1", "pass1"))
	require.False(t, r.CheckUserAuth("u1", "wrong"))
	require.False(t, r.CheckUserAuth("u2", ""))
	require.False(t, r.CheckUserAuth("u3", "pass1"))
}

func TestReload(t *testing.T) {
	name := filepath.Join(t.TempDir(), "users.yml")

	writeUsers(t, name, []*model.User{{Login: "u1", Email: "u1@example.com"}})

	r := NewFileUserRepo(name)
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Nil(t, r.GetUser("u2"))

	writeUsers(t, name, []*model.User{
		{Login: "u1", Email: "u1@example.com"},
		{Login: "u2", Email: "u2@example.com"},
	})

	require.Eventually(t, func() bool {
		return r.GetUser("u2") != nil
	}, time.Second*5, time.Millisecond*50)
}

func TestMissingFileCreated(t *testing.T) {
	name := filepath.Join(t.TempDir(), "users.yml")

	r := NewFileUserRepo(name)

	_, err := os.Stat(name)
	require.NoError(t, err)
	require.Nil(t, r.GetUser("anyone"))
}
