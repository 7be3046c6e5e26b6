package main

import (
	"fmt"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vkotov/planhub/internal/auth"
	"github.com/vkotov/planhub/internal/database"
	"github.com/vkotov/planhub/internal/model"
	"github.com/vkotov/planhub/internal/wshandler"
)

// membersChecker answers membership from the store on every join, so a
// membership granted through an accepted invitation is visible without a
// reconnect.
type membersChecker struct {
	dbm *database.DatabaseManager
}

func (m *membersChecker) IsMember(projectID uint, uid string) bool {
	return m.dbm.MemberQuery().Project(projectID).User(uid).One() != nil
}

type projectUpdater struct {
	dbm *database.DatabaseManager
}

func (p *projectUpdater) SetStatus(projectID uint, status, uid string) error {
	member := p.dbm.MemberQuery().Project(projectID).User(uid).One()

	if member == nil || member.Role == model.RoleViewer {
		return fmt.Errorf("user %s cannot change project %d", uid, projectID)
	}

	return p.dbm.ProjectQuery().Id(projectID).Update(map[string]any{"status": status})
}

func getWsHandler(app *App) fiber.Handler {
	members := &membersChecker{dbm: app.dbm}
	projects := &projectUpdater{dbm: app.dbm}

	return websocket.New(func(ws *websocket.Conn) {
		user, ok := ws.Locals(identityKey).(*auth.Identity)

		if !ok || user == nil {
			ws.Close()

			return
		}

		name := uuid.NewString()

		h := wshandler.NewHandler(name, user, ws, app.hub, members, projects, app.config.PingInterval())

		app.logger.Debug("ws client connected")
		h.Listen()
		app.logger.Debug("ws client disconnected")
	})
}
