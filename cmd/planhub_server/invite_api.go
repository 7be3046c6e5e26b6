package main

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/vkotov/planhub/internal/invite"
	"github.com/vkotov/planhub/internal/model"
)

func inviteStatus(err error) int {
	switch {
	case errors.Is(err, invite.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, invite.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, invite.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, invite.ErrConflict), errors.Is(err, invite.ErrDuplicate):
		return fiber.StatusConflict
	case errors.Is(err, invite.ErrExpired):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}

func inviteError(c *fiber.Ctx, err error) error {
	return c.Status(inviteStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	n, err := strconv.ParseUint(c.Params(name), 10, 32)

	return uint(n), err == nil && n > 0
}

func createInvitationHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		var req struct {
			Email   string `json:"email"`
			Role    string `json:"role"`
			Message string `json:"message"`
		}

		if err := c.BodyParser(&req); err != nil {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		inv, err := app.invites.Create(Username(c), &invite.CreateRequest{
			ProjectID: projectID,
			Email:     req.Email,
			Role:      req.Role,
			Message:   req.Message,
		})

		if err != nil {
			return inviteError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(model.ToInvitationDTO(inv))
	}
}

func getProjectInvitationsHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		projectID, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		res, err := app.invites.ForProject(projectID, Username(c))
		if err != nil {
			return inviteError(c, err)
		}

		result := make([]*model.InvitationDTO, len(res))
		for i, inv := range res {
			result[i] = model.ToInvitationDTO(inv)
		}

		return c.JSON(result)
	}
}

func getMyInvitationsHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := User(c)

		res := app.invites.ForUser(user.Login, user.Email)

		result := make([]*model.InvitationDTO, len(res))
		for i, inv := range res {
			result[i] = model.ToInvitationDTO(inv)
		}

		return c.JSON(result)
	}
}

func acceptInvitationHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		user := User(c)

		inv, err := app.invites.Accept(id, user.Login, user.Email)
		if err != nil {
			return inviteError(c, err)
		}

		return c.JSON(model.ToInvitationDTO(inv))
	}
}

func acceptByTokenHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := User(c)

		inv, err := app.invites.AcceptByToken(c.Params("token"), user.Login, user.Email)
		if err != nil {
			return inviteError(c, err)
		}

		return c.JSON(model.ToInvitationDTO(inv))
	}
}

func rejectInvitationHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		user := User(c)

		inv, err := app.invites.Reject(id, user.Login, user.Email)
		if err != nil {
			return inviteError(c, err)
		}

		return c.JSON(model.ToInvitationDTO(inv))
	}
}

func resendInvitationHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		inv, err := app.invites.Resend(id, Username(c))
		if err != nil {
			return inviteError(c, err)
		}

		return c.JSON(model.ToInvitationDTO(inv))
	}
}

func cancelInvitationHandler(app *App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := paramID(c, "id")
		if !ok {
			return c.SendStatus(fiber.StatusBadRequest)
		}

		if err := app.invites.Cancel(id, Username(c)); err != nil {
			return inviteError(c, err)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
