package adminapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsk/fieldledger/internal/user"
)

func registerHealthRoute(app *fiber.App, store Pinger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		mongoStatus := "ok"
		if store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				mongoStatus = err.Error()
			}
		}
		status := http.StatusOK
		if mongoStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"mongo": mongoStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func registerUserRoutes(r fiber.Router, users *user.Service, log *slog.Logger) {
	r.Post("/users", func(c *fiber.Ctx) error {
		var req struct {
			UserID         string `json:"user_id"`
			Username       string `json:"username"`
			InitialBalance string `json:"initial_balance"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		u, err := users.Create(c.UserContext(), user.CreateInput{
			UserID:         req.UserID,
			Username:       req.Username,
			InitialBalance: req.InitialBalance,
		})
		if errors.Is(err, user.ErrExists) {
			return fiber.NewError(http.StatusConflict, "user already exists")
		}
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if log != nil {
			log.Info("user enrolled",
				slog.String("user_id", u.ID),
				slog.String("username", u.Username),
				slog.Int("status", http.StatusCreated),
			)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":  u.ID,
			"username": u.Username,
			"balance":  u.Balance.StringFixed(2),
		})
	})

	r.Get("/users/:id", func(c *fiber.Ctx) error {
		u, err := users.Get(c.UserContext(), c.Params("id"))
		if errors.Is(err, user.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{
			"user_id":  u.ID,
			"username": u.Username,
			"balance":  u.Balance.StringFixed(2),
		})
	})
}
