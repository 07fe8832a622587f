package handlers

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/utils"
)

const minPasswordLength = 8

// AuthHandler bundles dependencies for authentication endpoints. It stands in
// for an external session provider: all it does is issue tokens carrying the
// user id and admin flag.
type AuthHandler struct {
	users     repository.UserRepository
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(users repository.UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register creates a new customer account.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	var invalid []string
	if _, err := mail.ParseAddress(req.Email); err != nil {
		invalid = append(invalid, "email")
	}
	if strings.TrimSpace(req.Name) == "" {
		invalid = append(invalid, "name")
	}
	if len(req.Password) < minPasswordLength {
		invalid = append(invalid, "password")
	}
	if len(invalid) > 0 {
		return apperr.Validation("missing or invalid fields", invalid...)
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	user := models.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: passwordHash,
	}
	if err := h.users.Create(c.UserContext(), &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.Conflict("user already exists")
		}
		return apperr.Internal("create user", err)
	}

	token, err := utils.GenerateToken(h.jwtSecret, user.ID, user.IsAdmin, h.tokenTTL)
	if err != nil {
		return apperr.Internal("generate token", err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an existing user.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.users.FindByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthorized("invalid credentials")
		}
		return apperr.Internal("load user", err)
	}

	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		return apperr.Unauthorized("invalid credentials")
	}

	token, err := utils.GenerateToken(h.jwtSecret, user.ID, user.IsAdmin, h.tokenTTL)
	if err != nil {
		return apperr.Internal("generate token", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

// Profile returns the authenticated user.
func (h *AuthHandler) Profile(c *fiber.Ctx) error {
	id := middleware.CurrentIdentity(c)
	if err := id.RequireUser(); err != nil {
		return err
	}
	user, err := h.users.FindByID(c.UserContext(), id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user")
		}
		return apperr.Internal("load user", err)
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}
