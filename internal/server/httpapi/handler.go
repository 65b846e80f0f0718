package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

// AccountService is the part of services.UserService the handlers use.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// Handler serves the /api/v1/users routes.
type Handler struct {
	svc          AccountService
	metrics      *metrics.Metrics
	cookieSecure bool
	sessionTTL   time.Duration
	now          func() time.Time
}

func NewHandler(svc AccountService, m *metrics.Metrics, cookieSecure bool, sessionTTL time.Duration) *Handler {
	return &Handler{svc: svc, metrics: m, cookieSecure: cookieSecure, sessionTTL: sessionTTL, now: time.Now}
}

type registerReq struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type forgotReq struct {
	Email string `json:"email" form:"email"`
}

type resetReq struct {
	Password string `json:"password" form:"password"`
}

func (h *Handler) observe(op string, err error) {
	if h.metrics != nil {
		h.metrics.ObserveAuth(op, err)
	}
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	_, err := h.svc.Register(c.UserContext(), req.Name, req.Email, req.Password)
	h.observe("register", err)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusCreated, "User created successfully", nil)
}

func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	err := h.svc.VerifyEmail(c.UserContext(), c.Params("token"))
	h.observe("verify", err)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fail(c, fiber.StatusBadRequest, msgInvalidToken)
		}
		return err
	}
	return ok(c, fiber.StatusOK, "Verification successful", nil)
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	res, err := h.svc.Login(c.UserContext(), req.Email, req.Password)
	h.observe("login", err)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     common.SessionCookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		Expires:  h.now().Add(h.sessionTTL),
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return ok(c, fiber.StatusOK, "user login successfully", res)
}

func (h *Handler) Profile(c *fiber.Ctx) error {
	claims, found := ClaimsFromContext(c.UserContext())
	if !found {
		return common.ErrorUnauthorized
	}

	user, err := h.svc.GetProfile(c.UserContext(), claims.UserID)
	h.observe("profile", err)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "user profile", user)
}

// Logout expires the session cookie. The token itself stays valid until its
// own expiry; there is no server-side revocation.
func (h *Handler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	h.observe("logout", nil)
	return ok(c, fiber.StatusOK, "Loggedout successfully", nil)
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	err := h.svc.ForgotPassword(c.UserContext(), req.Email)
	h.observe("forgot_password", err)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "email with token sent", nil)
}

func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, msgInvalidBody)
	}

	err := h.svc.ResetPassword(c.UserContext(), c.Params("token"), req.Password)
	h.observe("reset_password", err)
	if err != nil {
		return err
	}
	return ok(c, fiber.StatusOK, "password reset successful", nil)
}
