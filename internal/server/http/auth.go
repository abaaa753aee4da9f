package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"chesssync/internal/server/core"
)

// requireAdmin enforces a valid admin bearer token
func (h *HTTPHandler) requireAdmin(c *fiber.Ctx) error {
	token := extractBearerToken(c.Get("Authorization"))
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
			Error: "missing authorization token",
			Code:  core.ErrUnauthorized,
		})
	}

	session, err := h.auth.Verify(c.Context(), token)
	if err != nil {
		return h.writeError(c, err)
	}

	c.Locals("sessionID", session.ID)
	c.Locals("token", token)
	return c.Next()
}

// extractBearerToken extracts the token from an Authorization header
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// Login exchanges the admin password for a token
func (h *HTTPHandler) Login(c *fiber.Ctx) error {
	req, err := validatedBody[core.LoginRequest](c)
	if err != nil {
		return err
	}

	grant, err := h.auth.Login(c.Context(), req.Password)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(core.LoginResponse{
		Token:     grant.Token,
		Success:   true,
		ExpiresAt: grant.ExpiresAt,
	})
}

// Verify reports whether a token is still accepted
func (h *HTTPHandler) Verify(c *fiber.Ctx) error {
	req, err := validatedBody[core.VerifyRequest](c)
	if err != nil {
		return err
	}

	session, err := h.auth.Verify(c.Context(), req.Token)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(core.VerifyResponse{Valid: true, ExpiresAt: session.ExpiresAt})
}

// Logout revokes the caller's session
func (h *HTTPHandler) Logout(c *fiber.Ctx) error {
	token, _ := c.Locals("token").(string)
	if err := h.auth.Logout(c.Context(), token); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
