package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nexushub/portal/internal/protocol"
	"github.com/nexushub/portal/internal/session"
)

// LoginRequest carries a token issued by the identity provider.
type LoginRequest struct {
	Token string `json:"token"`
}

// GetSession reports who is logged in.
// GET /api/session
func (h *Handler) GetSession(c echo.Context) error {
	s, ok := h.currentSession(c)
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"authenticated": false,
			"principal":     session.Anonymous,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"principal":     s.Principal,
		"expires_at":    s.ExpiresAt.UnixMilli(),
	})
}

// LoginRedirect sends the browser to the identity provider.
// GET /api/session/login
func (h *Handler) LoginRedirect(c echo.Context) error {
	req := c.Request()
	callback := c.Scheme() + "://" + req.Host + "/api/session/callback"
	return c.Redirect(http.StatusFound, h.sessions.LoginURL(callback))
}

// LoginCallback completes a login started by LoginRedirect.
// GET /api/session/callback?token=
func (h *Handler) LoginCallback(c echo.Context) error {
	s, err := h.sessions.Login(c.Request().Context(), c.QueryParam("token"))
	if err != nil {
		return h.loginFailed(c, err)
	}
	h.setSessionCookie(c, s)
	return c.Redirect(http.StatusFound, "/")
}

// Login starts a session from a token in the body.
// POST /api/session
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "token is required"})
	}

	s, err := h.sessions.Login(c.Request().Context(), req.Token)
	if err != nil {
		return h.loginFailed(c, err)
	}
	h.setSessionCookie(c, s)
	return c.JSON(http.StatusOK, s)
}

// Logout ends the session and tells its open chat sockets.
// DELETE /api/session
func (h *Handler) Logout(c echo.Context) error {
	cookie, err := c.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		if err := h.sessions.Logout(cookie.Value); err == nil {
			if h.hub.HasActiveConnections(cookie.Value) {
				ended := protocol.SessionEndedMessage{
					BaseMessage: protocol.NewBase(protocol.TypeSessionEnded, ""),
					Reason:      "logout",
				}
				if err := h.hub.EndSession(cookie.Value, ended); err != nil {
					h.logger.Warn("failed to notify sockets of logout", "error", err)
				}
			}
			h.logger.Info("session ended", "session_id", cookie.Value)
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) loginFailed(c echo.Context, err error) error {
	if errors.Is(err, session.ErrInvalidToken) {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}
	h.logger.Error("login failed", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *Handler) setSessionCookie(c echo.Context, s *session.Session) {
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    s.ID,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("session started", "session_id", s.ID, "principal", s.Principal)
}

// currentSession returns the live session named by the request cookie.
func (h *Handler) currentSession(c echo.Context) (*session.Session, bool) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, false
	}
	s, err := h.sessions.Get(cookie.Value)
	if err != nil {
		return nil, false
	}
	return s, true
}

// principal is the caller's principal, Anonymous without a session.
func (h *Handler) principal(c echo.Context) string {
	if s, ok := h.currentSession(c); ok {
		return s.Principal
	}
	return session.Anonymous
}
