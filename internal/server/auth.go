package server

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/docpilot/docpilot/internal/runtime"
	"github.com/docpilot/docpilot/internal/session"
	"github.com/docpilot/docpilot/internal/store"
)

type AuthHandler struct {
	Store      *store.Store
	Secret     []byte
	SessionTTL time.Duration
	Sessions   *session.Manager
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/signup", a.signup)
	g.POST("/login", a.login)
	g.POST("/logout", a.logout)

	authed := g.Group("")
	authed.Use(runtime.EchoAuthMiddleware(a.Secret))
	authed.GET("/profile", a.profile)
	authed.POST("/extend-session", a.extendSession)
}

func (a *AuthHandler) signup(c echo.Context) error {
	var req AuthSignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := a.Store.CreateUser(c.Request().Context(), req.Email, string(hash)); err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return echo.NewHTTPError(http.StatusConflict, "email already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	id, hash, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	signed, err := a.issueCookie(c, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if a.Sessions != nil {
		// a previous tracker may sit in the expired state; login starts over
		a.Sessions.End(id)
		a.Sessions.Touch(c.Request().Context(), id)
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

func (a *AuthHandler) logout(c echo.Context) error {
	if a.Sessions != nil {
		if ck, err := c.Cookie("auth"); err == nil && ck.Value != "" {
			// best effort: end tracker for the subject if the token still parses
			if sub := subjectFromToken(ck.Value, a.Secret); sub != "" {
				a.Sessions.End(sub)
			}
		}
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

// profile is the session-guard probe: a valid cookie gets the account
// back, anything else is rejected by the auth middleware.
func (a *AuthHandler) profile(c echo.Context) error {
	userID := c.Get("user_id").(string)
	u, err := a.Store.GetUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	}
	return c.JSON(http.StatusOK, ProfileResponse{UserID: u.ID, Email: u.Email, Role: u.Role})
}

// extendSession re-issues the session cookie with a fresh TTL and resets
// the idle clock. No body is expected.
func (a *AuthHandler) extendSession(c echo.Context) error {
	userID := c.Get("user_id").(string)
	refresh := func(context.Context) error {
		_, err := a.issueCookie(c, userID)
		return err
	}
	if a.Sessions != nil {
		if !a.Sessions.Extend(c.Request().Context(), userID, refresh) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
		}
		return c.NoContent(http.StatusOK)
	}
	if err := refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not extend session")
	}
	return c.NoContent(http.StatusOK)
}

func (a *AuthHandler) issueCookie(c echo.Context, userID string) (string, error) {
	ttl := a.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	signed, err := runtime.SignJWT(userID, a.Secret, ttl)
	if err != nil {
		return "", err
	}
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	if os.Getenv("DOCPILOT_ENV") == "prod" {
		cookie.Secure = true
	}
	c.SetCookie(cookie)
	// also return token for Bearer flows
	c.Response().Header().Set("Authorization", "Bearer "+signed)
	return signed, nil
}

func subjectFromToken(tok string, secret []byte) string {
	parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) { return secret, nil })
	if err != nil || !parsed.Valid {
		return ""
	}
	if claims, ok := parsed.Claims.(jwt.MapClaims); ok {
		if sub, ok := claims["sub"].(string); ok {
			return sub
		}
	}
	return ""
}
