package handler

import (
	"net/http"
	"time"

	"medislot/internal/identity/service"
	"medislot/pkg/config"
	httputil "medislot/pkg/http"
	"medislot/pkg/logger"
	"medislot/pkg/middleware"
	"medislot/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

type SessionResponse struct {
	Message string             `json:"message"`
	User    model.ActorSummary `json:"user"`
}

type ProfileResponse struct {
	User model.ActorSummary `json:"user"`
}

type IdentityHandler struct {
	service      service.IdentityService
	guard        *middleware.Guard
	cookieName   string
	cookieSecure bool
	log          *logger.Logger
}

func NewIdentityHandler(service service.IdentityService, guard *middleware.Guard, cfg *config.Config) *IdentityHandler {
	return &IdentityHandler{
		service:      service,
		guard:        guard,
		cookieName:   cfg.CookieName,
		cookieSecure: cfg.CookieSecure,
		log:          cfg.Log,
	}
}

func (h *IdentityHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *IdentityHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Register", err)
		return
	}

	user, err := h.service.Register(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Register", err)
		return
	}

	resp := RegisterResponse{
		Message: "Registration successful. Please verify your OTP.",
		UserID:  user.ID,
	}
	if err := httputil.WriteCreated(w, resp); err != nil {
		h.log.Error("failed to write created response", "handler", "Register", "operation", "WriteCreated", "error", err)
	}
}

func (h *IdentityHandler) Verify(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Verify", err)
		return
	}

	session, err := h.service.Verify(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Verify", err)
		return
	}

	h.writeSession(w, "Verify", session, "OTP verified successfully.")
}

func (h *IdentityHandler) Resend(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.ResendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Resend", err)
		return
	}

	if err := h.service.Resend(r.Context(), &req); err != nil {
		h.writeError(w, "Resend", err)
		return
	}

	if err := httputil.WriteMessage(w, http.StatusOK, "OTP sent successfully."); err != nil {
		h.log.Error("failed to write message response", "handler", "Resend", "operation", "WriteMessage", "error", err)
	}
}

func (h *IdentityHandler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Login", err)
		return
	}

	session, err := h.service.Login(r.Context(), &req)
	if err != nil {
		h.writeError(w, "Login", err)
		return
	}

	h.writeSession(w, "Login", session, "Login successful.")
}

// Logout clears the session cookie. Tokens are stateless, so nothing is revoked.
func (h *IdentityHandler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.SetCookie(w, h.cookie("", time.Unix(0, 0), -1))

	if err := httputil.WriteMessage(w, http.StatusOK, "Logged out successfully."); err != nil {
		h.log.Error("failed to write message response", "handler", "Logout", "operation", "WriteMessage", "error", err)
	}
}

func (h *IdentityHandler) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, err := h.service.Me(r.Context())
	if err != nil {
		h.writeError(w, "Me", err)
		return
	}

	if err := httputil.WriteSuccess(w, ProfileResponse{User: user.Summary()}); err != nil {
		h.log.Error("failed to write success response", "handler", "Me", "operation", "WriteSuccess", "error", err)
	}
}

func (h *IdentityHandler) writeSession(w http.ResponseWriter, handler string, session *model.Session, message string) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	http.SetCookie(w, h.cookie(session.Token, session.ExpiresAt, maxAge))

	resp := SessionResponse{Message: message, User: session.User.Summary()}
	if err := httputil.WriteSuccess(w, resp); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *IdentityHandler) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *IdentityHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/auth/register", h.Register)
	router.POST("/api/auth/verify-otp", h.Verify)
	router.POST("/api/auth/resend-otp", h.Resend)
	router.POST("/api/auth/login", h.Login)
	router.POST("/api/auth/logout", h.Logout)
	router.GET("/api/auth/me", h.guard.Authenticated(h.Me))
}
