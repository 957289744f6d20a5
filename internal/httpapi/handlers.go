package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	goToken "github.com/MrEthical07/goToken"
	"github.com/MrEthical07/goToken/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type handlers struct {
	engine Engine
	auth   Authenticator
	log    *zap.Logger
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Groups    []string  `json:"groups"`
	Domains   []string  `json:"domains"`
	ExpiresAt time.Time `json:"expires_at"`
}

type healthResponse struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"store_latency_ms"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "bad_request", Message: "invalid JSON body"})
		return false
	}
	return true
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "bad_request", Message: "email and password are required"})
		return
	}

	user, err := h.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Debug("login rejected", zap.Error(err))
		middleware.WriteJSON(w, http.StatusUnauthorized, middleware.ErrorBody{Code: "invalid_credentials", Message: "invalid email or password"})
		return
	}

	pair, err := h.engine.GenerateTokens(r.Context(), goToken.Identity{
		UserID:  user.UserID,
		Email:   user.Email,
		Roles:   user.Roles,
		Groups:  user.Groups,
		Domains: user.Domains,
	})
	if err != nil {
		h.fail(w, "generate tokens", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		middleware.WriteJSON(w, http.StatusBadRequest, middleware.ErrorBody{Code: "bad_request", Message: "refresh_token is required"})
		return
	}

	result, err := h.engine.RefreshAccessToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	claims := claimsOf(r)
	if err := h.engine.Logout(r.Context(), claims.UserID); err != nil {
		h.fail(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	claims := claimsOf(r)
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		Groups:    claims.Groups,
		Domains:   claims.Domains,
		ExpiresAt: claims.ExpiresAtTime().UTC(),
	})
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) {
	info, err := h.engine.GetSessionInfo(r.Context(), claimsOf(r).UserID)
	if err != nil {
		h.fail(w, "session info", err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, info)
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	resp := healthResponse{Status: "ok", LatencyMS: status.Latency.Milliseconds()}
	code := http.StatusOK
	if !status.Available {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	middleware.WriteJSON(w, code, resp)
}

func (h *handlers) fail(w http.ResponseWriter, op string, err error) {
	var authErr *goToken.AuthError
	if !errors.As(err, &authErr) {
		h.log.Error(op+" failed", zap.Error(err))
	}
	middleware.WriteError(w, err)
}
