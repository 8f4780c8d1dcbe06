package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Novip1906/tasks-live/internal/auth"
	"github.com/Novip1906/tasks-live/internal/contextkeys"
	appErrors "github.com/Novip1906/tasks-live/internal/errors"
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	Refresh(ctx context.Context, token string) (string, string, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (auth.Claims, error)
}

type AuthHandler struct {
	service AuthService
}

func NewAuthHandler(service AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	JWT      string `json:"jwt"`
}

type tokenResponse struct {
	JWT string `json:"jwt"`
}

type loginResponse struct {
	JWT      string `json:"jwt"`
	Username string `json:"username"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	token, err := h.service.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, tokenResponse{JWT: token})
}

// Login accepts either credentials or a token. A token is exchanged for a
// fresh one and cannot be used again.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	if req.JWT != "" {
		token, username, err := h.service.Refresh(r.Context(), req.JWT)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, loginResponse{JWT: token, Username: username})
		return
	}

	token, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginResponse{JWT: token, Username: req.Username})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req tokenResponse
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondWithError(w, r, err)
			return
		}
	}
	if req.JWT == "" {
		req.JWT = tokenFromRequest(r)
	}

	if err := h.service.Logout(r.Context(), req.JWT); err != nil {
		respondWithError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RequireAuth rejects requests without a valid, unrevoked token and puts
// the caller's claims and a username-scoped logger into the context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			token = tokenFromBody(r)
		}
		if token == "" {
			respondWithError(w, r, appErrors.ErrMalformedToken)
			return
		}

		claims, err := h.service.Authenticate(r.Context(), token)
		if err != nil {
			respondWithError(w, r, err)
			return
		}

		ctx := contextkeys.WithTokenClaims(r.Context(), &contextkeys.TokenClaims{
			Username: claims.Subject,
		})
		log := contextkeys.GetLogger(ctx).With(slog.String("username", claims.Subject))
		ctx = contextkeys.WithLogger(ctx, log)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("jwt")
}

// tokenFromBody reads a "jwt" field from a JSON body, which is where the web
// client puts it on task mutations. The body is restored for the handler.
func tokenFromBody(r *http.Request) string {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.JWT
}

func ownerFrom(r *http.Request) string {
	claims, ok := contextkeys.GetTokenClaims(r.Context())
	if !ok {
		panic("handlers: route registered without RequireAuth")
	}
	return claims.Username
}
