package user

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/respond"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/query"
)

// TokenHeader carries the session token on a successful login.
const TokenHeader = "X-Session-Token"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Handler exposes HTTP endpoints for account and admin user operations.
type Handler struct {
	auth   *auth.Manager
	svc    *Service
	cookie CookieConfig
	logger *zap.SugaredLogger
}

func NewHandler(mgr *auth.Manager, svc *Service, cookie CookieConfig, logger *zap.SugaredLogger) *Handler {
	if cookie.Name == "" {
		cookie.Name = auth.DefaultCookieName
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{auth: mgr, svc: svc, cookie: cookie, logger: logger}
}

// CookieName is the name of the session cookie the handler sets.
func (h *Handler) CookieName() string { return h.cookie.Name }

// RegisterRequest request body for register endpoint.
type RegisterRequest struct {
	Account         string `json:"account"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginRequest login payload.
type LoginRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// AddRequest is the admin add payload.
type AddRequest struct {
	Account     string `json:"account"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	Profile     string `json:"profile"`
	Role        string `json:"role"`
}

// DeleteRequest identifies the user to delete.
type DeleteRequest struct {
	ID int64 `json:"id"`
}

// UpdateRequest carries the id and any fields to change.
type UpdateRequest struct {
	ID          int64   `json:"id"`
	DisplayName *string `json:"displayName"`
	AvatarRef   *string `json:"avatarRef"`
	Profile     *string `json:"profile"`
	Role        *string `json:"role"`
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *Handler) decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		return apperr.Wrap(apperr.KindValidation, "invalid payload", err)
	}
	return nil
}

func queryID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id must be positive")
	}
	return id, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := h.auth.Register(r.Context(), req.Account, req.Password, req.ConfirmPassword)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.OK(w, id)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	p, token, err := h.auth.Login(r.Context(), req.Account, req.Password)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set(TokenHeader, token)
	respond.OK(w, p)
}

// Current returns the logged in caller.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.ResolveCurrentUser(r.Context(), auth.FromRequest(r, h.cookie.Name))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.OK(w, auth.ToPrincipal(u))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), auth.FromRequest(r, h.cookie.Name)); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	respond.OK(w, true)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	id, err := h.svc.Add(r.Context(), AddInput(req))
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.logger.Debugw("user added", "id", id, "by", actorID(r))
	respond.OK(w, id)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	u, err := h.svc.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.OK(w, u)
}

func (h *Handler) GetVO(w http.ResponseWriter, r *http.Request) {
	id, err := queryID(r)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	p, err := h.svc.GetVO(r.Context(), id)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.OK(w, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	ok, err := h.svc.Delete(r.Context(), req.ID)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.logger.Debugw("user deleted", "id", req.ID, "deleted", ok, "by", actorID(r))
	respond.OK(w, ok)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	patch := entity.Patch{DisplayName: req.DisplayName, AvatarRef: req.AvatarRef, Profile: req.Profile, Role: req.Role}
	ok, err := h.svc.Update(r.Context(), req.ID, patch)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	h.logger.Debugw("user updated", "id", req.ID, "by", actorID(r))
	respond.OK(w, ok)
}

// actorID is the id of the guarded caller, or 0 outside a guarded route.
func actorID(r *http.Request) int64 {
	if u, ok := auth.UserFromContext(r.Context()); ok {
		return u.ID
	}
	return 0
}

// List serves the paged, filtered principal listing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	// an empty or null body leaves req nil
	var req *query.Request
	if err := h.decode(r, &req); err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	page, err := h.svc.List(r.Context(), req)
	if err != nil {
		respond.Error(w, h.logger, err)
		return
	}
	respond.OK(w, page)
}
